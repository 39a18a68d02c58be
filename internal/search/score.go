package search

import (
	"log/slog"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/miounet11/miaoda-sub002/internal/logging"
)

var scoreLog = logging.ForComponent(logging.CompQuery)

const (
	wholeWordWeight = 1.5
	regexWeight     = 2.0
)

// scorer evaluates one parsed query against candidate records. Regex terms
// are compiled once per query; a pattern that fails to compile silently
// degrades to literal substring matching for that term.
type scorer struct {
	terms   []string
	regexes []*regexp.Regexp // parallel to terms; nil slot = literal fallback
	opts    SearchOptions
}

func newScorer(text string, opts SearchOptions) *scorer {
	sc := &scorer{opts: opts}
	for _, term := range strings.Fields(text) {
		if !opts.CaseSensitive && !opts.UseRegex {
			term = strings.ToLower(term)
		}
		sc.terms = append(sc.terms, term)
	}
	if opts.UseRegex {
		sc.regexes = make([]*regexp.Regexp, len(sc.terms))
		for i, term := range sc.terms {
			pattern := term
			if !opts.CaseSensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				scoreLog.Debug("invalid_regex_term", slog.String("term", term), slog.String("error", err.Error()))
				// The literal fallback runs against the lowered haystack.
				if !opts.CaseSensitive {
					sc.terms[i] = strings.ToLower(term)
				}
				continue
			}
			sc.regexes[i] = re
		}
	}
	return sc
}

// score computes the relevance score and located match spans for rec.
// A zero score means the record is excluded from results.
func (sc *scorer) score(rec *IndexRecord) (float64, []SearchMatch) {
	if len(sc.terms) == 0 {
		return 0, nil
	}

	haystack := rec.Content
	if !sc.opts.CaseSensitive {
		haystack = strings.ToLower(rec.Content)
	}

	var total float64
	var matches []SearchMatch

	for i, term := range sc.terms {
		switch {
		case sc.opts.UseRegex && sc.regexes != nil && sc.regexes[i] != nil:
			spans := sc.regexes[i].FindAllStringIndex(rec.Content, -1)
			total += float64(len(spans)) * regexWeight
			matches = sc.appendSpans(matches, rec, spans)

		case sc.opts.WholeWords:
			spans := wholeWordSpans(haystack, term)
			total += float64(len(spans)) * wholeWordWeight
			matches = sc.appendSpans(matches, rec, spans)

		default:
			spans := substringSpans(haystack, term)
			total += float64(len(spans))
			matches = sc.appendSpans(matches, rec, spans)
		}

		if sc.opts.FuzzyMatch {
			best := 0.0
			for _, tok := range rec.Tokens {
				if sim := Similarity(term, tok); sim > best {
					best = sim
					if best == 1.0 {
						break
					}
				}
			}
			if best >= sc.opts.FuzzyThreshold {
				total += best
			}
		}
	}

	if total == 0 {
		return 0, nil
	}

	// Penalize very long messages so short, dense hits rank first.
	if damp := math.Log(float64(rec.Length) + 1); damp > 0 {
		total /= damp
	}
	return total, matches
}

func (sc *scorer) appendSpans(matches []SearchMatch, rec *IndexRecord, spans [][]int) []SearchMatch {
	for _, span := range spans {
		m := SearchMatch{
			Field:       "content",
			MatchedText: rec.Content[span[0]:span[1]],
			Start:       span[0],
			End:         span[1],
		}
		if sc.opts.HighlightMatches {
			m.Highlighted = "<mark>" + m.MatchedText + "</mark>"
		}
		matches = append(matches, m)
	}
	return matches
}

// substringSpans finds non-overlapping occurrences of needle in haystack.
func substringSpans(haystack, needle string) [][]int {
	if needle == "" {
		return nil
	}
	var spans [][]int
	start := 0
	for {
		idx := strings.Index(haystack[start:], needle)
		if idx == -1 {
			break
		}
		abs := start + idx
		spans = append(spans, []int{abs, abs + len(needle)})
		start = abs + len(needle)
	}
	return spans
}

// wholeWordSpans keeps only occurrences bounded by non-word characters.
func wholeWordSpans(haystack, needle string) [][]int {
	var spans [][]int
	for _, span := range substringSpans(haystack, needle) {
		if boundedByNonWord(haystack, span[0], span[1]) {
			spans = append(spans, span)
		}
	}
	return spans
}

func boundedByNonWord(s string, start, end int) bool {
	if start > 0 {
		r := previousRune(s, start)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r := runeAt(s, end)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func previousRune(s string, idx int) rune {
	r, _ := utf8.DecodeLastRuneInString(s[:idx])
	return r
}

func runeAt(s string, idx int) rune {
	r, _ := utf8.DecodeRuneInString(s[idx:])
	return r
}
