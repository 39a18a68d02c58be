package search

import (
	"testing"
	"time"
)

func scoreOf(t *testing.T, content, query string, opts SearchOptions) float64 {
	t.Helper()
	rec := recordFor("m1", content, time.Now())
	score, _ := newScorer(query, opts.withDefaults()).score(rec)
	return score
}

func TestScoreSubstringOccurrences(t *testing.T) {
	one := scoreOf(t, "alpha beta", "alpha", SearchOptions{})
	two := scoreOf(t, "alpha alpha", "alpha", SearchOptions{})
	if one <= 0 {
		t.Fatalf("single occurrence scored %v, want > 0", one)
	}
	if two <= one {
		t.Errorf("two occurrences (%v) should outscore one (%v)", two, one)
	}
}

func TestScoreZeroMeansExcluded(t *testing.T) {
	if got := scoreOf(t, "hello world", "zebra", SearchOptions{}); got != 0 {
		t.Errorf("non-matching record scored %v, want 0", got)
	}
}

func TestScoreCaseSensitivity(t *testing.T) {
	if got := scoreOf(t, "Hello World", "hello", SearchOptions{}); got == 0 {
		t.Error("case-insensitive default should match Hello")
	}
	if got := scoreOf(t, "Hello World", "hello", SearchOptions{CaseSensitive: true}); got != 0 {
		t.Errorf("case-sensitive match of hello against Hello scored %v, want 0", got)
	}
}

func TestScoreWholeWords(t *testing.T) {
	// "worldly" contains "world" as a substring but not as a whole word.
	if got := scoreOf(t, "worldly affairs", "world", SearchOptions{WholeWords: true}); got != 0 {
		t.Errorf("whole-word match inside worldly scored %v, want 0", got)
	}
	whole := scoreOf(t, "the world", "world", SearchOptions{WholeWords: true})
	sub := scoreOf(t, "the world", "world", SearchOptions{})
	if whole <= sub {
		t.Errorf("whole-word weight (%v) should exceed substring weight (%v)", whole, sub)
	}
}

func TestScoreRegex(t *testing.T) {
	re := scoreOf(t, "world word", "wor.d", SearchOptions{UseRegex: true})
	if re == 0 {
		t.Fatal("regex term failed to match")
	}
	sub := scoreOf(t, "world word", "world", SearchOptions{})
	if re <= sub {
		t.Errorf("regex weight (%v) should exceed substring weight (%v)", re, sub)
	}
}

func TestScoreRegexMatchSpans(t *testing.T) {
	rec := recordFor("m1", "err-42 and err-57", time.Now())
	opts := SearchOptions{UseRegex: true, HighlightMatches: true}.withDefaults()
	_, matches := newScorer(`err-\d+`, opts).score(rec)

	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].MatchedText != "err-42" || matches[0].Start != 0 || matches[0].End != 6 {
		t.Errorf("unexpected first span: %+v", matches[0])
	}
	if matches[1].Highlighted != "<mark>err-57</mark>" {
		t.Errorf("unexpected highlight %q", matches[1].Highlighted)
	}
}

func TestScoreInvalidRegexFallsBackToLiteral(t *testing.T) {
	// "world(" does not compile; the term degrades to substring matching.
	if got := scoreOf(t, "call world( now", "world(", SearchOptions{UseRegex: true}); got == 0 {
		t.Error("invalid regex should fall back to literal matching")
	}
	if got := scoreOf(t, "call world now", "world(", SearchOptions{UseRegex: true}); got != 0 {
		t.Errorf("literal fallback matched where it should not: %v", got)
	}
}

func TestScoreInvalidRegexFallbackIsCaseInsensitive(t *testing.T) {
	// The fallback compares against the lowered haystack, so an uppercase
	// term must be lowered too unless case sensitivity was requested.
	if got := scoreOf(t, "well Hello[ there", "Hello[", SearchOptions{UseRegex: true}); got == 0 {
		t.Error("mixed-case literal fallback should match case-insensitively")
	}
	if got := scoreOf(t, "well hello[ there", "Hello[", SearchOptions{UseRegex: true, CaseSensitive: true}); got != 0 {
		t.Errorf("case-sensitive fallback matched across case: %v", got)
	}
}

func TestScoreFuzzyThreshold(t *testing.T) {
	opts := SearchOptions{FuzzyMatch: true, FuzzyThreshold: 0.7}
	if got := scoreOf(t, "hello world", "wrold", opts); got == 0 {
		t.Error("fuzzy match at similarity 0.8 should clear threshold 0.7")
	}
	strict := SearchOptions{FuzzyMatch: true, FuzzyThreshold: 0.9}
	if got := scoreOf(t, "hello world", "wrold", strict); got != 0 {
		t.Errorf("similarity 0.8 should not clear threshold 0.9, scored %v", got)
	}
}

func TestScoreLengthDamping(t *testing.T) {
	short := scoreOf(t, "deploy failed", "deploy", SearchOptions{})
	long := scoreOf(t, "deploy failed because the upstream service timed out after several retries and the fallback was exhausted", "deploy", SearchOptions{})
	if short <= long {
		t.Errorf("short dense hit (%v) should outscore long sparse hit (%v)", short, long)
	}
}

func TestScoreHighlighting(t *testing.T) {
	rec := recordFor("m1", "hello world", time.Now())
	opts := SearchOptions{HighlightMatches: true}.withDefaults()
	_, matches := newScorer("world", opts).score(rec)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Highlighted != "<mark>world</mark>" {
		t.Errorf("unexpected highlight %q", matches[0].Highlighted)
	}
	if matches[0].Start != 6 || matches[0].End != 11 {
		t.Errorf("unexpected span [%d,%d)", matches[0].Start, matches[0].End)
	}
}
