package search

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is an incoming chat message handed to the engine by the message
// store. The engine never owns durable chat storage; it only indexes what it
// is given.
type Message struct {
	ID            string            `json:"id"`
	ChatID        string            `json:"chat_id"`
	Role          Role              `json:"role"`
	Content       string            `json:"content"`
	Timestamp     time.Time         `json:"timestamp"`
	Type          string            `json:"type,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Priority      string            `json:"priority,omitempty"`
	HasAttachment bool              `json:"has_attachment,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// IndexRecord is the forward record kept per message id. Built and replaced
// only by the batch indexer; read-only everywhere else.
type IndexRecord struct {
	MessageID         string            `json:"message_id"`
	ChatID            string            `json:"chat_id"`
	Role              Role              `json:"role"`
	Timestamp         time.Time         `json:"timestamp"`
	Type              string            `json:"type,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Priority          string            `json:"priority,omitempty"`
	HasAttachment     bool              `json:"has_attachment,omitempty"`
	Length            int               `json:"length"`
	Content           string            `json:"content"`
	NormalizedContent string            `json:"normalized_content"`
	Tokens            []string          `json:"tokens"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// SortField selects the sort key for results.
type SortField string

const (
	SortByRelevance SortField = "relevance"
	SortByDate      SortField = "date"
	SortByLength    SortField = "length"
)

// SortOrder selects sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SearchFilters are AND-combined predicates over the forward record.
// A zero field means "no constraint".
type SearchFilters struct {
	Roles         []Role     `json:"roles,omitempty"`
	DateStart     *time.Time `json:"date_start,omitempty"`
	DateEnd       *time.Time `json:"date_end,omitempty"`
	ChatIDs       []string   `json:"chat_ids,omitempty"`
	Types         []string   `json:"types,omitempty"`
	HasAttachment *bool      `json:"has_attachment,omitempty"`
	MinLength     *int       `json:"min_length,omitempty"`
	MaxLength     *int       `json:"max_length,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Priorities    []string   `json:"priorities,omitempty"`
}

// SearchOptions tune matching and result shaping.
type SearchOptions struct {
	CaseSensitive    bool      `json:"case_sensitive,omitempty"`
	WholeWords       bool      `json:"whole_words,omitempty"`
	UseRegex         bool      `json:"use_regex,omitempty"`
	FuzzyMatch       bool      `json:"fuzzy_match,omitempty"`
	FuzzyThreshold   float64   `json:"fuzzy_threshold,omitempty"`
	MaxResults       int       `json:"max_results,omitempty"`
	SortBy           SortField `json:"sort_by,omitempty"`
	SortOrder        SortOrder `json:"sort_order,omitempty"`
	HighlightMatches bool      `json:"highlight_matches,omitempty"`
	ContextLines     int       `json:"context_lines,omitempty"`
}

// SearchQuery is the immutable request value for one search call.
type SearchQuery struct {
	Text    string        `json:"text"`
	Filters SearchFilters `json:"filters,omitempty"`
	Options SearchOptions `json:"options,omitempty"`
}

// DefaultFuzzyThreshold is applied when FuzzyMatch is set and no threshold given.
const DefaultFuzzyThreshold = 0.7

// withDefaults fills unset option fields with their documented defaults.
func (o SearchOptions) withDefaults() SearchOptions {
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if o.SortBy == "" {
		o.SortBy = SortByRelevance
	}
	if o.SortOrder == "" {
		o.SortOrder = SortDesc
	}
	return o
}

// SearchMatch locates one matched span inside a record field.
type SearchMatch struct {
	Field       string `json:"field"`
	MatchedText string `json:"matched_text"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Highlighted string `json:"highlighted,omitempty"`
}

// ResultContext holds surrounding messages from the same chat.
type ResultContext struct {
	Before []Message `json:"before,omitempty"`
	After  []Message `json:"after,omitempty"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Record  *IndexRecord   `json:"record"`
	Score   float64        `json:"score"`
	Matches []SearchMatch  `json:"matches,omitempty"`
	Snippet string         `json:"snippet,omitempty"`
	Context *ResultContext `json:"context,omitempty"`
}

// IndexStats is published to observers after every drained batch.
type IndexStats struct {
	IndexedCount int       `json:"indexed_count"`
	TokenCount   int       `json:"token_count"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ContextProvider is the capability the external chat store supplies so the
// engine can attach surrounding messages to results. The engine works without
// one; context attachment is then a no-op.
type ContextProvider interface {
	Surrounding(chatID, messageID string, lines int) (before, after []Message, err error)
}

// Signature returns the canonical cache key for a query: a deterministic JSON
// encoding with set-valued fields sorted, so structurally identical queries
// collide regardless of how the caller assembled them.
func (q SearchQuery) Signature() string {
	c := q
	c.Filters.Roles = sortedRoles(q.Filters.Roles)
	c.Filters.ChatIDs = sortedStrings(q.Filters.ChatIDs)
	c.Filters.Types = sortedStrings(q.Filters.Types)
	c.Filters.Tags = sortedStrings(q.Filters.Tags)
	c.Filters.Priorities = sortedStrings(q.Filters.Priorities)
	c.Options = q.Options.withDefaults()
	b, err := json.Marshal(c)
	if err != nil {
		// Marshal of plain structs cannot fail; fall back to the raw text.
		return q.Text
	}
	return string(b)
}
