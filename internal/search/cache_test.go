package search

import (
	"testing"
)

func TestQueryCacheFIFOEviction(t *testing.T) {
	c := newQueryCache(2)
	c.put("a", []SearchResult{})
	c.put("b", []SearchResult{})
	c.put("c", []SearchResult{})

	if _, ok := c.get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.get("b"); !ok {
		t.Error("entry b should survive")
	}
	if _, ok := c.get("c"); !ok {
		t.Error("entry c should survive")
	}
}

func TestQueryCacheUpdateDoesNotEvict(t *testing.T) {
	c := newQueryCache(2)
	c.put("a", []SearchResult{})
	c.put("b", []SearchResult{})
	c.put("a", []SearchResult{{Score: 1}})

	if c.len() != 2 {
		t.Errorf("len = %d, want 2", c.len())
	}
	got, ok := c.get("a")
	if !ok || len(got) != 1 {
		t.Error("updated entry lost")
	}
}

func TestQueryCacheIsolatesStoredResults(t *testing.T) {
	c := newQueryCache(4)
	original := []SearchResult{{Score: 1}, {Score: 2}}
	c.put("sig", original)

	// Mutating the caller's slice after put must not reach the cache.
	original[0].Score = -1

	got, ok := c.get("sig")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got[0].Score != 1 {
		t.Errorf("stored entry mutated through caller slice: %v", got[0].Score)
	}

	// Mutating what get hands out must not reach the cache either.
	got[1].Score = -2
	again, _ := c.get("sig")
	if again[1].Score != 2 {
		t.Errorf("stored entry mutated through returned slice: %v", again[1].Score)
	}
}

func TestQueryCacheShrinkCapacity(t *testing.T) {
	c := newQueryCache(4)
	for _, sig := range []string{"a", "b", "c", "d"} {
		c.put(sig, nil)
	}
	c.setCapacity(2)

	if c.len() != 2 {
		t.Fatalf("len = %d after shrink, want 2", c.len())
	}
	if _, ok := c.get("d"); !ok {
		t.Error("newest entry should survive shrink")
	}
}

func TestSignatureIgnoresSetOrder(t *testing.T) {
	q1 := SearchQuery{
		Text:    "deploy",
		Filters: SearchFilters{Roles: []Role{RoleUser, RoleAssistant}, Tags: []string{"b", "a"}},
	}
	q2 := SearchQuery{
		Text:    "deploy",
		Filters: SearchFilters{Roles: []Role{RoleAssistant, RoleUser}, Tags: []string{"a", "b"}},
	}
	if q1.Signature() != q2.Signature() {
		t.Error("signatures should be order-insensitive for set-valued filters")
	}
}

func TestSignatureAppliesOptionDefaults(t *testing.T) {
	q1 := SearchQuery{Text: "deploy"}
	q2 := SearchQuery{Text: "deploy", Options: SearchOptions{SortBy: SortByRelevance, SortOrder: SortDesc, FuzzyThreshold: DefaultFuzzyThreshold}}
	if q1.Signature() != q2.Signature() {
		t.Error("explicit defaults should collide with implicit defaults")
	}
}

func TestRecentLogDedupAndOrder(t *testing.T) {
	l := newRecentLog(10)
	l.add(SearchQuery{Text: "first"})
	l.add(SearchQuery{Text: "second"})
	l.add(SearchQuery{Text: "first"})

	got := l.list()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 after dedup", len(got))
	}
	if got[0].Text != "first" || got[1].Text != "second" {
		t.Errorf("unexpected order: %q, %q", got[0].Text, got[1].Text)
	}
}

func TestRecentLogCapacity(t *testing.T) {
	l := newRecentLog(2)
	l.add(SearchQuery{Text: "a"})
	l.add(SearchQuery{Text: "b"})
	l.add(SearchQuery{Text: "c"})

	got := l.list()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Text != "c" || got[1].Text != "b" {
		t.Errorf("unexpected order: %q, %q", got[0].Text, got[1].Text)
	}
}

func TestRecentLogSuggest(t *testing.T) {
	l := newRecentLog(10)
	l.add(SearchQuery{Text: "deploy status"})
	l.add(SearchQuery{Text: "lunch plans"})
	l.add(SearchQuery{Text: "deployment guide"})

	got := l.suggest("deploy", 5)
	if len(got) != 2 {
		t.Fatalf("got %d suggestions, want 2: %v", len(got), got)
	}
	for _, s := range got {
		if s != "deploy status" && s != "deployment guide" {
			t.Errorf("unexpected suggestion %q", s)
		}
	}
	if got := l.suggest("", 5); got != nil {
		t.Errorf("empty partial should suggest nothing, got %v", got)
	}
}
