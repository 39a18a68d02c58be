package search

import (
	"strings"
	"testing"
)

func TestSnippetShortContentReturnedWhole(t *testing.T) {
	got := snippetFromText("hello world", "world", 60)
	if got != "hello world" {
		t.Errorf("got %q, want full content", got)
	}
}

func TestSnippetWindowsAroundMatch(t *testing.T) {
	content := strings.Repeat("padding ", 30) + "needle" + strings.Repeat(" trailing", 30)
	got := snippetFromText(content, "needle", 20)

	if !strings.Contains(got, "needle") {
		t.Fatalf("snippet lost the match: %q", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipses on both sides: %q", got)
	}
	if len([]rune(got)) >= len([]rune(content)) {
		t.Error("snippet did not truncate")
	}
}

func TestSnippetNoMatchTruncatesHead(t *testing.T) {
	content := strings.Repeat("x", 300)
	got := snippetFromText(content, "absent", 60)
	if len([]rune(got)) != 123 { // 2*window + "..."
		t.Errorf("got %d runes, want 123", len([]rune(got)))
	}
}

func TestSnippetUTF8Safe(t *testing.T) {
	content := strings.Repeat("多字节内容 ", 40) + "目标词" + strings.Repeat(" 后续文本", 40)
	got := snippetFromText(content, "目标词", 20)
	if !strings.Contains(got, "目标词") {
		t.Errorf("snippet lost multibyte match: %q", got)
	}
}
