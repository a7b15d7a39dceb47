package history

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func events(n int, text string) []Line {
	out := make([]Line, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Line{User: fmt.Sprintf("u%d", i), Text: text, Kind: KindEvent})
	}
	return out
}

func TestBuildWindowEmpty(t *testing.T) {
	if got := BuildWindow(nil, 300); got != "" {
		t.Errorf("BuildWindow(nil) = %q, want empty", got)
	}
}

func TestBuildWindowTakesLastFive(t *testing.T) {
	lines := events(7, "x")
	got := BuildWindow(lines, 300)
	want := "u2: x | u3: x | u4: x | u5: x | u6: x"
	if got != want {
		t.Errorf("BuildWindow = %q, want %q", got, want)
	}
}

func TestBuildWindowTruncatesAtWhitespace(t *testing.T) {
	lines := []Line{{User: "mod1", Text: "the old king dies and the realm mourns"}}
	got := BuildWindow(lines, 20)
	if got != "mod1: the old..." {
		t.Errorf("BuildWindow = %q, want %q", got, "mod1: the old...")
	}
}

func TestBuildWindowHardTruncatesWithoutWhitespace(t *testing.T) {
	lines := []Line{{User: "u", Text: strings.Repeat("a", 50)}}
	got := BuildWindow(lines, 10)
	// "u: " holds the only whitespace, so the cut falls back to it
	if got != "u:..." {
		t.Errorf("BuildWindow = %q, want %q", got, "u:...")
	}
	lines = []Line{{User: strings.Repeat("b", 40), Text: "c"}}
	got = BuildWindow(lines, 10)
	if got != "bbbbbbb..." {
		t.Errorf("BuildWindow = %q, want hard cut", got)
	}
}

func TestBuildWindowNeverExceedsBudget(t *testing.T) {
	texts := []string{"short", "a much longer event summary with many words in it", strings.Repeat("ñ", 120), "x y z"}
	for budget := 1; budget <= 320; budget += 7 {
		for n := 1; n <= 8; n++ {
			for _, text := range texts {
				got := BuildWindow(events(n, text), budget)
				if c := utf8.RuneCountInString(got); c > budget {
					t.Fatalf("budget %d, n %d: length %d exceeds budget: %q", budget, n, c, got)
				}
				full := BuildWindow(events(n, text), 1<<20)
				if utf8.RuneCountInString(full) > budget && budget > 3 && !strings.HasSuffix(got, "...") {
					t.Fatalf("budget %d: truncated output missing ellipsis: %q", budget, got)
				}
			}
		}
	}
}

func TestBuildWindowDeterministic(t *testing.T) {
	lines := events(6, "a b c d e f g h")
	if BuildWindow(lines, 40) != BuildWindow(lines, 40) {
		t.Error("BuildWindow must be deterministic")
	}
}

func TestBuildWindowDefaultBudget(t *testing.T) {
	lines := []Line{{User: "u", Text: strings.Repeat("word ", 100)}}
	got := BuildWindow(lines, 0)
	if c := utf8.RuneCountInString(got); c > DefaultWindowBudget {
		t.Errorf("default budget exceeded: %d", c)
	}
}
