package history

import (
	"strings"
	"unicode"
)

const (
	// DefaultWindowBudget is the character budget used when none is given.
	DefaultWindowBudget = 300
	// WindowEntries is how many of the most recent lines a window includes.
	WindowEntries = 5

	windowSeparator = " | "
	ellipsis        = "..."
)

// BuildWindow joins the last WindowEntries lines as "user: text" pairs and
// fits the result into budget characters. Truncated output ends with "..."
// and is cut at the last whitespace boundary when one exists.
func BuildWindow(lines []Line, budget int) string {
	if len(lines) == 0 {
		return ""
	}
	if budget <= 0 {
		budget = DefaultWindowBudget
	}
	if len(lines) > WindowEntries {
		lines = lines[len(lines)-WindowEntries:]
	}
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.User+": "+l.Text)
	}
	joined := []rune(strings.Join(parts, windowSeparator))
	if len(joined) <= budget {
		return string(joined)
	}
	return truncateRunes(joined, budget)
}

// truncateRunes cuts r so that the result plus the ellipsis fits in limit.
func truncateRunes(r []rune, limit int) string {
	marker := []rune(ellipsis)
	if limit <= len(marker) {
		return string(marker[:limit])
	}
	keep := limit - len(marker)
	cut := r[:keep]
	// a boundary right after the cut keeps the last word whole
	if !unicode.IsSpace(r[keep]) {
		for i := len(cut) - 1; i > 0; i-- {
			if unicode.IsSpace(cut[i]) {
				cut = cut[:i]
				break
			}
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + ellipsis
}
