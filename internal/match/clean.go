package match

import (
	"strings"
)

// boxRunes is the set of box-drawing glyphs stripped from captured pane
// content before matching. Covers the corner/edge/junction characters the
// supervised agents draw dialog borders with, in both light and rounded
// variants.
var boxRunes = map[rune]bool{
	'─': true, '│': true, '┌': true, '┐': true, '└': true, '┘': true,
	'├': true, '┤': true, '┬': true, '┴': true, '┼': true,
	'╭': true, '╮': true, '╯': true, '╰': true,
	'━': true, '┃': true, '═': true, '║': true,
}

// CleanContent normalizes captured terminal content for matching:
// box-drawing glyphs are stripped, trailing whitespace is trimmed per line,
// and fully-empty leading and trailing lines are dropped. Interior empty
// lines are preserved. Idempotent.
func CleanContent(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := strings.Map(func(r rune) rune {
			if boxRunes[r] {
				return -1
			}
			return r
		}, line)
		cleaned = append(cleaned, strings.TrimRight(stripped, " \t"))
	}

	start := 0
	for start < len(cleaned) && cleaned[start] == "" {
		start++
	}
	end := len(cleaned)
	for end > start && cleaned[end-1] == "" {
		end--
	}
	return strings.Join(cleaned[start:end], "\n")
}

// Matches reports whether trigger appears anchored at the tail of content.
//
// Both slices are walked from their ends. Empty content lines never consume
// a trigger line. A trigger line is satisfied by substring containment
// (leading indentation and prompt decoration vary between captures, so exact
// equality is too strict; see the pattern definitions for the trade-off).
// The final trigger line must be satisfied by the final non-blank content
// line; earlier trigger lines may skip over intervening non-matching lines.
// The match fails once content is exhausted with trigger lines remaining.
func Matches(contentLines, triggerLines []string) bool {
	if len(triggerLines) == 0 {
		return false
	}

	ci := len(contentLines) - 1
	ti := len(triggerLines) - 1

	for ti >= 0 {
		if ci < 0 {
			return false
		}
		line := strings.TrimSpace(contentLines[ci])
		if line == "" {
			ci--
			continue
		}
		if strings.Contains(line, strings.TrimSpace(triggerLines[ti])) {
			ti--
			ci--
			continue
		}
		// The tail anchor: the last trigger line must match the last
		// non-blank content line, not merely appear somewhere above it.
		if ti == len(triggerLines)-1 {
			return false
		}
		ci--
	}
	return true
}
