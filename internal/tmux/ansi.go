package tmux

import "strings"

// StripANSI removes ANSI escape sequences in a single pass. Captured pane
// content can contain color codes and cursor movement; checksums and
// matching must see plain text.
//
// Regex is deliberately avoided: malformed escape sequences in raw terminal
// output can trigger catastrophic backtracking.
func StripANSI(content string) string {
	// Fast path when no ESC or 8-bit CSI present.
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9b') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		switch content[i] {
		case '\x1b':
			if i+1 < len(content) {
				switch content[i+1] {
				case '[':
					// CSI: skip to terminating letter.
					i = skipCSI(content, i+2)
					continue
				case ']':
					// OSC: terminated by BEL or ST.
					if bell := strings.Index(content[i:], "\x07"); bell >= 0 {
						i += bell + 1
						continue
					}
					if st := strings.Index(content[i:], "\x1b\\"); st >= 0 {
						i += st + 2
						continue
					}
					// Unterminated OSC: drop the rest.
					return b.String()
				default:
					// Two-byte escape.
					i += 2
					continue
				}
			}
			i++
		case '\x9b':
			i = skipCSI(content, i+1)
		default:
			b.WriteByte(content[i])
			i++
		}
	}
	return b.String()
}

// skipCSI advances past a CSI parameter sequence starting at i, returning
// the index after the terminating letter.
func skipCSI(s string, i int) int {
	for i < len(s) {
		c := s[i]
		i++
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			break
		}
	}
	return i
}
