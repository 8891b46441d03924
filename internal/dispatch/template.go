package dispatch

import "strings"

// TokenKind discriminates response template tokens.
type TokenKind int

const (
	// TokenText is literal text sent as keystrokes.
	TokenText TokenKind = iota
	// TokenKey is a named key, e.g. <Enter>.
	TokenKey
	// TokenCommand is a named command, e.g. {paste-buffer}.
	TokenCommand
)

// Token is one segment of a parsed response template.
type Token struct {
	Kind  TokenKind
	Value string
}

// Tokenize splits a response template into literal text, <KeyName> and
// {commandName} tokens, left to right. An unterminated delimiter is not an
// error: the rest of the template becomes literal text.
func Tokenize(template string) []Token {
	var tokens []Token
	var text strings.Builder

	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Token{Kind: TokenText, Value: text.String()})
			text.Reset()
		}
	}

	i := 0
	for i < len(template) {
		c := template[i]
		var closer byte
		var kind TokenKind
		switch c {
		case '<':
			closer, kind = '>', TokenKey
		case '{':
			closer, kind = '}', TokenCommand
		default:
			text.WriteByte(c)
			i++
			continue
		}

		end := strings.IndexByte(template[i+1:], closer)
		if end < 0 {
			// Unterminated: the rest is literal.
			text.WriteString(template[i:])
			break
		}
		flush()
		tokens = append(tokens, Token{Kind: kind, Value: template[i+1 : i+1+end]})
		i += end + 2
	}
	flush()
	return tokens
}

// keyNames maps template key names to tmux key syntax. Aliases cover the
// spellings seen in matcher files; lookups are case-sensitive on purpose,
// matching tmux's own key-name handling.
var keyNames = map[string]string{
	"Enter":     "Enter",
	"Return":    "Enter",
	"Tab":       "Tab",
	"ShiftTab":  "BTab",
	"BTab":      "BTab",
	"Esc":       "Escape",
	"Escape":    "Escape",
	"Up":        "Up",
	"Down":      "Down",
	"Left":      "Left",
	"Right":     "Right",
	"Space":     "Space",
	"Backspace": "BSpace",
	"BSpace":    "BSpace",
	"Home":      "Home",
	"End":       "End",
	"PageUp":    "PPage",
	"PageDown":  "NPage",
}

// TranslateKey resolves a template key name to tmux key syntax. Names in
// tmux's own modifier syntax (C-c, M-x) pass through. Unknown names return
// false; the dispatcher degrades them to literal text.
func TranslateKey(name string) (string, bool) {
	if k, ok := keyNames[name]; ok {
		return k, true
	}
	if len(name) > 2 && (strings.HasPrefix(name, "C-") || strings.HasPrefix(name, "M-") || strings.HasPrefix(name, "S-")) {
		return name, true
	}
	return "", false
}
