// Package dispatch replays matcher response templates into tmux panes:
// literal keystrokes, named keys, and the paste-buffer command, with timed
// gaps so TUI agents see discrete inputs rather than one merged burst.
package dispatch

import (
	"log/slog"
	"time"

	"github.com/muxpilot/muxpilot/internal/logging"
)

var dispatchLog = logging.ForComponent(logging.CompDispatch)

// DefaultTokenPause is the gap inserted after a key or command token when
// more tokens follow. tmux 3.2+ wraps literal sends in bracketed paste;
// without the gap a following Enter lands in the same PTY buffer and gets
// swallowed by async TUI frameworks.
const DefaultTokenPause = 300 * time.Millisecond

// Sender is the pane-injection surface the dispatcher needs. *tmux.Client
// satisfies it.
type Sender interface {
	SendLiteral(target, text string) error
	SendKey(target, key string) error
	PasteBuffer(target string) error
}

// Dispatcher replays response templates into panes.
type Dispatcher struct {
	sender Sender
	pause  time.Duration
}

// New creates a dispatcher with the default inter-token pause.
func New(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender, pause: DefaultTokenPause}
}

// WithPause overrides the inter-token pause (tests use zero).
func (d *Dispatcher) WithPause(pause time.Duration) *Dispatcher {
	d.pause = pause
	return d
}

// Dispatch tokenizes the template and replays it into the target pane.
// A failed token is logged and skipped; remaining tokens still run. Unknown
// key names degrade to literal text including their delimiters; unknown
// command names are dropped.
func (d *Dispatcher) Dispatch(target, template string) {
	tokens := Tokenize(template)
	for i, tok := range tokens {
		var err error
		pauseAfter := false

		switch tok.Kind {
		case TokenText:
			err = d.sender.SendLiteral(target, tok.Value)
		case TokenKey:
			if key, ok := TranslateKey(tok.Value); ok {
				err = d.sender.SendKey(target, key)
			} else {
				err = d.sender.SendLiteral(target, "<"+tok.Value+">")
			}
			pauseAfter = true
		case TokenCommand:
			switch tok.Value {
			case "paste-buffer":
				err = d.sender.PasteBuffer(target)
			default:
				dispatchLog.Debug("unknown_command_dropped",
					slog.String("command", tok.Value),
					slog.String("target", target))
				continue
			}
			pauseAfter = true
		}

		if err != nil {
			dispatchLog.Warn("dispatch_token_failed",
				slog.String("target", target),
				slog.Int("token", i),
				slog.String("error", err.Error()))
		}

		if pauseAfter && i < len(tokens)-1 && d.pause > 0 {
			time.Sleep(d.pause)
		}
	}
}
