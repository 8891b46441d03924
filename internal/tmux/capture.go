package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrCaptureTimeout is returned when capture-pane exceeds its timeout.
// Callers should keep their previous checksum rather than treating the pane
// as changed.
var ErrCaptureTimeout = errors.New("capture-pane timed out")

const (
	captureTimeout  = 3 * time.Second
	captureCacheTTL = 500 * time.Millisecond
)

// captureCache deduplicates and briefly caches capture-pane output per
// target. The automation engine and the emission path can both ask for the
// same window within one cycle; one subprocess serves both.
type captureCache struct {
	mu      sync.RWMutex
	content map[string]cachedCapture
	sf      singleflight.Group
}

type cachedCapture struct {
	text string
	at   time.Time
}

// CapturePane returns the visible content of the target pane. -J joins
// wrapped lines so the text is stable across widths, -p prints to stdout.
func (c *Client) CapturePane(target string) (string, error) {
	c.capture.mu.RLock()
	if cached, ok := c.capture.content[target]; ok && time.Since(cached.at) < captureCacheTTL {
		c.capture.mu.RUnlock()
		return cached.text, nil
	}
	c.capture.mu.RUnlock()

	v, err, _ := c.capture.sf.Do(target, func() (interface{}, error) {
		c.capture.mu.RLock()
		if cached, ok := c.capture.content[target]; ok && time.Since(cached.at) < captureCacheTTL {
			c.capture.mu.RUnlock()
			return cached.text, nil
		}
		c.capture.mu.RUnlock()

		ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
		defer cancel()
		cmd := exec.CommandContext(ctx, "tmux", c.args("capture-pane", "-t", target, "-p", "-J")...)
		out, err := cmd.Output()
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				tmuxLog.Debug("capture_timeout", slog.String("target", target))
				return "", ErrCaptureTimeout
			}
			return "", fmt.Errorf("capture-pane %s: %w", target, err)
		}

		text := string(out)
		c.capture.mu.Lock()
		if c.capture.content == nil {
			c.capture.content = make(map[string]cachedCapture)
		}
		c.capture.content[target] = cachedCapture{text: text, at: time.Now()}
		c.capture.mu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateCapture drops the cached content for a target, forcing the next
// CapturePane to hit tmux. Called after keystrokes are injected.
func (c *Client) InvalidateCapture(target string) {
	c.capture.mu.Lock()
	delete(c.capture.content, target)
	c.capture.mu.Unlock()
}
