package tmux

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/muxpilot/muxpilot/internal/logging"
)

var tmuxLog = logging.ForComponent(logging.CompTmux)

// ErrNoServer is returned when the tmux server socket is absent.
var ErrNoServer = errors.New("tmux server not running")

// Client issues one-shot tmux queries and commands. The zero value targets
// the default server; SocketPath overrides it (mainly for tests, which run
// against a private server).
type Client struct {
	// SocketPath is the tmux server socket (-S). Empty means default.
	SocketPath string

	capture captureCache
}

// PaneInfo is one row of a pane enumeration.
type PaneInfo struct {
	SessionName  string
	WindowIndex  int
	PaneIndex    int
	WindowName   string
	Command      string
	Width        int
	Height       int
	WindowID     string
	PaneID       string
	PanePID      int
	PaneActive   bool
	WindowActive bool
}

// SessionInfo is one row of a session enumeration.
type SessionInfo struct {
	ID       string
	Name     string
	Attached bool
}

// panesFormat requests the fields PaneInfo carries, tab-separated.
const panesFormat = "#{session_name}\t#{window_index}\t#{pane_index}\t#{window_name}\t#{pane_current_command}\t#{pane_width}\t#{pane_height}\t#{window_id}\t#{pane_id}\t#{pane_pid}\t#{pane_active}\t#{window_active}"

func (c *Client) args(rest ...string) []string {
	if c.SocketPath == "" {
		return rest
	}
	return append([]string{"-S", c.SocketPath}, rest...)
}

func (c *Client) command(rest ...string) *exec.Cmd {
	return exec.Command("tmux", c.args(rest...)...)
}

// ServerSocket returns the path of the tmux server socket this client
// targets. With no explicit SocketPath the default location is derived the
// way tmux does: $TMUX_TMPDIR or /tmp, then tmux-<uid>/default.
func (c *Client) ServerSocket() string {
	if c.SocketPath != "" {
		return c.SocketPath
	}
	dir := os.Getenv("TMUX_TMPDIR")
	if dir == "" {
		dir = "/tmp"
	}
	return fmt.Sprintf("%s/tmux-%d/default", dir, os.Getuid())
}

// ServerPresent reports whether the server socket exists. A stat avoids
// spawning a subprocess on every poll cycle; a stale socket is caught later
// by the first failing query.
func (c *Client) ServerPresent() bool {
	_, err := os.Stat(c.ServerSocket())
	return err == nil
}

// CurrentSession resolves the session the calling process lives in.
// Requires being run inside tmux (the $TMUX environment check is left to
// the caller; outside tmux the query fails).
func (c *Client) CurrentSession() (id, name string, err error) {
	out, err := c.command("display-message", "-p", "#{session_id}\t#{session_name}").Output()
	if err != nil {
		return "", "", fmt.Errorf("resolve current session: %w", err)
	}
	parts := strings.SplitN(strings.TrimSpace(string(out)), "\t", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("unexpected display-message output: %q", out)
	}
	return parts[0], parts[1], nil
}

// ListAllPanes enumerates every pane on the server.
func (c *Client) ListAllPanes() ([]PaneInfo, error) {
	out, err := c.command("list-panes", "-a", "-F", panesFormat).Output()
	if err != nil {
		return nil, fmt.Errorf("list-panes -a: %w", err)
	}
	return parsePaneLines(string(out)), nil
}

// ListSessionPanes enumerates the panes of one session.
func (c *Client) ListSessionPanes(session string) ([]PaneInfo, error) {
	out, err := c.command("list-panes", "-s", "-t", session, "-F", panesFormat).Output()
	if err != nil {
		return nil, fmt.Errorf("list-panes -s -t %s: %w", session, err)
	}
	return parsePaneLines(string(out)), nil
}

// parsePaneLines parses tab-separated pane rows. Malformed rows are skipped.
func parsePaneLines(out string) []PaneInfo {
	var panes []PaneInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 12 {
			continue
		}
		winIdx, err1 := strconv.Atoi(fields[1])
		paneIdx, err2 := strconv.Atoi(fields[2])
		width, err3 := strconv.Atoi(fields[5])
		height, err4 := strconv.Atoi(fields[6])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		pid, _ := strconv.Atoi(fields[9])
		panes = append(panes, PaneInfo{
			SessionName:  fields[0],
			WindowIndex:  winIdx,
			PaneIndex:    paneIdx,
			WindowName:   fields[3],
			Command:      fields[4],
			Width:        width,
			Height:       height,
			WindowID:     fields[7],
			PaneID:       fields[8],
			PanePID:      pid,
			PaneActive:   fields[10] == "1",
			WindowActive: fields[11] == "1",
		})
	}
	return panes
}

// ListSessions enumerates sessions with their attach state.
func (c *Client) ListSessions() ([]SessionInfo, error) {
	out, err := c.command("list-sessions", "-F", "#{session_id}\t#{session_name}\t#{session_attached}").Output()
	if err != nil {
		// No server or no sessions; tmux exits non-zero for both.
		return nil, ErrNoServer
	}
	var sessions []SessionInfo
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			continue
		}
		sessions = append(sessions, SessionInfo{
			ID:       fields[0],
			Name:     fields[1],
			Attached: fields[2] != "0",
		})
	}
	return sessions, nil
}

// HasAttachedClient reports whether any client is attached to the session.
// Used as the human-control signal: an attached client means a person may be
// driving, so automation stands down.
func (c *Client) HasAttachedClient(session string) bool {
	out, err := c.command("list-clients", "-t", session, "-F", "#{client_tty}").Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) != ""
}

// ResizeWindow resizes a window to the given size. Target is
// "session:windowIndex".
func (c *Client) ResizeWindow(target string, width, height int) error {
	err := c.command("resize-window", "-t", target,
		"-x", strconv.Itoa(width), "-y", strconv.Itoa(height)).Run()
	if err != nil {
		return fmt.Errorf("resize-window %s: %w", target, err)
	}
	return nil
}

// SendLiteral sends text as literal keystrokes. The -l flag stops tmux from
// interpreting key names, and -- guards against text starting with a dash.
func (c *Client) SendLiteral(target, text string) error {
	if err := c.command("send-keys", "-l", "-t", target, "--", text).Run(); err != nil {
		return fmt.Errorf("send literal to %s: %w", target, err)
	}
	return nil
}

// SendKey sends a single named key (tmux key syntax, e.g. "Enter", "BTab",
// "C-c").
func (c *Client) SendKey(target, key string) error {
	if err := c.command("send-keys", "-t", target, key).Run(); err != nil {
		return fmt.Errorf("send key %s to %s: %w", key, target, err)
	}
	return nil
}

// PasteBuffer replays the tmux paste buffer into the target pane.
func (c *Client) PasteBuffer(target string) error {
	if err := c.command("paste-buffer", "-t", target).Run(); err != nil {
		return fmt.Errorf("paste-buffer to %s: %w", target, err)
	}
	return nil
}

// KillSession terminates a session.
func (c *Client) KillSession(session string) error {
	if err := c.command("kill-session", "-t", session).Run(); err != nil {
		return fmt.Errorf("kill-session %s: %w", session, err)
	}
	return nil
}

// NewSession creates a detached session running the given command in dir.
func (c *Client) NewSession(name, dir, cmd string) error {
	cmdArgs := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		cmdArgs = append(cmdArgs, "-c", dir)
	}
	if cmd != "" {
		cmdArgs = append(cmdArgs, cmd)
	}
	if err := c.command(cmdArgs...).Run(); err != nil {
		return fmt.Errorf("new-session %s: %w", name, err)
	}
	return nil
}

// HasSession reports whether the named session exists.
func (c *Client) HasSession(name string) bool {
	return c.command("has-session", "-t", "="+name).Run() == nil
}
