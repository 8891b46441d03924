//go:build !windows

package tmux

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// detachKey is Ctrl-Q. Pressing it alone returns control to the caller
// without killing the tmux session.
const detachKey = 0x11

// startupGrace swallows terminal capability replies that arrive right
// after raw mode is enabled, so they are not forwarded into the pane.
const startupGrace = 50 * time.Millisecond

// Attach attaches the current terminal to a tmux session through a PTY.
// It returns when tmux exits, the context is canceled, or the user
// presses Ctrl-Q.
func (c *Client) Attach(ctx context.Context, session string) error {
	if !c.HasSession(session) {
		return fmt.Errorf("session %q does not exist", session)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, "tmux", c.args("attach-session", "-t", session)...)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	defer ptmx.Close()

	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()

	// Track terminal resizes so the pane follows the outer terminal.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			if ws, err := pty.GetsizeFull(os.Stdin); err == nil {
				_ = pty.Setsize(ptmx, ws)
			}
		}
	}()
	winch <- syscall.SIGWINCH

	detached := make(chan struct{})
	started := time.Now()

	go func() {
		_, _ = io.Copy(os.Stdout, ptmx)
	}()

	go func() {
		buf := make([]byte, 32)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if time.Since(started) < startupGrace {
				continue
			}
			if n == 1 && buf[0] == detachKey {
				close(detached)
				cancel()
				return
			}
			if _, err := ptmx.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-detached:
		return nil
	case <-ctx.Done():
		return nil
	case err := <-done:
		if err != nil {
			// Exit code 0 or 1 covers a normal tmux detach.
			if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() <= 1 {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		return err
	}
}
