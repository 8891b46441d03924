package watcher

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// transport is the control-mode subprocess surface the watcher drives.
// Factored out so the protocol loop can be tested without a tmux server.
type transport interface {
	start() error
	lines() <-chan string
	write(command string) error
	close()
	done() <-chan struct{}
}

// tmuxTransport wraps a persistent `tmux -C attach-session -t <session>`
// process. Stdout lines are delivered on a channel; commands go to stdin.
type tmuxTransport struct {
	sessionName string
	socketPath  string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	lineC     chan string
	doneC     chan struct{}
	quitC     chan struct{}
	closeOnce sync.Once
}

func newTmuxTransport(sessionName, socketPath string) *tmuxTransport {
	return &tmuxTransport{
		sessionName: sessionName,
		socketPath:  socketPath,
		lineC:       make(chan string, 256),
		doneC:       make(chan struct{}),
		quitC:       make(chan struct{}),
	}
}

func (t *tmuxTransport) start() error {
	args := []string{}
	if t.socketPath != "" {
		args = append(args, "-S", t.socketPath)
	}
	args = append(args, "-C", "attach-session", "-t", t.sessionName)

	cmd := exec.Command("tmux", args...)
	// Own process group so the whole tree dies on close.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("start tmux -C: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout

	go t.reader()
	return nil
}

// reader pumps subprocess stdout lines into lineC until EOF. EOF, a
// scanner error, or close() ends the goroutine and closes doneC, which
// the watcher treats as connection loss. The quitC select keeps the
// reader from blocking forever on a full lineC once the consumer is
// gone.
func (t *tmuxTransport) reader() {
	defer close(t.doneC)

	scanner := bufio.NewScanner(t.stdout)
	// Pane-list replies for large servers can be sizable.
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case t.lineC <- scanner.Text():
		case <-t.quitC:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		watchLog.Debug("transport_scanner_error",
			slog.String("session", t.sessionName),
			slog.String("error", err.Error()))
	}
}

func (t *tmuxTransport) lines() <-chan string {
	return t.lineC
}

func (t *tmuxTransport) write(command string) error {
	_, err := fmt.Fprintln(t.stdin, command)
	return err
}

func (t *tmuxTransport) done() <-chan struct{} {
	return t.doneC
}

// close tears the subprocess down: stdin first (tells tmux to detach),
// then SIGKILL on the process group, then Wait to reap.
func (t *tmuxTransport) close() {
	t.closeOnce.Do(func() {
		close(t.quitC)
		if t.stdin != nil {
			t.stdin.Close()
		}
		if t.cmd != nil && t.cmd.Process != nil {
			if pgid, err := syscall.Getpgid(t.cmd.Process.Pid); err == nil {
				_ = syscall.Kill(-pgid, syscall.SIGKILL)
			} else {
				_ = t.cmd.Process.Kill()
			}
			_ = t.cmd.Wait()
		}
	})
}

// isBrokenPipe classifies a write failure as connection loss.
func isBrokenPipe(err error) bool {
	if err == nil {
		return false
	}
	if err == syscall.EPIPE {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "file already closed") ||
		strings.Contains(msg, "closed pipe")
}
