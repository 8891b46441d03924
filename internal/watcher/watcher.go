package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/muxpilot/muxpilot/internal/events"
	"github.com/muxpilot/muxpilot/internal/logging"
	"github.com/muxpilot/muxpilot/internal/registry"
)

var watchLog = logging.ForComponent(logging.CompWatch)

// State tracks the watcher connection lifecycle. Transitions are
// one-directional per connection; there is no automatic reconnect.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateTearingDown
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTearingDown:
		return "tearing-down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	// requeryThrottle coalesces bursts of change notifications into a
	// single pane-list query.
	requeryThrottle = 250 * time.Millisecond

	// initialQueryDelay gives tmux time to finish the attach handshake
	// before the first pane-list query goes out.
	initialQueryDelay = 300 * time.Millisecond
)

// Watcher supervises one tmux session over a control-mode connection,
// mirroring its pane layout into a Registry and publishing a snapshot
// whenever the registry hash changes.
//
// All state is owned by the run goroutine; external callers interact
// only through Start, Stop, and the published events.
type Watcher struct {
	sessionID   string
	sessionName string
	reg         *registry.Registry
	pub         events.Publisher
	conn        transport

	mu      sync.Mutex
	state   State
	started bool

	// Run-loop-owned fields below. Never touched outside run().
	inReply   bool
	replySeen map[string]struct{}

	requeryPending bool
	requeryTimer   *time.Timer
	requeryC       chan struct{}

	stopOnce sync.Once
	stopC    chan struct{}
	doneC    chan struct{}
}

// New builds a watcher for the named session. sessionID is the stable
// identifier used in published snapshots; socketPath may be empty to use
// the default tmux server socket.
func New(sessionID, sessionName, socketPath string, pub events.Publisher) *Watcher {
	return newWithTransport(sessionID, sessionName, pub,
		newTmuxTransport(sessionName, socketPath))
}

func newWithTransport(sessionID, sessionName string, pub events.Publisher, conn transport) *Watcher {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Watcher{
		sessionID:   sessionID,
		sessionName: sessionName,
		reg:         registry.New(),
		pub:         pub,
		conn:        conn,
		state:       StateDisconnected,
		requeryC:    make(chan struct{}, 1),
		stopC:       make(chan struct{}),
		doneC:       make(chan struct{}),
	}
}

// State reports the current connection state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	prev := w.state
	w.state = s
	w.mu.Unlock()
	if prev != s {
		watchLog.Debug("state_transition",
			slog.String("session", w.sessionName),
			slog.String("from", prev.String()),
			slog.String("to", s.String()))
	}
}

// Start spawns the control-mode connection and the processing loop.
// It returns once the subprocess is up; the loop runs until the
// connection drops or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.setState(StateConnecting)
	if err := w.conn.start(); err != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("watcher %s: %w", w.sessionName, err)
	}
	w.setState(StateConnected)
	w.pub.Publish(events.NewConnState(w.sessionID, true, ""))
	watchLog.Info("watcher_connected", slog.String("session", w.sessionName))

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	go w.run(ctx)
	return nil
}

// Stop tears the watcher down and waits for the loop to exit. Calling it
// on a watcher that never started is a no-op; there is no loop to wait
// for.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopC) })
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if !started {
		return
	}
	<-w.doneC
}

// Done is closed when the processing loop has exited, whether through
// Stop or connection loss.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneC
}

// Registry exposes the mirrored pane state for read-side consumers.
func (w *Watcher) Registry() *registry.Registry {
	return w.reg
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneC)

	initial := time.NewTimer(initialQueryDelay)
	defer initial.Stop()

	reason := "stopped"
	defer func() {
		w.teardown(reason)
	}()

	for {
		select {
		case <-ctx.Done():
			reason = "context canceled"
			return
		case <-w.stopC:
			return
		case <-w.conn.done():
			reason = "connection lost"
			return
		case <-initial.C:
			if !w.sendPaneQuery() {
				reason = "write failed"
				return
			}
		case <-w.requeryC:
			w.requeryPending = false
			if !w.sendPaneQuery() {
				reason = "write failed"
				return
			}
		case line, ok := <-w.conn.lines():
			if !ok {
				reason = "connection lost"
				return
			}
			w.handleLine(line)
		}
	}
}

// scheduleRequery arms the throttle timer if no query is already
// pending, so bursts of notifications collapse into one pane list.
func (w *Watcher) scheduleRequery() {
	if w.requeryPending {
		return
	}
	w.requeryPending = true
	if w.requeryTimer == nil {
		w.requeryTimer = time.AfterFunc(requeryThrottle, func() {
			select {
			case w.requeryC <- struct{}{}:
			default:
			}
		})
	} else {
		w.requeryTimer.Reset(requeryThrottle)
	}
}

func (w *Watcher) sendPaneQuery() bool {
	err := w.conn.write(paneListCommand(w.sessionName))
	if err == nil {
		return true
	}
	if isBrokenPipe(err) {
		watchLog.Warn("control_pipe_broken",
			slog.String("session", w.sessionName),
			slog.String("error", err.Error()))
		return false
	}
	watchLog.Error("control_write_failed",
		slog.String("session", w.sessionName),
		slog.String("error", err.Error()))
	return false
}

// teardown releases the connection, clears mirrored state, and reports
// the disconnect. There is no reconnect attempt; the owner decides
// whether to start a fresh watcher.
func (w *Watcher) teardown(reason string) {
	w.setState(StateTearingDown)
	w.conn.close()
	if w.requeryTimer != nil {
		w.requeryTimer.Stop()
	}
	w.reg.Clear()
	w.setState(StateDisconnected)
	w.pub.Publish(events.NewConnState(w.sessionID, false, reason))
	watchLog.Info("watcher_disconnected",
		slog.String("session", w.sessionName),
		slog.String("reason", reason))
}

// emitSnapshot publishes the current registry view when its hash moved
// since the last emission, or unconditionally when force is set.
func (w *Watcher) emitSnapshot(force bool) {
	changed := w.reg.HashChanged()
	if !changed && !force {
		return
	}
	snap := w.reg.Snapshot(w.sessionID, w.sessionName)
	w.pub.Publish(events.NewSessionChanged(snap))
	watchLog.Debug("snapshot_emitted",
		slog.String("session", w.sessionName),
		slog.Int("panes", w.reg.PaneCount()),
		slog.Bool("forced", force && !changed))
}
