package watcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muxpilot/muxpilot/internal/events"
)

type fakeConn struct {
	lineC chan string
	doneC chan struct{}

	mu     sync.Mutex
	wrote  []string
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		lineC: make(chan string, 64),
		doneC: make(chan struct{}),
	}
}

func (f *fakeConn) start() error          { return nil }
func (f *fakeConn) lines() <-chan string  { return f.lineC }
func (f *fakeConn) done() <-chan struct{} { return f.doneC }

func (f *fakeConn) write(command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wrote = append(f.wrote, command)
	return nil
}

func (f *fakeConn) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.wrote))
	copy(out, f.wrote)
	return out
}

type recordPub struct {
	mu  sync.Mutex
	evs []events.Event
}

func (p *recordPub) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
}

func (p *recordPub) byType(typ string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func newTestWatcher(t *testing.T) (*Watcher, *fakeConn, *recordPub) {
	t.Helper()
	conn := newFakeConn()
	pub := &recordPub{}
	w := newWithTransport("sess-1", "work", pub, conn)
	return w, conn, pub
}

// feedReply pushes a full pane-list reply through the line handler.
func feedReply(w *Watcher, rows ...string) {
	w.handleLine("%begin 1700000000 1 0")
	for _, row := range rows {
		w.handleLine(row)
	}
	w.handleLine("%end 1700000000 1 0")
}

func TestParsePaneRow(t *testing.T) {
	rec, windowID, ok := parsePaneRow("PANE %3 work:2.0 editor nvim 208x62 @5 1 1")
	require.True(t, ok)
	assert.Equal(t, "%3", rec.PaneID)
	assert.Equal(t, "work", rec.Session)
	assert.Equal(t, 2, rec.WindowIndex)
	assert.Equal(t, 0, rec.PaneIndex)
	assert.Equal(t, "editor", rec.WindowName)
	assert.Equal(t, "nvim", rec.Command)
	assert.Equal(t, 208, rec.Width)
	assert.Equal(t, 62, rec.Height)
	assert.Equal(t, "@5", windowID)
	assert.True(t, rec.PaneActive)
	assert.True(t, rec.WindowActive)

	bad := []string{
		"",
		"PANE",
		"PANE %3 work:2.0 editor nvim 208x62 @5 1",          // too few fields
		"PANE %3 work:2.0 my editor nvim 208x62 @5 1 1",     // spaced window name
		"PANE 3 work:2.0 editor nvim 208x62 @5 1 1",         // missing % prefix
		"PANE %3 work-2.0 editor nvim 208x62 @5 1 1",        // no colon
		"PANE %3 work:x.0 editor nvim 208x62 @5 1 1",        // bad window index
		"PANE %3 work:2.0 editor nvim 208字62 @5 1 1",        // bad geometry
		"PANE %3 work:2.0 editor nvim 208x62 5 1 1",         // missing @ prefix
		"NOTPANE %3 work:2.0 editor nvim 208x62 @5 1 1",     // wrong tag
	}
	for _, line := range bad {
		_, _, ok := parsePaneRow(line)
		assert.False(t, ok, "line %q should be rejected", line)
	}
}

func TestPaneListReplyMirrorsAndEmits(t *testing.T) {
	w, _, pub := newTestWatcher(t)

	feedReply(w,
		"PANE %1 work:1.0 shell zsh 208x62 @1 1 1",
		"PANE %2 work:2.0 editor nvim 208x62 @2 0 0",
	)

	require.Equal(t, 2, w.reg.PaneCount())
	assert.True(t, w.reg.InitialListSeen())
	require.Len(t, pub.byType(events.TypeSessionChanged), 1)

	// Identical reply: hash unchanged, no new emission.
	feedReply(w,
		"PANE %1 work:1.0 shell zsh 208x62 @1 1 1",
		"PANE %2 work:2.0 editor nvim 208x62 @2 0 0",
	)
	assert.Len(t, pub.byType(events.TypeSessionChanged), 1)

	// Pane %2 vanished: pruned, and the hash moves.
	feedReply(w, "PANE %1 work:1.0 shell zsh 208x62 @1 1 1")
	assert.Equal(t, 1, w.reg.PaneCount())
	assert.Len(t, pub.byType(events.TypeSessionChanged), 2)
	_, known := w.reg.WindowIdentityFor("@2")
	assert.False(t, known)
}

func TestAttachHandshakeEmitsNothing(t *testing.T) {
	w, _, pub := newTestWatcher(t)

	// The attach acknowledgement is an empty reply bracket.
	w.handleLine("%begin 1700000000 0 0")
	w.handleLine("%end 1700000000 0 0")

	assert.Empty(t, pub.byType(events.TypeSessionChanged))
	assert.False(t, w.reg.InitialListSeen())
}

func TestErrorReplyDiscarded(t *testing.T) {
	w, _, pub := newTestWatcher(t)

	w.handleLine("%begin 1700000000 1 0")
	w.handleLine("PANE %1 work:1.0 shell zsh 208x62 @1 1 1")
	w.handleLine("%error 1700000000 1 0")

	assert.Empty(t, pub.byType(events.TypeSessionChanged))
	// The row still landed in the registry but no emission happened and
	// the initial list is not considered seen.
	assert.False(t, w.reg.InitialListSeen())
}

func TestWindowCloseUnknownIDIsNoOp(t *testing.T) {
	w, _, pub := newTestWatcher(t)
	feedReply(w, "PANE %1 work:1.0 shell zsh 208x62 @1 1 1")
	before := len(pub.byType(events.TypeSessionChanged))

	w.handleLine("%window-close @99")

	assert.Equal(t, 1, w.reg.PaneCount())
	assert.Len(t, pub.byType(events.TypeSessionChanged), before)
}

func TestWindowCloseRemovesAndEmits(t *testing.T) {
	w, _, pub := newTestWatcher(t)
	feedReply(w,
		"PANE %1 work:1.0 shell zsh 208x62 @1 1 1",
		"PANE %2 work:2.0 editor nvim 208x62 @2 0 0",
	)
	before := len(pub.byType(events.TypeSessionChanged))

	w.handleLine("%window-close @2")

	assert.Equal(t, 1, w.reg.PaneCount())
	assert.Len(t, pub.byType(events.TypeSessionChanged), before+1)
}

func TestWindowRenamedEmits(t *testing.T) {
	w, _, pub := newTestWatcher(t)
	feedReply(w, "PANE %1 work:1.0 shell zsh 208x62 @1 1 1")
	before := len(pub.byType(events.TypeSessionChanged))

	w.handleLine("%window-renamed @1 build logs")

	require.Len(t, pub.byType(events.TypeSessionChanged), before+1)
	assert.Equal(t, "build logs", w.reg.Pane("%1").WindowName)

	// Unknown window id changes nothing.
	w.handleLine("%window-renamed @77 other")
	assert.Len(t, pub.byType(events.TypeSessionChanged), before+1)
}

func TestWindowAddThrottling(t *testing.T) {
	w, _, _ := newTestWatcher(t)

	// Before the initial list nothing is scheduled.
	w.handleLine("%window-add @1")
	select {
	case <-w.requeryC:
		t.Fatal("requery scheduled before initial pane list")
	case <-time.After(2 * requeryThrottle):
	}

	feedReply(w, "PANE %1 work:1.0 shell zsh 208x62 @1 1 1")

	// Two adds inside one throttle window coalesce into one query.
	w.handleLine("%window-add @2")
	w.handleLine("%window-add @3")

	select {
	case <-w.requeryC:
	case <-time.After(4 * requeryThrottle):
		t.Fatal("throttled requery never fired")
	}
	select {
	case <-w.requeryC:
		t.Fatal("burst produced more than one requery")
	case <-time.After(2 * requeryThrottle):
	}
}

func TestLayoutChangeResizesPanes(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	feedReply(w, "PANE %1 work:1.0 shell zsh 208x62 @1 1 1")

	w.handleLine("%layout-change @1 b25d,200x50,0,0,1 b25d,200x50,0,0,1 *")

	rec := w.reg.Pane("%1")
	require.NotNil(t, rec)
	assert.Equal(t, 200, rec.Width)
	assert.Equal(t, 50, rec.Height)

	select {
	case <-w.requeryC:
	case <-time.After(4 * requeryThrottle):
		t.Fatal("layout change did not schedule a requery")
	}
}

func TestUnrecognizedNotificationsIgnored(t *testing.T) {
	w, _, pub := newTestWatcher(t)
	feedReply(w, "PANE %1 work:1.0 shell zsh 208x62 @1 1 1")
	before := len(pub.byType(events.TypeSessionChanged))

	w.handleLine("%output %1 some bytes")
	w.handleLine("%sessions-changed")
	w.handleLine("%totally-new-notification with args")
	w.handleLine("not a protocol line at all")

	assert.Equal(t, 1, w.reg.PaneCount())
	assert.Len(t, pub.byType(events.TypeSessionChanged), before)
}

func TestTeardownOnConnectionLoss(t *testing.T) {
	conn := newFakeConn()
	pub := &recordPub{}
	w := newWithTransport("sess-1", "work", pub, conn)

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, StateConnected, w.State())

	conn.lineC <- "%begin 1700000000 1 0"
	conn.lineC <- "PANE %1 work:1.0 shell zsh 208x62 @1 1 1"
	conn.lineC <- "%end 1700000000 1 0"

	require.Eventually(t, func() bool {
		return len(pub.byType(events.TypeSessionChanged)) == 1
	}, time.Second, 10*time.Millisecond)

	close(conn.doneC)
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after connection loss")
	}

	assert.Equal(t, StateDisconnected, w.State())
	assert.Equal(t, 0, w.reg.PaneCount())
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	assert.True(t, closed)

	states := pub.byType(events.TypeConnState)
	require.Len(t, states, 2)
	assert.True(t, states[0].Data.(events.ConnState).Connected)
	down := states[1].Data.(events.ConnState)
	assert.False(t, down.Connected)
	assert.Equal(t, "connection lost", down.Reason)
}

func TestInitialQueryGoesOutAfterDelay(t *testing.T) {
	conn := newFakeConn()
	w := newWithTransport("sess-1", "work", &recordPub{}, conn)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return len(conn.written()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, conn.written()[0], "list-panes -s -t work")
	assert.Contains(t, conn.written()[0], "PANE ")
}

func TestStopBeforeStartReturns(t *testing.T) {
	w, _, _ := newTestWatcher(t)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a watcher that never started")
	}
}
