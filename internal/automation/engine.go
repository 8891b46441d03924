// Package automation implements the polling side of supervision: a
// recurring cycle that enumerates panes with one-shot tmux queries,
// detects the supervised agent process, diffs captured content, and
// answers known prompts through the action dispatcher.
package automation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/muxpilot/muxpilot/internal/dispatch"
	"github.com/muxpilot/muxpilot/internal/events"
	"github.com/muxpilot/muxpilot/internal/logging"
	"github.com/muxpilot/muxpilot/internal/match"
	"github.com/muxpilot/muxpilot/internal/proctree"
	"github.com/muxpilot/muxpilot/internal/tmux"
)

var autoLog = logging.ForComponent(logging.CompAuto)

const (
	// DefaultInterval is the idle poll cadence.
	DefaultInterval = 2 * time.Second

	// FastInterval applies while any pane is younger than newPaneWindow,
	// when prompts are most likely to appear.
	FastInterval = 1 * time.Second

	newPaneWindow = 60 * time.Second

	// agentRebuildInterval bounds the cost of process-tree scans; the
	// agent-present set is rebuilt at most this often regardless of the
	// poll cadence.
	agentRebuildInterval = 5 * time.Second

	// Canonical window geometry applied when a session returns from
	// human control, so captures stay comparable across cycles.
	CanonicalWidth  = 200
	CanonicalHeight = 50
)

// mux is the tmux surface the engine drives. *tmux.Client implements it.
type mux interface {
	ServerPresent() bool
	ListAllPanes() ([]tmux.PaneInfo, error)
	HasAttachedClient(session string) bool
	ResizeWindow(target string, width, height int) error
	CapturePane(target string) (string, error)
	InvalidateCapture(target string)
	SendLiteral(target, text string) error
	SendKey(target, key string) error
	PasteBuffer(target string) error
}

// agentDetector reports whether the supervised agent runs under a pane's
// process tree. *proctree.Detector implements it.
type agentDetector interface {
	AgentRunning(panePID int, agent string) bool
}

type winKey struct {
	Session string
	Window  int
}

type execKey struct {
	Session string
	Window  int
	Matcher string
}

// Config carries the tunable parts of the engine.
type Config struct {
	Interval     time.Duration
	FastInterval time.Duration
	AgentName    string
	Mode         match.Mode
	Definitions  []match.Definition
}

// Engine is the polling automation loop. All maps are owned by the Run
// goroutine; nothing here is safe for concurrent use.
type Engine struct {
	mux    mux
	detect agentDetector
	pub    events.Publisher
	disp   *dispatch.Dispatcher
	cfg    Config

	connected    bool
	firstSeen    map[string]time.Time // pane id -> first sighting
	checksums    map[winKey]string
	agentPresent map[winKey]bool
	arrived      map[winKey]bool // absent->present this rebuild
	executed     map[execKey]bool
	humanControl map[string]bool

	rebuildLimit *rate.Limiter
	now          func() time.Time
}

// New builds an engine. Zero-value config fields take defaults; an empty
// definition list falls back to the built-in matchers.
func New(m mux, detect agentDetector, pub events.Publisher, cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = FastInterval
	}
	if cfg.AgentName == "" {
		cfg.AgentName = "claude"
	}
	if cfg.Mode == "" {
		cfg.Mode = match.ModeAct
	}
	if len(cfg.Definitions) == 0 {
		cfg.Definitions = match.DefaultDefinitions()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Engine{
		mux:          m,
		detect:       detect,
		pub:          pub,
		disp:         dispatch.New(m),
		cfg:          cfg,
		firstSeen:    make(map[string]time.Time),
		checksums:    make(map[winKey]string),
		agentPresent: make(map[winKey]bool),
		arrived:      make(map[winKey]bool),
		executed:     make(map[execKey]bool),
		humanControl: make(map[string]bool),
		rebuildLimit: rate.NewLimiter(rate.Every(agentRebuildInterval), 1),
		now:          time.Now,
	}
}

// Run executes poll cycles until the context is canceled.
func (e *Engine) Run(ctx context.Context) {
	autoLog.Info("engine_started",
		slog.String("agent", e.cfg.AgentName),
		slog.String("mode", string(e.cfg.Mode)),
		slog.Int("matchers", len(e.cfg.Definitions)))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			autoLog.Info("engine_stopped")
			return
		case <-timer.C:
			e.cycle()
			timer.Reset(e.nextInterval())
		}
	}
}

// nextInterval picks the cadence for the following cycle: fast while any
// pane was first seen inside the recency window.
func (e *Engine) nextInterval() time.Duration {
	cutoff := e.now().Add(-newPaneWindow)
	for _, seen := range e.firstSeen {
		if seen.After(cutoff) {
			return e.cfg.FastInterval
		}
	}
	return e.cfg.Interval
}

func (e *Engine) cycle() {
	if !e.mux.ServerPresent() {
		if e.connected {
			autoLog.Info("server_gone")
			e.connected = false
			e.clearCaches()
		}
		return
	}
	if !e.connected {
		autoLog.Info("server_present")
		e.connected = true
	}

	panes, err := e.mux.ListAllPanes()
	if err != nil {
		e.reportError("list-panes", "", err)
		return
	}
	e.trackPanes(panes)
	e.pruneWindows(panes)
	e.rebuildAgentSet(panes)

	for _, session := range sessionOrder(panes) {
		e.pollSession(session, panesOf(panes, session))
	}
	e.arrived = make(map[winKey]bool)
}

// trackPanes maintains first-seen timestamps and drops entries for panes
// that vanished.
func (e *Engine) trackPanes(panes []tmux.PaneInfo) {
	alive := make(map[string]bool, len(panes))
	now := e.now()
	for _, p := range panes {
		alive[p.PaneID] = true
		if _, ok := e.firstSeen[p.PaneID]; !ok {
			e.firstSeen[p.PaneID] = now
		}
	}
	for id := range e.firstSeen {
		if !alive[id] {
			delete(e.firstSeen, id)
		}
	}
}

// pruneWindows drops per-window bookkeeping for windows no longer on the
// server. A recreated window at the same index is a new window: it gets a
// fresh content-changed emission and fresh run-once state even if its
// first capture matches the dead window's last content.
func (e *Engine) pruneWindows(panes []tmux.PaneInfo) {
	alive := make(map[winKey]bool, len(panes))
	sessions := make(map[string]bool)
	for _, p := range panes {
		alive[winKey{Session: p.SessionName, Window: p.WindowIndex}] = true
		sessions[p.SessionName] = true
	}
	for k := range e.checksums {
		if !alive[k] {
			delete(e.checksums, k)
		}
	}
	for k := range e.agentPresent {
		if !alive[k] {
			delete(e.agentPresent, k)
		}
	}
	for k := range e.executed {
		if !alive[winKey{Session: k.Session, Window: k.Window}] {
			delete(e.executed, k)
		}
	}
	for s := range e.humanControl {
		if !sessions[s] {
			delete(e.humanControl, s)
		}
	}
}

// rebuildAgentSet rescans process trees for the supervised agent, rate
// limited independently of the poll cadence. Windows where the agent
// newly appeared are flagged so matchers run even without a content diff.
func (e *Engine) rebuildAgentSet(panes []tmux.PaneInfo) {
	if e.detect == nil || !e.rebuildLimit.Allow() {
		return
	}
	next := make(map[winKey]bool, len(e.agentPresent))
	for _, p := range panes {
		key := winKey{Session: p.SessionName, Window: p.WindowIndex}
		if next[key] {
			continue
		}
		// Process-tree walk is the primary signal; the reported
		// foreground command covers panes whose tree walk misses a
		// re-execed agent. The two legitimately disagree.
		if e.detect.AgentRunning(p.PanePID, e.cfg.AgentName) ||
			proctree.ForegroundMatches(p.Command, e.cfg.AgentName) {
			next[key] = true
			if !e.agentPresent[key] {
				e.arrived[key] = true
			}
		}
	}
	e.agentPresent = next
}

func (e *Engine) pollSession(session string, panes []tmux.PaneInfo) {
	human := e.mux.HasAttachedClient(session)
	wasHuman := e.humanControl[session]
	e.humanControl[session] = human
	if human {
		return
	}
	if wasHuman {
		// Back under automation: normalize geometry so captures are
		// comparable again.
		autoLog.Info("session_automated", slog.String("session", session))
		for _, idx := range windowOrder(panes) {
			target := fmt.Sprintf("%s:%d", session, idx)
			if err := e.mux.ResizeWindow(target, CanonicalWidth, CanonicalHeight); err != nil {
				e.reportError("resize-window", target, err)
			}
		}
	}

	for _, idx := range windowOrder(panes) {
		e.pollWindow(session, idx, windowName(panes, idx))
	}
}

func (e *Engine) pollWindow(session string, windowIndex int, windowName string) {
	key := winKey{Session: session, Window: windowIndex}
	target := fmt.Sprintf("%s:%d", session, windowIndex)

	content, err := e.mux.CapturePane(target)
	if err != nil {
		e.reportError("capture-pane", target, err)
		return
	}
	// Checksums and matching see plain text; color codes churn with
	// refreshes even when the content is identical.
	content = tmux.StripANSI(content)

	sum := checksum(content)
	last, seen := e.checksums[key]
	changed := !seen || last != sum
	if changed {
		e.checksums[key] = sum
		e.pub.Publish(events.NewContentChanged(session, windowIndex))
	}

	if (changed && e.agentPresent[key]) || e.arrived[key] {
		e.evaluateMatchers(key, target, windowName, content)
	}
}

// evaluateMatchers runs every eligible definition against the cleaned
// capture and dispatches responses for matches, honoring run-once.
func (e *Engine) evaluateMatchers(key winKey, target, windowName, content string) {
	cleaned := match.CleanContent(content)
	if cleaned == "" {
		return
	}
	lines := strings.Split(cleaned, "\n")

	for i := range e.cfg.Definitions {
		def := &e.cfg.Definitions[i]
		if !def.EligibleFor(e.cfg.Mode) {
			continue
		}
		ek := execKey{Session: key.Session, Window: key.Window, Matcher: def.Name}
		if def.RunOnce && e.executed[ek] {
			continue
		}
		if !match.Matches(lines, def.Trigger) {
			continue
		}
		if def.RunOnce {
			e.executed[ek] = true
		}
		autoLog.Info("matcher_fired",
			slog.String("matcher", def.Name),
			slog.String("target", target))
		e.disp.Dispatch(target, def.Response)
		// The injected keystrokes invalidate any cached capture; the
		// next poll must see the pane's reaction, not this prompt.
		e.mux.InvalidateCapture(target)
		e.pub.Publish(events.NewWindowAutomation(key.Session, windowName, def.Name))
	}
}

// clearCaches resets all derived state after a disconnect. Run-once
// bookkeeping is deliberately included: a fresh server means fresh
// prompts.
func (e *Engine) clearCaches() {
	e.firstSeen = make(map[string]time.Time)
	e.checksums = make(map[winKey]string)
	e.agentPresent = make(map[winKey]bool)
	e.arrived = make(map[winKey]bool)
	e.executed = make(map[execKey]bool)
	e.humanControl = make(map[string]bool)
}

func (e *Engine) reportError(op, target string, err error) {
	autoLog.Warn("cycle_error",
		slog.String("op", op),
		slog.String("target", target),
		slog.String("error", err.Error()))
	e.pub.Publish(events.NewEngineError(op, target, err))
}

func checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func sessionOrder(panes []tmux.PaneInfo) []string {
	var order []string
	seen := make(map[string]bool)
	for _, p := range panes {
		if !seen[p.SessionName] {
			seen[p.SessionName] = true
			order = append(order, p.SessionName)
		}
	}
	return order
}

func panesOf(panes []tmux.PaneInfo, session string) []tmux.PaneInfo {
	var out []tmux.PaneInfo
	for _, p := range panes {
		if p.SessionName == session {
			out = append(out, p)
		}
	}
	return out
}

func windowOrder(panes []tmux.PaneInfo) []int {
	var order []int
	seen := make(map[int]bool)
	for _, p := range panes {
		if !seen[p.WindowIndex] {
			seen[p.WindowIndex] = true
			order = append(order, p.WindowIndex)
		}
	}
	return order
}

func windowName(panes []tmux.PaneInfo, windowIndex int) string {
	for _, p := range panes {
		if p.WindowIndex == windowIndex {
			return p.WindowName
		}
	}
	return ""
}
