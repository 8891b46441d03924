// Package registry holds the derived in-memory model of a tmux server:
// panes, window identities, and the hash used to detect meaningful change.
// A Registry is owned by exactly one loop (the protocol watcher or the
// polling engine); it is not safe for concurrent mutation and does not
// need to be.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PaneRecord is one tmux pane as last observed.
type PaneRecord struct {
	PaneID       string
	Session      string
	WindowIndex  int
	PaneIndex    int
	WindowName   string
	Command      string
	Width        int
	Height       int
	FirstSeen    time.Time
	PaneActive   bool
	WindowActive bool
}

// DisplayKey is the "session:window.pane" form used in logs and events.
func (p *PaneRecord) DisplayKey() string {
	return fmt.Sprintf("%s:%d.%d", p.Session, p.WindowIndex, p.PaneIndex)
}

// WindowIdentity resolves a protocol window id to its place in a session.
// Window-scoped notifications (%window-close, %window-renamed,
// %layout-change) carry the id but not the index.
type WindowIdentity struct {
	Session     string
	WindowIndex int
}

// Registry is the derived pane/window state for one watched server or
// session. Mutated only by its owning loop.
type Registry struct {
	panes   map[string]*PaneRecord    // pane id -> record
	windows map[string]WindowIdentity // window id -> identity

	lastHash        string
	initialListSeen bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		panes:   make(map[string]*PaneRecord),
		windows: make(map[string]WindowIdentity),
	}
}

// UpsertPane creates or updates a pane record in place. FirstSeen is
// preserved across updates; all other attributes take the new values.
func (r *Registry) UpsertPane(rec PaneRecord) {
	if existing, ok := r.panes[rec.PaneID]; ok {
		rec.FirstSeen = existing.FirstSeen
	} else if rec.FirstSeen.IsZero() {
		rec.FirstSeen = time.Now()
	}
	r.panes[rec.PaneID] = &rec
}

// SetWindowIdentity records the identity of a protocol window id.
func (r *Registry) SetWindowIdentity(windowID, session string, windowIndex int) {
	r.windows[windowID] = WindowIdentity{Session: session, WindowIndex: windowIndex}
}

// WindowIdentityFor looks up the identity of a window id.
func (r *Registry) WindowIdentityFor(windowID string) (WindowIdentity, bool) {
	id, ok := r.windows[windowID]
	return id, ok
}

// RemoveWindow drops a window's identity and every pane belonging to it.
// Returns the number of panes removed; zero for an unknown window id.
func (r *Registry) RemoveWindow(windowID string) int {
	id, ok := r.windows[windowID]
	if !ok {
		return 0
	}
	removed := 0
	for paneID, pane := range r.panes {
		if pane.Session == id.Session && pane.WindowIndex == id.WindowIndex {
			delete(r.panes, paneID)
			removed++
		}
	}
	delete(r.windows, windowID)
	return removed
}

// RenameWindow updates WindowName on every pane of the window. Returns
// whether any pane changed.
func (r *Registry) RenameWindow(windowID, name string) bool {
	id, ok := r.windows[windowID]
	if !ok {
		return false
	}
	changed := false
	for _, pane := range r.panes {
		if pane.Session == id.Session && pane.WindowIndex == id.WindowIndex && pane.WindowName != name {
			pane.WindowName = name
			changed = true
		}
	}
	return changed
}

// ResizeWindow updates the size of every pane of the window. Returns whether
// any pane changed. Layout-change notifications only carry the window size,
// so all panes get the same dimensions until the next full pane list.
func (r *Registry) ResizeWindow(windowID string, width, height int) bool {
	id, ok := r.windows[windowID]
	if !ok {
		return false
	}
	changed := false
	for _, pane := range r.panes {
		if pane.Session != id.Session || pane.WindowIndex != id.WindowIndex {
			continue
		}
		if pane.Width != width || pane.Height != height {
			pane.Width = width
			pane.Height = height
			changed = true
		}
	}
	return changed
}

// PruneExcept removes every pane whose id is absent from keep, then drops
// window identities that no longer have a pane. Used after a full pane
// list to discard state for panes that disappeared between queries.
// Returns the number of panes removed.
func (r *Registry) PruneExcept(keep map[string]struct{}) int {
	removed := 0
	for paneID := range r.panes {
		if _, ok := keep[paneID]; !ok {
			delete(r.panes, paneID)
			removed++
		}
	}
	if removed > 0 {
		live := make(map[WindowIdentity]bool, len(r.windows))
		for _, pane := range r.panes {
			live[WindowIdentity{Session: pane.Session, WindowIndex: pane.WindowIndex}] = true
		}
		for windowID, id := range r.windows {
			if !live[id] {
				delete(r.windows, windowID)
			}
		}
	}
	return removed
}

// Pane returns the record for a pane id, or nil.
func (r *Registry) Pane(paneID string) *PaneRecord {
	return r.panes[paneID]
}

// PaneCount returns the number of tracked panes.
func (r *Registry) PaneCount() int {
	return len(r.panes)
}

// Panes returns all records, unordered.
func (r *Registry) Panes() []*PaneRecord {
	out := make([]*PaneRecord, 0, len(r.panes))
	for _, p := range r.panes {
		out = append(out, p)
	}
	return out
}

// MarkInitialListSeen records that the first full pane list was delivered.
// window-add notifications before that point do not trigger re-queries;
// the pending initial list covers them.
func (r *Registry) MarkInitialListSeen() {
	r.initialListSeen = true
}

// InitialListSeen reports whether the first full pane list arrived.
func (r *Registry) InitialListSeen() bool {
	return r.initialListSeen
}

// Hash computes a stable digest of registry state. Entries are sorted by
// pane id before hashing, so discovery order does not matter, while any
// attribute change (size, name, command, active flags) produces a new hash.
func (r *Registry) Hash() string {
	entries := make([]string, 0, len(r.panes))
	for _, p := range r.panes {
		entries = append(entries, fmt.Sprintf("%s|%s|%d|%d|%s|%s|%dx%d|%t|%t",
			p.PaneID, p.Session, p.WindowIndex, p.PaneIndex,
			p.WindowName, p.Command, p.Width, p.Height,
			p.PaneActive, p.WindowActive))
	}
	sort.Strings(entries)

	h := sha256.Sum256([]byte(strings.Join(entries, "\n")))
	return hex.EncodeToString(h[:])
}

// HashChanged compares the current hash to the last recorded one and
// remembers the new value. Returns true when state changed since the last
// call.
func (r *Registry) HashChanged() bool {
	h := r.Hash()
	if h == r.lastHash {
		return false
	}
	r.lastHash = h
	return true
}

// Clear resets all derived state: panes, window identities, the last hash,
// and the initial-list flag. Called on disconnect so a reconnect starts
// from nothing.
func (r *Registry) Clear() {
	r.panes = make(map[string]*PaneRecord)
	r.windows = make(map[string]WindowIdentity)
	r.lastHash = ""
	r.initialListSeen = false
}
