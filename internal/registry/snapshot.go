package registry

import "sort"

// SessionSnapshot is the point-in-time projection emitted on change.
// Windows are ordered by index ascending, panes within each window by pane
// index ascending. Snapshots are built fresh from the registry and never
// mutated afterwards; consumers own their copy.
type SessionSnapshot struct {
	SessionID       string           `json:"sessionId"`
	SessionName     string           `json:"sessionName"`
	FocusedWindowID string           `json:"focusedWindowId"`
	FocusedPaneID   string           `json:"focusedPaneId"`
	Windows         []WindowSnapshot `json:"windows"`
}

// WindowSnapshot is one window within a session snapshot.
type WindowSnapshot struct {
	WindowID    string         `json:"windowId"`
	WindowIndex int            `json:"windowIndex"`
	WindowName  string         `json:"windowName"`
	IsActive    bool           `json:"isActive"`
	Panes       []PaneSnapshot `json:"panes"`
}

// PaneSnapshot is one pane within a window snapshot.
type PaneSnapshot struct {
	PaneID    string `json:"paneId"`
	PaneIndex int    `json:"paneIndex"`
	Command   string `json:"command"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsActive  bool   `json:"isActive"`
}

// Snapshot projects the registry's state for one session into an ordered,
// owned snapshot.
func (r *Registry) Snapshot(sessionID, sessionName string) SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:   sessionID,
		SessionName: sessionName,
	}

	// Group panes by window index.
	byWindow := make(map[int][]*PaneRecord)
	for _, pane := range r.panes {
		if pane.Session != sessionName && pane.Session != sessionID {
			continue
		}
		byWindow[pane.WindowIndex] = append(byWindow[pane.WindowIndex], pane)
	}

	indexes := make([]int, 0, len(byWindow))
	for idx := range byWindow {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	windowIDByIdentity := make(map[WindowIdentity]string, len(r.windows))
	for id, identity := range r.windows {
		windowIDByIdentity[identity] = id
	}

	for _, idx := range indexes {
		panes := byWindow[idx]
		sort.Slice(panes, func(i, j int) bool {
			return panes[i].PaneIndex < panes[j].PaneIndex
		})

		win := WindowSnapshot{
			WindowIndex: idx,
			WindowName:  panes[0].WindowName,
			IsActive:    panes[0].WindowActive,
			WindowID:    windowIDByIdentity[WindowIdentity{Session: panes[0].Session, WindowIndex: idx}],
		}
		for _, pane := range panes {
			win.Panes = append(win.Panes, PaneSnapshot{
				PaneID:    pane.PaneID,
				PaneIndex: pane.PaneIndex,
				Command:   pane.Command,
				Width:     pane.Width,
				Height:    pane.Height,
				IsActive:  pane.PaneActive,
			})
			if pane.WindowActive && pane.PaneActive {
				snap.FocusedWindowID = win.WindowID
				snap.FocusedPaneID = pane.PaneID
			}
		}
		snap.Windows = append(snap.Windows, win)
	}

	return snap
}
