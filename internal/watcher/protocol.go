package watcher

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/muxpilot/muxpilot/internal/registry"
)

// paneListFormat produces one space-delimited line per pane. Window names
// and commands containing whitespace break the grammar; such rows are
// skipped rather than guessed at.
const paneListFormat = "PANE #{pane_id} #{session_name}:#{window_index}.#{pane_index} " +
	"#{window_name} #{pane_current_command} #{pane_width}x#{pane_height} " +
	"#{window_id} #{pane_active} #{window_active}"

func paneListCommand(session string) string {
	return fmt.Sprintf("list-panes -s -t %s -F '%s'", session, paneListFormat)
}

// layoutDims pulls the window geometry out of a tmux layout string, e.g.
// "b25d,208x62,0,0,1" -> 208x62.
var layoutDims = regexp.MustCompile(`^[0-9a-f]{4},(\d+)x(\d+),`)

// handleLine classifies one control-mode line. Reply brackets delimit
// command output; PANE rows only count inside a bracket. Notification
// lines are handled individually; anything unrecognized is ignored.
func (w *Watcher) handleLine(line string) {
	switch {
	case strings.HasPrefix(line, "%begin"):
		w.inReply = true
		w.replySeen = nil
		return
	case strings.HasPrefix(line, "%end"), strings.HasPrefix(line, "%error"):
		w.finishReply(strings.HasPrefix(line, "%error"))
		return
	}

	if w.inReply {
		if strings.HasPrefix(line, "PANE ") {
			w.handlePaneRow(line)
		}
		// Other reply output (attach handshake chatter) is noise.
		return
	}

	if strings.HasPrefix(line, "%") {
		w.handleNotification(line)
	}
}

func (w *Watcher) handlePaneRow(line string) {
	rec, windowID, ok := parsePaneRow(line)
	if !ok {
		watchLog.Debug("pane_row_skipped", slog.String("line", line))
		return
	}
	if w.replySeen == nil {
		w.replySeen = make(map[string]struct{})
	}
	w.replySeen[rec.PaneID] = struct{}{}
	w.reg.UpsertPane(rec)
	w.reg.SetWindowIdentity(windowID, rec.Session, rec.WindowIndex)
	watchLog.Debug("pane_mirrored",
		slog.String("pane", rec.PaneID),
		slog.String("target", rec.DisplayKey()))
}

// finishReply closes a reply bracket. A bracket that carried pane rows is
// a pane-list reply: stale panes are pruned and a snapshot goes out if
// the registry hash moved. Empty brackets (the attach acknowledgement)
// produce nothing.
func (w *Watcher) finishReply(isError bool) {
	w.inReply = false
	if isError {
		watchLog.Warn("control_command_error", slog.String("session", w.sessionName))
		w.replySeen = nil
		return
	}
	if w.replySeen == nil {
		return
	}
	w.reg.PruneExcept(w.replySeen)
	w.replySeen = nil
	w.reg.MarkInitialListSeen()
	w.emitSnapshot(false)
}

func (w *Watcher) handleNotification(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "%window-add":
		// The initial pane list covers everything; re-query only once
		// it has been seen, so startup bursts stay cheap.
		if w.reg.InitialListSeen() {
			w.scheduleRequery()
		}

	case "%window-close", "%unlinked-window-close":
		if len(fields) < 2 {
			return
		}
		if removed := w.reg.RemoveWindow(fields[1]); removed > 0 {
			watchLog.Debug("window_closed",
				slog.String("window", fields[1]),
				slog.Int("panes_removed", removed))
			w.emitSnapshot(true)
		}

	case "%window-renamed":
		if len(fields) < 3 {
			return
		}
		name := strings.Join(fields[2:], " ")
		if w.reg.RenameWindow(fields[1], name) {
			w.emitSnapshot(true)
		}

	case "%layout-change":
		if len(fields) < 3 {
			return
		}
		if m := layoutDims.FindStringSubmatch(fields[2]); m != nil {
			width, _ := strconv.Atoi(m[1])
			height, _ := strconv.Atoi(m[2])
			w.reg.ResizeWindow(fields[1], width, height)
		}
		w.scheduleRequery()

	case "%window-pane-changed":
		if len(fields) < 2 {
			return
		}
		if _, known := w.reg.WindowIdentityFor(fields[1]); known {
			w.scheduleRequery()
		}

	case "%session-window-changed":
		// Focus moved; active flags in the snapshot need refreshing.
		w.scheduleRequery()

	default:
		// %output, %session-changed, %sessions-changed, %exit and
		// anything newer are irrelevant to the mirrored model.
	}
}

// parsePaneRow parses one PANE row into a record plus the protocol window
// id. Rows that do not match the nine-token grammar are rejected.
func parsePaneRow(line string) (registry.PaneRecord, string, bool) {
	fields := strings.Fields(line)
	if len(fields) != 9 || fields[0] != "PANE" {
		return registry.PaneRecord{}, "", false
	}

	paneID := fields[1]
	if !strings.HasPrefix(paneID, "%") {
		return registry.PaneRecord{}, "", false
	}

	colon := strings.LastIndex(fields[2], ":")
	if colon <= 0 {
		return registry.PaneRecord{}, "", false
	}
	session := fields[2][:colon]
	winStr, paneStr, ok := strings.Cut(fields[2][colon+1:], ".")
	if !ok {
		return registry.PaneRecord{}, "", false
	}
	windowIndex, err := strconv.Atoi(winStr)
	if err != nil {
		return registry.PaneRecord{}, "", false
	}
	paneIndex, err := strconv.Atoi(paneStr)
	if err != nil {
		return registry.PaneRecord{}, "", false
	}

	widthStr, heightStr, ok := strings.Cut(fields[5], "x")
	if !ok {
		return registry.PaneRecord{}, "", false
	}
	width, err := strconv.Atoi(widthStr)
	if err != nil {
		return registry.PaneRecord{}, "", false
	}
	height, err := strconv.Atoi(heightStr)
	if err != nil {
		return registry.PaneRecord{}, "", false
	}

	windowID := fields[6]
	if !strings.HasPrefix(windowID, "@") {
		return registry.PaneRecord{}, "", false
	}

	return registry.PaneRecord{
		PaneID:       paneID,
		Session:      session,
		WindowIndex:  windowIndex,
		PaneIndex:    paneIndex,
		WindowName:   fields[3],
		Command:      fields[4],
		Width:        width,
		Height:       height,
		PaneActive:   fields[7] == "1",
		WindowActive: fields[8] == "1",
	}, windowID, true
}
