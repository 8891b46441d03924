package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pane(id, session string, win, idx int) PaneRecord {
	return PaneRecord{
		PaneID:      id,
		Session:     session,
		WindowIndex: win,
		PaneIndex:   idx,
		WindowName:  "agent",
		Command:     "node",
		Width:       200,
		Height:      50,
	}
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	r := New()
	first := pane("%0", "work", 0, 0)
	first.FirstSeen = time.Now().Add(-time.Hour)
	r.UpsertPane(first)

	update := pane("%0", "work", 0, 0)
	update.Width = 80
	r.UpsertPane(update)

	got := r.Pane("%0")
	require.NotNil(t, got)
	assert.Equal(t, 80, got.Width)
	assert.Equal(t, first.FirstSeen, got.FirstSeen)
}

func TestRemoveWindow(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))
	r.UpsertPane(pane("%1", "work", 0, 1))
	r.UpsertPane(pane("%2", "work", 1, 0))
	r.SetWindowIdentity("@1", "work", 0)
	r.SetWindowIdentity("@2", "work", 1)

	removed := r.RemoveWindow("@1")
	assert.Equal(t, 2, removed)
	assert.Nil(t, r.Pane("%0"))
	assert.Nil(t, r.Pane("%1"))
	assert.NotNil(t, r.Pane("%2"))

	_, ok := r.WindowIdentityFor("@1")
	assert.False(t, ok)
}

func TestRemoveUnknownWindowIsNoop(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))
	r.SetWindowIdentity("@1", "work", 0)

	assert.Equal(t, 0, r.RemoveWindow("@99"))
	assert.Equal(t, 1, r.PaneCount())
}

func TestRenameWindow(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))
	r.UpsertPane(pane("%1", "work", 1, 0))
	r.SetWindowIdentity("@1", "work", 0)

	assert.True(t, r.RenameWindow("@1", "editor"))
	assert.Equal(t, "editor", r.Pane("%0").WindowName)
	assert.Equal(t, "agent", r.Pane("%1").WindowName)

	// Renaming to the same name reports no change.
	assert.False(t, r.RenameWindow("@1", "editor"))
}

func TestResizeWindow(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))
	r.SetWindowIdentity("@1", "work", 0)

	assert.True(t, r.ResizeWindow("@1", 120, 40))
	assert.Equal(t, 120, r.Pane("%0").Width)
	assert.False(t, r.ResizeWindow("@1", 120, 40))
}

func TestHashOrderIndependent(t *testing.T) {
	a := New()
	a.UpsertPane(pane("%0", "work", 0, 0))
	a.UpsertPane(pane("%1", "work", 0, 1))

	b := New()
	b.UpsertPane(pane("%1", "work", 0, 1))
	b.UpsertPane(pane("%0", "work", 0, 0))

	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashSensitiveToAttributes(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))
	before := r.Hash()

	resized := pane("%0", "work", 0, 0)
	resized.Height = 51
	r.UpsertPane(resized)
	assert.NotEqual(t, before, r.Hash())

	renamed := pane("%0", "work", 0, 0)
	renamed.Height = 51
	renamed.WindowName = "other"
	r.UpsertPane(renamed)
	assert.NotEqual(t, before, r.Hash())
}

func TestHashChanged(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))

	assert.True(t, r.HashChanged())
	assert.False(t, r.HashChanged())

	r.UpsertPane(pane("%1", "work", 0, 1))
	assert.True(t, r.HashChanged())
}

func TestClearResetsEverything(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))
	r.SetWindowIdentity("@1", "work", 0)
	r.MarkInitialListSeen()
	r.HashChanged()

	r.Clear()

	assert.Equal(t, 0, r.PaneCount())
	assert.False(t, r.InitialListSeen())
	_, ok := r.WindowIdentityFor("@1")
	assert.False(t, ok)
	// Hash of empty state still counts as a change after clear.
	assert.True(t, r.HashChanged())
}

func TestSnapshotOrdering(t *testing.T) {
	r := New()
	// Insert out of order.
	p := pane("%5", "work", 2, 1)
	r.UpsertPane(p)
	p = pane("%4", "work", 2, 0)
	r.UpsertPane(p)
	p = pane("%1", "work", 0, 0)
	p.WindowActive = true
	p.PaneActive = true
	r.UpsertPane(p)
	r.SetWindowIdentity("@0", "work", 0)
	r.SetWindowIdentity("@2", "work", 2)

	snap := r.Snapshot("$1", "work")

	require.Len(t, snap.Windows, 2)
	assert.Equal(t, 0, snap.Windows[0].WindowIndex)
	assert.Equal(t, 2, snap.Windows[1].WindowIndex)

	panes := snap.Windows[1].Panes
	require.Len(t, panes, 2)
	assert.Equal(t, "%4", panes[0].PaneID)
	assert.Equal(t, "%5", panes[1].PaneID)

	assert.Equal(t, "@0", snap.FocusedWindowID)
	assert.Equal(t, "%1", snap.FocusedPaneID)
}

func TestSnapshotExcludesOtherSessions(t *testing.T) {
	r := New()
	r.UpsertPane(pane("%0", "work", 0, 0))
	r.UpsertPane(pane("%9", "other", 0, 0))

	snap := r.Snapshot("$1", "work")
	require.Len(t, snap.Windows, 1)
	assert.Equal(t, "%0", snap.Windows[0].Panes[0].PaneID)
}
