package main

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"

	"github.com/muxpilot/muxpilot/internal/store"
	"github.com/muxpilot/muxpilot/internal/tmux"
)

func TestTruncatePadsShortStrings(t *testing.T) {
	assert.Equal(t, "abc       ", truncate("abc", 10))
}

func TestTruncateCutsWithEllipsis(t *testing.T) {
	got := truncate("a-rather-long-session-name", 10)
	assert.Equal(t, 10, runewidth.StringWidth(got))
	assert.Contains(t, got, "…")
}

func TestTruncateWideRunes(t *testing.T) {
	// CJK runes occupy two cells; width accounting must not overflow.
	got := truncate("日本語のセッション", 8)
	assert.Equal(t, 8, runewidth.StringWidth(got))
}

func TestFuzzyFilterOrdersByMatchQuality(t *testing.T) {
	rows := []*store.SessionRow{
		{Name: "fix-auth"},
		{Name: "feature-api"},
		{Name: "docs"},
	}

	got := fuzzyFilter(rows, "fa")
	if assert.NotEmpty(t, got) {
		for _, row := range got {
			assert.NotEqual(t, "docs", row.Name)
		}
	}

	assert.Empty(t, fuzzyFilter(rows, "zzz"))
}

func TestCountWindows(t *testing.T) {
	panes := []tmux.PaneInfo{
		{SessionName: "work", WindowIndex: 0},
		{SessionName: "work", WindowIndex: 0},
		{SessionName: "work", WindowIndex: 2},
	}
	assert.Equal(t, 2, countWindows(panes))
	assert.Equal(t, 0, countWindows(nil))
}
