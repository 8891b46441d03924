package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/muxpilot/muxpilot/internal/store"
	"github.com/muxpilot/muxpilot/internal/tmux"
)

const (
	tableColName   = 20
	tableColBranch = 22
	tableColStatus = 10
	tableColWin    = 4
	tableColPath   = 40
)

// tableTheme holds the list colors, picked for the OS light/dark setting.
type tableTheme struct {
	header   lipgloss.Style
	running  lipgloss.Style
	attached lipgloss.Style
	dead     lipgloss.Style
	dim      lipgloss.Style
}

func pickTheme() tableTheme {
	isDark, err := dark.IsDarkMode()
	if err != nil {
		isDark = true
	}
	dim := lipgloss.Color("245")
	if !isDark {
		dim = lipgloss.Color("240")
	}
	return tableTheme{
		header:   lipgloss.NewStyle().Bold(true),
		running:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		attached: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		dead:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		dim:      lipgloss.NewStyle().Foreground(dim),
	}
}

// truncate shortens s to width display cells, appending … when cut.
func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return runewidth.FillRight(s, width)
	}
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}

type listEntry struct {
	Name         string `json:"name"`
	Branch       string `json:"branch,omitempty"`
	Status       string `json:"status"`
	Windows      int    `json:"windows"`
	ProjectPath  string `json:"projectPath"`
	WorktreePath string `json:"worktreePath,omitempty"`
	Agent        string `json:"agent"`
	Mode         string `json:"mode"`
	LastMatcher  string `json:"lastMatcher,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

func handleList(args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	filter := fs.String("f", "", "Fuzzy-filter sessions by name")
	asJSON := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: muxpilot ls [options]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig()
	client := &tmux.Client{SocketPath: cfg.SocketPath}

	db := openStore()
	defer db.Close()

	rows, err := db.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}

	if *filter != "" {
		rows = fuzzyFilter(rows, *filter)
	}

	entries := make([]listEntry, 0, len(rows))
	for _, row := range rows {
		status := "dead"
		windows := 0
		if client.HasSession(row.Name) {
			status = "running"
			if client.HasAttachedClient(row.Name) {
				status = "attached"
			}
			if panes, err := client.ListSessionPanes(row.Name); err == nil {
				windows = countWindows(panes)
			}
		}
		entries = append(entries, listEntry{
			Name:         row.Name,
			Branch:       row.WorktreeBranch,
			Status:       status,
			Windows:      windows,
			ProjectPath:  row.ProjectPath,
			WorktreePath: row.WorktreePath,
			Agent:        row.AgentCommand,
			Mode:         row.Mode,
			LastMatcher:  row.LastMatcher,
			CreatedAt:    row.CreatedAt.Format(time.RFC3339),
		})
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(entries) == 0 {
		fmt.Println("No sessions. Create one with 'muxpilot new <name>'.")
		return
	}

	theme := pickTheme()
	fmt.Println(theme.header.Render(
		truncate("NAME", tableColName) + " " +
			truncate("BRANCH", tableColBranch) + " " +
			truncate("STATUS", tableColStatus) + " " +
			truncate("WIN", tableColWin) + " " +
			truncate("PATH", tableColPath)))

	for _, e := range entries {
		var status string
		switch e.Status {
		case "attached":
			status = theme.attached.Render(truncate("attached", tableColStatus))
		case "running":
			status = theme.running.Render(truncate("running", tableColStatus))
		default:
			status = theme.dead.Render(truncate("dead", tableColStatus))
		}
		path := e.WorktreePath
		if path == "" {
			path = e.ProjectPath
		}
		win := ""
		if e.Windows > 0 {
			win = fmt.Sprintf("%d", e.Windows)
		}
		fmt.Println(
			truncate(e.Name, tableColName) + " " +
				theme.dim.Render(truncate(e.Branch, tableColBranch)) + " " +
				status + " " +
				truncate(win, tableColWin) + " " +
				theme.dim.Render(truncate(path, tableColPath)))
	}
}

// countWindows counts distinct window indexes in a session's pane list.
func countWindows(panes []tmux.PaneInfo) int {
	seen := make(map[int]bool, len(panes))
	for _, p := range panes {
		seen[p.WindowIndex] = true
	}
	return len(seen)
}

// fuzzyFilter keeps rows whose name fuzzy-matches query, best first.
func fuzzyFilter(rows []*store.SessionRow, query string) []*store.SessionRow {
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = row.Name
	}
	matches := fuzzy.Find(query, names)
	out := make([]*store.SessionRow, 0, len(matches))
	for _, m := range matches {
		out = append(out, rows[m.Index])
	}
	return out
}
