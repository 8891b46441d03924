package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/muxpilot/muxpilot/internal/config"
	"github.com/muxpilot/muxpilot/internal/git"
	"github.com/muxpilot/muxpilot/internal/store"
	"github.com/muxpilot/muxpilot/internal/tmux"
)

// openStore opens the session database under the muxpilot directory.
func openStore() *store.Store {
	dir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
	db, err := store.Open(filepath.Join(dir, "muxpilot.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: open store: %v\n", err)
		os.Exit(1)
	}
	return db
}

func handleNew(args []string) {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	path := fs.String("path", "", "Project directory (default: current directory)")
	branch := fs.String("branch", "", "Worktree branch name (default: derived from session name)")
	agentCmd := fs.String("cmd", "", "Command to launch in the session (default: configured agent)")
	mode := fs.String("mode", "", "Automation mode for this session: act, plan, all")
	noWorktree := fs.Bool("no-worktree", false, "Run in the project directory without a git worktree")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: muxpilot new [options] <name>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Creates a tmux session running the agent, with an isolated git")
		fmt.Fprintln(os.Stderr, "worktree when the project is a repository.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Examples:")
		fmt.Fprintln(os.Stderr, "  muxpilot new fix-auth")
		fmt.Fprintln(os.Stderr, "  muxpilot new -path ~/code/api -branch fix/login fix-auth")
	}
	fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	name := fs.Arg(0)

	cfg := loadConfig()
	client := &tmux.Client{SocketPath: cfg.SocketPath}

	if client.HasSession(name) {
		fmt.Fprintf(os.Stderr, "muxpilot: session %q already exists\n", name)
		os.Exit(1)
	}

	projectPath := *path
	if projectPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
			os.Exit(1)
		}
		projectPath = wd
	}
	projectPath = config.ExpandTilde(projectPath)
	projectPath, err := filepath.Abs(projectPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}

	command := *agentCmd
	if command == "" {
		command = cfg.Agent
	}
	sessionMode := *mode
	if sessionMode == "" {
		sessionMode = cfg.Mode
	}

	workDir := projectPath
	worktreePath := ""
	worktreeBranch := ""

	if !*noWorktree && git.IsRepo(projectPath) {
		root, err := git.RepoRoot(projectPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
			os.Exit(1)
		}
		worktreeBranch = *branch
		if worktreeBranch == "" {
			worktreeBranch = git.SanitizeBranchName(name)
		}
		worktreePath = git.WorktreePath(root, worktreeBranch, cfg.Worktree.Location)
		if err := git.AddWorktree(root, worktreePath, worktreeBranch); err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: create worktree: %v\n", err)
			os.Exit(1)
		}
		workDir = worktreePath
		fmt.Printf("Created worktree %s on branch %s\n", worktreePath, worktreeBranch)
	}

	if err := client.NewSession(name, workDir, command); err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: create session: %v\n", err)
		os.Exit(1)
	}

	db := openStore()
	defer db.Close()
	now := time.Now()
	row := &store.SessionRow{
		Name:           name,
		ProjectPath:    projectPath,
		WorktreePath:   worktreePath,
		WorktreeBranch: worktreeBranch,
		AgentCommand:   command,
		Mode:           sessionMode,
		CreatedAt:      now,
		LastAccessed:   now,
	}
	if err := db.Save(row); err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: save session: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Session %q started in %s\n", name, workDir)
	fmt.Printf("Attach with: muxpilot attach %s\n", name)
}
