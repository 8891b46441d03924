package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/muxpilot/muxpilot/internal/git"
	"github.com/muxpilot/muxpilot/internal/store"
	"github.com/muxpilot/muxpilot/internal/tmux"
)

func handleKill(args []string) {
	fs := flag.NewFlagSet("kill", flag.ExitOnError)
	keepWorktree := fs.Bool("keep-worktree", false, "Leave the git worktree in place")
	force := fs.Bool("force", false, "Remove the worktree even with uncommitted changes")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: muxpilot kill [options] <name>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Kills the tmux session, forgets it, and removes its worktree")
		fmt.Fprintln(os.Stderr, "when worktree auto-cleanup is enabled.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	name := fs.Arg(0)

	cfg := loadConfig()
	client := &tmux.Client{SocketPath: cfg.SocketPath}

	db := openStore()
	defer db.Close()

	row, err := db.Get(name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}

	if client.HasSession(name) {
		if err := client.KillSession(name); err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: kill session: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Killed session %q\n", name)
	}

	if row != nil && row.WorktreePath != "" && cfg.Worktree.AutoCleanup && !*keepWorktree {
		if !*force {
			dirty, err := git.HasUncommittedChanges(row.WorktreePath)
			if err == nil && dirty {
				fmt.Fprintf(os.Stderr, "muxpilot: worktree %s has uncommitted changes; use -force or -keep-worktree\n", row.WorktreePath)
				os.Exit(1)
			}
		}
		if err := git.RemoveWorktree(row.ProjectPath, row.WorktreePath, *force); err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: remove worktree: %v\n", err)
		} else {
			fmt.Printf("Removed worktree %s\n", row.WorktreePath)
		}
	}

	if err := db.Delete(name); err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
}
