package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/muxpilot/muxpilot/internal/store"
	"github.com/muxpilot/muxpilot/internal/tmux"
)

func handleAttach(args []string) {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: muxpilot attach <name>")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Attaches the terminal to the session. Ctrl-Q detaches and")
		fmt.Fprintln(os.Stderr, "leaves the session running.")
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
	if _, err := db.Get(name); err != nil && !errors.Is(err, store.ErrNotFound) {
		db.Close()
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
	_ = db.TouchAccessed(name)
	db.Close()

	if err := client.Attach(context.Background(), name); err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
}
