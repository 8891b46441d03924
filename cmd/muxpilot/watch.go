package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/muxpilot/muxpilot/internal/events"
	"github.com/muxpilot/muxpilot/internal/tmux"
	"github.com/muxpilot/muxpilot/internal/watcher"
)

func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print emitted events to stdout as JSON lines")
	noServe := fs.Bool("no-serve", false, "Do not expose events on the unix socket")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: muxpilot watch [options] [session]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Mirrors one tmux session through control mode and publishes")
		fmt.Fprintln(os.Stderr, "structure snapshots. Without a session argument the session")
		fmt.Fprintln(os.Stderr, "the command runs inside is watched.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig()
	initLogging(cfg)

	client := &tmux.Client{SocketPath: cfg.SocketPath}

	var sessionID, sessionName string
	if fs.NArg() > 0 {
		sessionName = fs.Arg(0)
		sessions, err := client.ListSessions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
			os.Exit(1)
		}
		for _, s := range sessions {
			if s.Name == sessionName {
				sessionID = s.ID
				break
			}
		}
		if sessionID == "" {
			fmt.Fprintf(os.Stderr, "muxpilot: session %q not found\n", sessionName)
			os.Exit(1)
		}
	} else {
		var err error
		sessionID, sessionName, err = client.CurrentSession()
		if err != nil {
			fmt.Fprintln(os.Stderr, "muxpilot: not inside tmux; pass a session name")
			os.Exit(1)
		}
	}

	broker := events.NewBroker()
	defer broker.Close()

	if !*noServe {
		socket, err := cfg.EventSocket()
		if err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
			os.Exit(1)
		}
		if err := broker.Listen(socket); err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: listen %s: %v\n", socket, err)
			os.Exit(1)
		}
	}

	if *asJSON {
		sub, unsubscribe := broker.Subscribe()
		defer unsubscribe()
		go func() {
			enc := json.NewEncoder(os.Stdout)
			for ev := range sub {
				_ = enc.Encode(ev)
			}
		}()
	}

	w := watcher.New(sessionID, sessionName, cfg.SocketPath, broker)
	if err := w.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		w.Stop()
	case <-w.Done():
	}
	<-w.Done()
}
