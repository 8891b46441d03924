package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/muxpilot/muxpilot/internal/automation"
	"github.com/muxpilot/muxpilot/internal/events"
	"github.com/muxpilot/muxpilot/internal/logging"
	"github.com/muxpilot/muxpilot/internal/match"
	"github.com/muxpilot/muxpilot/internal/proctree"
	"github.com/muxpilot/muxpilot/internal/tmux"
)

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	mode := fs.String("mode", "", "Override automation mode: act, plan, all")
	noServe := fs.Bool("no-serve", false, "Do not expose events on the unix socket")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: muxpilot run [options]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Runs the polling automation daemon: captures pane content,")
		fmt.Fprintln(os.Stderr, "evaluates matchers while the agent is present, and dispatches")
		fmt.Fprintln(os.Stderr, "configured responses. Runs until interrupted.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompCLI)

	runMode := cfg.Mode
	if *mode != "" {
		runMode = *mode
	}
	switch match.Mode(runMode) {
	case match.ModeAct, match.ModePlan, match.ModeAll:
	default:
		fmt.Fprintf(os.Stderr, "muxpilot: invalid mode %q\n", runMode)
		os.Exit(1)
	}

	defs := match.DefaultDefinitions()
	matchersPath, err := cfg.MatchersPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
	if _, statErr := os.Stat(matchersPath); statErr == nil {
		defs, err = match.LoadDefinitions(matchersPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
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

	// Record matcher firings against the session rows so ls can show
	// the last automation per session.
	db := openStore()
	defer db.Close()
	sub, unsubscribe := broker.Subscribe()
	defer unsubscribe()
	go func() {
		for ev := range sub {
			wa, ok := ev.Data.(events.WindowAutomation)
			if !ok {
				continue
			}
			if err := db.RecordAutomation(wa.SessionName, wa.MatcherName); err != nil {
				log.Warn("record automation", "session", wa.SessionName, "error", err)
			}
		}
	}()

	client := &tmux.Client{SocketPath: cfg.SocketPath}
	engine := automation.New(client, proctree.New(), broker, automation.Config{
		Interval:     cfg.Automation.Interval(),
		FastInterval: cfg.Automation.FastInterval(),
		AgentName:    cfg.Agent,
		Mode:         match.Mode(runMode),
		Definitions:  defs,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		cancel()
	}()

	log.Info("automation daemon starting",
		"agent", cfg.Agent, "mode", runMode, "matchers", len(defs))
	engine.Run(ctx)
}
