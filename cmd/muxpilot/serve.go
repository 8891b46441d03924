package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muxpilot/muxpilot/internal/events"
	"github.com/muxpilot/muxpilot/internal/logging"
)

func handleServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listen := fs.String("listen", "", "WebSocket bridge address (default from config)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: muxpilot serve [options]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Serves the event unix socket and the WebSocket bridge, and")
		fmt.Fprintln(os.Stderr, "republishes hook event files dropped into the ingest directory.")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Options:")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg := loadConfig()
	initLogging(cfg)
	defer logging.Shutdown()
	log := logging.ForComponent(logging.CompCLI)

	broker := events.NewBroker()
	defer broker.Close()

	socket, err := cfg.EventSocket()
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
	if err := broker.Listen(socket); err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: listen %s: %v\n", socket, err)
		os.Exit(1)
	}
	log.Info("event socket ready", "path", socket)

	addr := *listen
	if addr == "" {
		addr = cfg.Events.Listen
	}
	bridge := events.NewBridge(broker, addr)
	go func() {
		if err := bridge.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("websocket bridge", "error", err)
		}
	}()
	log.Info("websocket bridge ready", "addr", addr)

	var ingester *events.Ingester
	if cfg.Events.IngestDir != "" {
		ingester, err = events.NewIngester(cfg.Events.IngestDir, broker)
		if err != nil {
			fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
			os.Exit(1)
		}
		go func() {
			if err := ingester.Start(); err != nil {
				log.Error("ingester", "error", err)
			}
		}()
		log.Info("ingest directory watched", "dir", cfg.Events.IngestDir)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if ingester != nil {
		ingester.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = bridge.Shutdown(ctx)
}
