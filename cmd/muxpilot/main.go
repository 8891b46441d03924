package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/muxpilot/muxpilot/internal/config"
	"github.com/muxpilot/muxpilot/internal/logging"
)

const Version = "0.3.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures the lipgloss color profile based on terminal
// capabilities. Prefers TrueColor, falls back to ANSI256 for compatibility.
func initColorProfile() {
	// MUXPILOT_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("MUXPILOT_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	term := os.Getenv("TERM")
	trueColorTerms := []string{
		"xterm-256color",
		"screen-256color",
		"tmux-256color",
		"xterm-direct",
		"alacritty",
		"kitty",
		"wezterm",
	}
	for _, t := range trueColorTerms {
		if strings.Contains(term, t) {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	if os.Getenv("WT_SESSION") != "" ||
		os.Getenv("ITERM_SESSION_ID") != "" ||
		os.Getenv("TERMINAL_EMULATOR") != "" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	lipgloss.SetColorProfile(termenv.ANSI256)
}

// loadConfig loads the user config, exiting on a malformed file. Missing
// files fall back to defaults.
func loadConfig() *config.Config {
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// initLogging wires the rotating file logger from config. Daemon-style
// commands call this before doing any work.
func initLogging(cfg *config.Config) {
	dir, err := cfg.LogDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "muxpilot: %v\n", err)
		os.Exit(1)
	}
	level := "info"
	if cfg.Log.Debug {
		level = "debug"
	}
	logging.Init(logging.Config{
		LogDir: dir,
		Level:  level,
		Debug:  cfg.Log.Debug,
	})
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("muxpilot v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "new":
		handleNew(args[1:])
	case "list", "ls":
		handleList(args[1:])
	case "watch":
		handleWatch(args[1:])
	case "run":
		handleRun(args[1:])
	case "serve":
		handleServe(args[1:])
	case "attach", "a":
		handleAttach(args[1:])
	case "kill", "rm":
		handleKill(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Printf("muxpilot v%s\n", Version)
	fmt.Println("tmux session supervisor for CLI coding agents")
	fmt.Println()
	fmt.Println("Usage: muxpilot <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  new <name>       Create a supervised session (worktree + tmux)")
	fmt.Println("  ls               List supervised sessions")
	fmt.Println("  watch <session>  Mirror one session via tmux control mode")
	fmt.Println("  run              Run the polling automation daemon")
	fmt.Println("  serve            Serve the event socket and WebSocket bridge")
	fmt.Println("  attach <name>    Attach to a session (Ctrl-Q detaches)")
	fmt.Println("  kill <name>      Kill a session and forget it")
	fmt.Println("  version          Print version")
	fmt.Println()
	fmt.Println("Run 'muxpilot <command> -h' for command options.")
}
