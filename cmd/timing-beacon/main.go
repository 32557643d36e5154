// ABOUTME: Entry point for the timing beacon node
// ABOUTME: Parses CLI flags, sets up logging, and runs the orchestrator
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/finger563/esp-timing-tests/internal/app"
	"github.com/finger563/esp-timing-tests/internal/config"
	"github.com/finger563/esp-timing-tests/internal/link"
	"github.com/finger563/esp-timing-tests/internal/ui"
)

var (
	configPath = flag.String("config", "", "Path to TOML config file")
	gateway    = flag.String("gateway", "", "Gateway address override (skip mDNS)")
	name       = flag.String("name", "", "Node name (default: hostname-beacon)")
	logFile    = flag.String("log-file", "timing-beacon.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	useTUI := !(*noTUI || *streamLogs)

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("config error: %v", err)
		}
	}
	if *gateway != "" {
		cfg.Link.Gateway = *gateway
	}

	nodeName := *name
	if nodeName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "timing"
		}
		nodeName = hostname + "-beacon"
	}
	if cfg.Node.Name != "" && *name == "" {
		nodeName = cfg.Node.Name
	}

	var tuiProg *tea.Program
	if useTUI {
		tuiProg, err = ui.Run(nodeName)
		if err != nil {
			log.Fatalf("failed to start TUI: %v", err)
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
		}()
	}

	node := app.New(cfg, nodeName, tuiProg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("Shutting down")
		node.Stop()
	}()

	if err := node.Start(); err != nil {
		if errors.Is(err, link.ErrRetriesExhausted) {
			log.Fatalf("connectivity lost for good: %v", err)
		}
		log.Fatalf("node error: %v", err)
	}
}
