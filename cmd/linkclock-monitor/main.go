// ABOUTME: Entry point for the linkclock monitor
// ABOUTME: Parses CLI flags and starts the monitor application
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/internal/app"
	"github.com/Resonate-Protocol/linkclock-go/internal/config"
)

func main() {
	var cfg config.Monitor
	if err := config.ParseEnv(&cfg); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	flag.StringVar(&cfg.Server, "server", cfg.Server, "Manual host address (skip mDNS)")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "Monitor friendly name (default: hostname-linkclock-monitor)")
	flag.Float64Var(&cfg.Resolution, "resolution", cfg.Resolution, "Steps per beat the host was started with")
	flag.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Log file path")
	syncInterval := flag.Duration("sync-interval", time.Second, "Clock sync interval")
	flag.Parse()

	// the TUI owns the terminal; log only to file
	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()
	log.SetOutput(f)

	monitorName := cfg.Name
	if monitorName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		monitorName = fmt.Sprintf("%s-linkclock-monitor", hostname)
	}

	log.Printf("Starting linkclock monitor: %s", monitorName)
	if cfg.Server == "" {
		log.Printf("Starting host discovery...")
	}

	monitor := app.New(app.Config{
		ServerAddr:   cfg.Server,
		Name:         monitorName,
		StepsPerBeat: cfg.Resolution,
		SyncInterval: *syncInterval,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Printf("Shutdown signal received")
		monitor.Stop()
	}()

	if err := monitor.Start(); err != nil {
		log.Fatalf("Monitor error: %v", err)
	}

	log.Printf("Monitor stopped")
}
