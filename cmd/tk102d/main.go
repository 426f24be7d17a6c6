package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tk102-ng/internal/config"
	"tk102-ng/internal/web"
)

func main() {
	var configPath string
	var logSummaryPath string
	var verbose bool
	flag.StringVar(&configPath, "config", "", "Path to YAML config (defaults when empty)")
	flag.StringVar(&logSummaryPath, "log-summary", "", "Print a summary of a recorded payload log and exit")
	flag.BoolVar(&verbose, "verbose", false, "Log connection and data events")
	flag.Parse()

	if strings.TrimSpace(logSummaryPath) != "" {
		if err := printLogSummary(logSummaryPath); err != nil {
			log.Fatalf("log summary failed: %v", err)
		}
		return
	}

	cfg := config.Default()
	if strings.TrimSpace(configPath) != "" {
		c, err := config.Load(configPath)
		if err != nil {
			log.Fatalf("config load failed: %v", err)
		}
		cfg = c
	}

	logs := web.NewLogBuffer(500)
	log.SetOutput(io.MultiWriter(os.Stderr, logs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("tk102-ng starting")
	if err := run(ctx, cfg, logs, verbose); err != nil {
		log.Fatalf("tk102-ng: %v", err)
	}
	log.Printf("tk102-ng stopped")
}
