package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/cpage-pivotal/ipzs/internal/app"
	"github.com/cpage-pivotal/ipzs/internal/config"
	"github.com/cpage-pivotal/ipzs/internal/ingest"
	"github.com/cpage-pivotal/ipzs/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var sample bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/legisrag/config.yaml if not provided)")
	flag.BoolVar(&sample, "sample", false, "Load the built-in sample corpus")
	flag.Parse()
	inputs := flag.Args()
	if sample {
		inputs = append([]string{"sample"}, inputs...)
	}
	if len(inputs) == 0 {
		fmt.Println("Usage: legisrag [--config=config.yaml] [--sample] manifest.yaml|s3://bucket/key ...")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile("legisrag.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()
	logger := app.NewLogger(cfg.Log, logFile)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	var docs, chunks, failed int
	for _, in := range inputs {
		results, err := a.IngestFrom(ctx, in)
		if err != nil {
			log.Fatalf("ingest %s failed: %v", in, err)
		}
		for _, r := range results {
			docs++
			chunks += r.Chunks
			if r.Status == ingest.StatusFailed {
				failed++
			}
		}
	}
	summary := fmt.Sprintf("%d documents (%d chunks) loaded, %d failed", docs-failed, chunks, failed)

	m := tui.New(a.Advisor, summary)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
