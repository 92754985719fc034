package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cpage-pivotal/ipzs/internal/api"
	"github.com/cpage-pivotal/ipzs/internal/app"
	"github.com/cpage-pivotal/ipzs/internal/config"
)

func main() {
	// Try current directory first, then project root
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	var cfgPath, seed string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/legisrag/config.yaml if not provided)")
	flag.StringVar(&seed, "ingest", "", "Manifest to ingest before serving: a path, s3://bucket/key or \"sample\"")
	flag.Parse()

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

	logger := app.NewLogger(cfg.Log, os.Stderr)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	if seed != "" {
		results, err := a.IngestFrom(ctx, seed)
		if err != nil {
			log.Fatalf("ingest %s failed: %v", seed, err)
		}
		logger.Info("seed corpus ingested", "source", seed, "documents", len(results))
	}

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(
		api.NewChatHandler(a.Advisor, logger),
		api.NewDocumentHandler(a.Records, a.Ingester, a.Quality, logger),
		api.RouterConfig{AllowedOrigins: cfg.Server.AllowedOrigins, Logger: logger},
	)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", "addr", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start server:", err)
	}
}
