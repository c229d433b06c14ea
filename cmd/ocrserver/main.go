package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/wudi/ocrkit/config"
	"github.com/wudi/ocrkit/observability"
	"github.com/wudi/ocrkit/ocr"
	_ "github.com/wudi/ocrkit/ocr/tesseract"
	"github.com/wudi/ocrkit/scratch"
	"github.com/wudi/ocrkit/server"
)

func main() {
	// A missing .env is fine; the environment itself still applies.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewZerolog(os.Stderr, cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	sm := scratch.NewManager(cfg.TempDir, log)
	if err := sm.Startup(); err != nil {
		log.Error("scratch startup failed", observability.Error("err", err))
		os.Exit(1)
	}

	engine := ocr.DefaultEngine()
	log.Info("starting up",
		observability.String("engine", engine.Name()),
		observability.String("addr", cfg.Addr()),
		observability.Int("concurrency", cfg.MaxConcurrentOCR),
		observability.String("languages", strings.Join(cfg.Languages(), ",")),
		observability.Bool("gpu", cfg.OCRGPUEnabled))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.New(cfg, engine, sm, log).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server stopped", observability.Error("err", err))
	case sig := <-stop:
		log.Info("shutting down", observability.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", observability.Error("err", err))
		}
		cancel()
	}

	sm.Shutdown()
}
