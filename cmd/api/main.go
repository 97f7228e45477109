package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/quincena/pkg/config"
	"github.com/mcclellann/quincena/pkg/ledger"
	"github.com/mcclellann/quincena/pkg/store"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := cfg.NewLogger()

	sqlStore, err := store.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	defer sqlStore.Close()

	server := NewServer(sqlStore, log, ledger.WithWorkers(cfg.Scoring.Workers))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Scoring.ReportInterval > 0 {
		go runPortfolioReport(ctx, server.ledger, cfg.Scoring.ReportInterval, log)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Server starting on :%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	log.Info("Server exited")
}

// runPortfolioReport scores the whole portfolio on every tick until ctx is done.
func runPortfolioReport(ctx context.Context, l *ledger.Ledger, interval time.Duration, log *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Debug("Running portfolio scoring...")
			l.ReportPortfolio(ctx)
		}
	}
}
