package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/mcclellann/quincena/pkg/config"
	"github.com/mcclellann/quincena/pkg/ledger"
	"github.com/mcclellann/quincena/pkg/store"
	"github.com/sirupsen/logrus"
)

func main() {
	asOfFlag := flag.String("as-of", "", "Assessment date in YYYY-MM-DD format (defaults to now)")
	outFlag := flag.String("out", "", "CSV output path (defaults to stdout)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := cfg.NewLogger()
	log.SetOutput(os.Stderr)

	var asOf time.Time
	if *asOfFlag != "" {
		asOf, err = time.Parse(time.DateOnly, *asOfFlag)
		if err != nil {
			log.Fatalf("Invalid date format: %v", err)
		}
	}

	sqlStore, err := store.NewSQLStore(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.Database.Driver, err)
	}
	defer sqlStore.Close()

	if err := run(context.Background(), ledger.NewLedger(sqlStore, log, ledger.WithWorkers(cfg.Scoring.Workers)), asOf, *outFlag, log); err != nil {
		log.Fatalf("Risk report failed: %v", err)
	}
}

func run(ctx context.Context, l *ledger.Ledger, asOf time.Time, out string, log *logrus.Logger) error {
	scores, err := l.ScoreAllBorrowers(ctx, asOf)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out != "" {
		file, err := os.Create(out)
		if err != nil {
			return err
		}
		defer file.Close()
		w = file
	}

	if err := WriteScores(w, scores); err != nil {
		return err
	}
	log.WithField("borrowers", len(scores)).Info("Risk report written")
	return nil
}
