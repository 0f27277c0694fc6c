package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"libris/pkg/bench"
	"libris/pkg/config"
	"libris/pkg/dataset"
	"libris/pkg/storage"
)

func main() {
	_ = godotenv.Load(".env.local")

	configPath := flag.String("config", "", "YAML config (default: configs/libris.yaml or libris.yaml)")
	booksFile := flag.String("books", "", "books JSONL file")
	usersFile := flag.String("users", "", "users JSONL file")
	experiments := flag.Int("experiments", 0, "repetitions per configuration")
	operations := flag.Int("ops", 0, "operations per repetition")
	sizes := flag.String("sizes", "", "comma separated dataset sizes")
	variants := flag.String("variants", "", "comma separated index variants")
	workers := flag.Int("workers", 0, "configurations run in parallel")
	outputDir := flag.String("out", "", "output directory")
	sqlitePath := flag.String("sqlite", "", "also store results in this SQLite database")
	replay := flag.String("replay", "", "replay this workload trace instead of generating one")
	verify := flag.Bool("verify", false, "check catalog invariants after every repetition")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	if *booksFile != "" {
		cfg.Dataset.BooksFile = *booksFile
	}
	if *usersFile != "" {
		cfg.Dataset.UsersFile = *usersFile
	}
	if *experiments > 0 {
		cfg.Bench.Experiments = *experiments
	}
	if *operations > 0 {
		cfg.Workload.Operations = *operations
	}
	if *workers > 0 {
		cfg.Bench.Workers = *workers
	}
	if *variants != "" {
		cfg.Bench.Variants = strings.Split(*variants, ",")
	}
	if *sizes != "" {
		cfg.Bench.Sizes = nil
		for _, s := range strings.Split(*sizes, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				log.Fatalf("Invalid size %q: %v", s, err)
			}
			cfg.Bench.Sizes = append(cfg.Bench.Sizes, n)
		}
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *sqlitePath != "" {
		cfg.Output.SQLite = *sqlitePath
	}
	if *replay != "" {
		cfg.Workload.Replay = *replay
	}
	if *verify {
		cfg.Bench.Verify = true
	}

	ds, err := dataset.Load(cfg.Dataset.BooksFile, cfg.Dataset.UsersFile)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	logger.Info("dataset loaded", "books", len(ds.Books), "users", len(ds.Users))

	hc, err := cfg.Harness()
	if err != nil {
		log.Fatalf("Invalid benchmark config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jsonStore := storage.NewJSONStore(cfg.Output.Dir, cfg.Output.File)
	sinks := []bench.Sink{jsonStore}
	var db *storage.SQLiteStore
	if cfg.Output.SQLite != "" {
		db, err = storage.OpenSQLite(ctx, cfg.Output.SQLite)
		if err != nil {
			log.Fatalf("Failed to open results database: %v", err)
		}
		sinks = append(sinks, db)
	}

	h, err := bench.New(hc, ds, bench.WithLogger(logger), bench.WithSinks(sinks...))
	if err != nil {
		log.Fatalf("Failed to set up benchmark: %v", err)
	}

	rep, err := h.Run(ctx)
	if db != nil {
		if cerr := db.Close(); cerr != nil {
			log.Printf("Failed to close results database: %v", cerr)
		}
	}
	if rep != nil {
		if err := rep.WriteSummary(os.Stdout); err != nil {
			log.Printf("Failed to print summary: %v", err)
		}
		fmt.Printf("\nResults saved to %s\n", jsonStore.Path())
	}
	if errors.Is(err, context.Canceled) {
		logger.Warn("benchmark interrupted, partial results saved")
		os.Exit(130)
	}
	if err != nil {
		log.Fatalf("Benchmark failed: %v", err)
	}
}
