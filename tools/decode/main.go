// Command decode converts logger files to canonical JSON lines and can
// store them in Postgres.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"pv-telemetry/internal/measurement/application"
	"pv-telemetry/internal/measurement/decoders"
	measurement "pv-telemetry/internal/measurement/domain"
	"pv-telemetry/internal/measurement/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	loggerType  string
	loggerID    string
	reconstruct bool
	upsert      bool
	dsn         string
	output      string
	quiet       bool
	files       []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "decode: ", 0)
	cfg, err := parseConfig(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		logger.Print(err)
		return 2
	}

	ingestCfg, err := application.LoadConfig()
	if err != nil {
		logger.Printf("config: %v", err)
		return 1
	}
	location, err := ingestCfg.Location()
	if err != nil {
		logger.Print(err)
		return 1
	}
	list, err := decoders.Standard(ingestCfg.Decoders())
	if err != nil {
		logger.Printf("decoders: %v", err)
		return 1
	}
	dispatcher, err := application.NewDispatcher(list...)
	if err != nil {
		logger.Printf("dispatcher: %v", err)
		return 1
	}
	var reconstructor *measurement.Reconstructor
	if cfg.reconstruct {
		if reconstructor, err = ingestCfg.Reconstructor(); err != nil {
			logger.Printf("reconstruction: %v", err)
			return 1
		}
	}

	var repo measurement.Repository
	if cfg.upsert {
		if cfg.dsn == "" {
			logger.Print("--upsert needs --pg-dsn, PG_DSN or DATABASE_URL")
			return 2
		}
		db, err := sql.Open("pgx", cfg.dsn)
		if err != nil {
			logger.Printf("open db: %v", err)
			return 1
		}
		defer db.Close()
		repo = postgres.NewMeasurementRepository(db)
	}

	out := stdout
	if cfg.output != "" && cfg.output != "-" {
		f, err := os.Create(cfg.output)
		if err != nil {
			logger.Print(err)
			return 1
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()
	enc := json.NewEncoder(w)

	status := 0
	for _, path := range cfg.files {
		records, warnings, err := decodeFile(ctx, dispatcher, cfg, path, stdin, location)
		if err != nil {
			logger.Printf("%s: %v", path, err)
			status = 1
			continue
		}
		if !cfg.quiet {
			for _, warn := range warnings {
				logger.Printf("%s: %s", path, warn)
			}
		}
		if reconstructor != nil {
			if records, err = reconstructor.ReconstructAll(records); err != nil {
				logger.Printf("%s: reconstruct: %v", path, err)
				status = 1
				continue
			}
		}
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				logger.Printf("write: %v", err)
				return 1
			}
		}
		if repo != nil && len(records) > 0 {
			if err := upsert(ctx, repo, records, ingestCfg.BatchSize); err != nil {
				logger.Printf("%s: upsert: %v", path, err)
				status = 1
				continue
			}
		}
		logger.Printf("%s: %d records, %d skipped", path, len(records), measurement.SkippedRows(warnings))
	}
	return status
}

func parseConfig(args []string, stderr io.Writer) (config, error) {
	cfg := config{}
	flags := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&cfg.loggerType, "type", "t", "", "logger type ("+typeList()+")")
	flags.StringVar(&cfg.loggerID, "logger-id", "", "logger id for files without a device identity")
	flags.BoolVarP(&cfg.reconstruct, "reconstruct", "r", false, "rewrite interval energy into running daily totals")
	flags.BoolVar(&cfg.upsert, "upsert", false, "store decoded records in Postgres")
	flags.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flags.StringVarP(&cfg.output, "output", "o", "-", "JSON lines output file")
	flags.BoolVarP(&cfg.quiet, "quiet", "q", false, "do not print row warnings")
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: decode --type TYPE [flags] FILE... (use - for stdin)")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}
	cfg.files = flags.Args()
	if cfg.loggerType == "" {
		return cfg, errors.New("--type is required")
	}
	if len(cfg.files) == 0 {
		cfg.files = []string{"-"}
	}
	return cfg, nil
}

func decodeFile(ctx context.Context, d *application.Dispatcher, cfg config, path string, stdin io.Reader, loc *time.Location) ([]measurement.Measurement, []measurement.RowWarning, error) {
	src := stdin
	if path != "-" {
		f, err := os.Open(filepath.Clean(path))
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		src = f
	}
	stream, err := d.Decode(ctx, cfg.loggerType, src, measurement.Options{LoggerID: cfg.loggerID, Location: loc})
	if err != nil {
		return nil, nil, err
	}
	return measurement.Collect(stream)
}

func upsert(ctx context.Context, repo measurement.Repository, records []measurement.Measurement, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(records)
	}
	for offset := 0; offset < len(records); offset += batchSize {
		end := offset + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := repo.UpsertMeasurements(ctx, records[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

func typeList() string {
	names := make([]string, 0)
	for _, t := range measurement.LoggerTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
