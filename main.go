package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/danthegoodman1/recollect/config"
	"github.com/danthegoodman1/recollect/features"
	"github.com/danthegoodman1/recollect/gologger"
	"github.com/danthegoodman1/recollect/migrations"
	"github.com/danthegoodman1/recollect/s3_helper"
	"github.com/danthegoodman1/recollect/tabledb"
	"github.com/danthegoodman1/recollect/utils"
)

var logger = gologger.NewLogger()

const generatedConfigName = "recollect.yml"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: recollect <data-dir | config.yml>")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1]); err != nil {
		logger.Error().Err(err).Msg("pipeline failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, target string) error {
	start := time.Now()
	runID := utils.GenKSortedID("run_")
	logger.Info().Str("runID", runID).Str("target", target).Msg("starting collection run")

	cfg, err := resolveConfig(ctx, target)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Shutdown(context.Background())

	p := NewPipeline(cfg, db, utils.GenRandomShortID())
	defer p.DropScratch(context.Background())

	if err := p.LoadTables(ctx); err != nil {
		return err
	}
	if err := p.ResolveFeatures(ctx, os.Getenv("FEATURES_PATH")); err != nil {
		return err
	}

	w, finish, abort, err := openWriter(ctx, p, runID)
	if err != nil {
		return err
	}
	delivered := false
	defer func() {
		if !delivered {
			abort()
		}
	}()
	n, err := p.Emit(ctx, w)
	if err != nil {
		return err
	}
	if err := finish(); err != nil {
		return err
	}
	delivered = true

	logger.Info().Str("runID", runID).Int64("vectors", n).Int64("discarded", p.Discarded()).Str("duration", time.Since(start).String()).Msg("collection run complete")
	return nil
}

// resolveConfig loads target as a config file, or scans it as a data
// directory, generating (and saving) a starting config.
func resolveConfig(ctx context.Context, target string) (*config.Config, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("error in os.Stat: %w", err)
	}
	if !info.IsDir() {
		return config.Load(target)
	}

	generated := filepath.Join(target, generatedConfigName)
	if _, err := os.Stat(generated); err == nil {
		logger.Info().Str("path", generated).Msg("using config from data directory")
		return config.Load(generated)
	}

	cfg, err := config.Detect(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("generated config does not validate, edit and rerun: %w", err)
	}
	if err := cfg.Save(generated); err != nil {
		return nil, err
	}
	logger.Info().Str("path", generated).Msg("generated config, review treatments and labels there")
	return cfg, nil
}

func openDatabase(ctx context.Context) (tabledb.Database, error) {
	engine := utils.GetEnvOrDefault("DB_ENGINE", "sqlite")
	switch engine {
	case "sqlite":
		return tabledb.NewSQLiteDatabase(os.Getenv("SQLITE_PATH"))
	case "pg":
		if os.Getenv("RUN_MIGRATIONS") == "1" {
			n, err := migrations.RunMigrations(utils.PG_DSN)
			if err != nil {
				return nil, fmt.Errorf("error in migrations.RunMigrations: %w", err)
			}
			logger.Info().Int("applied", n).Msg("ran migrations")
		}
		return tabledb.NewPGDatabase(ctx)
	default:
		return nil, fmt.Errorf("unknown DB_ENGINE %q", engine)
	}
}

// openWriter builds the vector writer for OUTPUT_FORMAT and OUTPUT_PATH.
// The returned finish func delivers the output (closing the file, or
// uploading to S3 for s3:// paths); call it after the pipeline succeeds.
// On failure call abort instead, which discards any partial output.
func openWriter(ctx context.Context, p *Pipeline, runID string) (features.VectorWriter, func() error, func(), error) {
	format := utils.GetEnvOrDefault("OUTPUT_FORMAT", "svmlight")
	var defaultPath string
	switch format {
	case "svmlight":
		defaultPath = runID + ".svm"
	case "parquet":
		defaultPath = runID + ".parquet"
	default:
		return nil, nil, nil, fmt.Errorf("unknown OUTPUT_FORMAT %q", format)
	}
	path := utils.GetEnvOrDefault("OUTPUT_PATH", defaultPath)

	var sink io.Writer
	var finish func() error
	var abort func()
	if strings.HasPrefix(path, "s3://") {
		buf := &bytes.Buffer{}
		sink = buf
		key := strings.TrimPrefix(path, "s3://")
		finish = func() error {
			_, err := s3_helper.WriteBytesToS3(ctx, key, buf, utils.Ptr(contentType(format)))
			if err != nil {
				return err
			}
			logger.Info().Str("key", key).Int("bytes", buf.Len()).Msg("uploaded output to s3")
			return nil
		}
		// Nothing uploaded yet, the buffer is simply dropped
		abort = func() {}
	} else {
		file, err := os.Create(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("error in os.Create: %w", err)
		}
		sink = file
		finish = func() error {
			logger.Info().Str("path", path).Msg("wrote output")
			return file.Close()
		}
		abort = func() {
			file.Close()
			if err := os.Remove(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("failed to remove partial output")
			}
		}
	}

	switch format {
	case "svmlight":
		return features.NewSVMLightWriter(sink), finish, abort, nil
	default:
		w, err := features.NewParquetMatrixWriter(sink, p.feats)
		if err != nil {
			abort()
			return nil, nil, nil, err
		}
		return w, finish, abort, nil
	}
}

func contentType(format string) string {
	if format == "svmlight" {
		return "text/plain"
	}
	return "application/octet-stream"
}
