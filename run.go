package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danthegoodman1/recollect/config"
	"github.com/danthegoodman1/recollect/features"
	"github.com/danthegoodman1/recollect/record"
	"github.com/danthegoodman1/recollect/relational"
)

var ErrNoVectors = errors.New("no vectors generated")

// LoadTables reads every configured delimited file into a scratch table.
func (p *Pipeline) LoadTables(ctx context.Context) error {
	for i := range p.cfg.Tables {
		tc := &p.cfg.Tables[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		s := time.Now()

		f, err := tc.DelimitedFile()
		if err != nil {
			return err
		}
		if err := f.InitFromFile(ctx); err != nil {
			return err
		}
		reader, err := f.Reader(p.cfg.MissingFunc(), p.discardHandler(tc.Name))
		if err != nil {
			return err
		}

		var stream record.Stream = reader
		if len(tc.Use) > 0 {
			cols := make([]record.Column, len(tc.Use))
			for j, name := range tc.Use {
				cols[j] = record.Col(name)
			}
			stream, err = record.Project(stream, cols...)
			if err != nil {
				return fmt.Errorf("table %s: %w", tc.Name, err)
			}
		}

		tbl, err := p.db.CreateTable(ctx, p.scratchName(tc.Name), stream.Header())
		if err != nil {
			return err
		}
		it, err := stream.Records()
		if err != nil {
			return err
		}
		n, err := tbl.AddAll(ctx, it)
		if err != nil {
			return fmt.Errorf("error loading table %s: %w", tc.Name, err)
		}
		p.tables[tc.Name] = tbl
		logger.Info().Str("table", tc.Name).Int64("rows", n).Str("duration", time.Since(s).String()).Msg("loaded table")
	}
	return nil
}

// ResolveFeatures loads the feature set from featuresPath when the file
// exists, otherwise detects one from the loaded tables and saves it
// there (when a path is given at all).
func (p *Pipeline) ResolveFeatures(ctx context.Context, featuresPath string) error {
	if featuresPath != "" {
		if _, err := os.Stat(featuresPath); err == nil {
			set, err := features.LoadFile(featuresPath)
			if err != nil {
				return err
			}
			logger.Info().Str("path", featuresPath).Int("features", set.Len()).Msg("loaded feature set")
			p.feats = set
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error in os.Stat: %w", err)
		}
	}

	streams := make(map[string]record.Stream, len(p.tables))
	for name, tbl := range p.tables {
		streams[name] = tbl
	}
	set, err := features.Detect(ctx, p.cfg, streams)
	if err != nil {
		return fmt.Errorf("error in features.Detect: %w", err)
	}
	logger.Info().Int("features", set.Len()).Msg("detected feature set")
	p.feats = set

	if featuresPath != "" {
		if err := set.SaveFile(featuresPath); err != nil {
			return err
		}
		logger.Info().Str("path", featuresPath).Msg("saved feature set")
	}
	return nil
}

// Emit merge-collects every table by its entity key and writes one
// vector per labeled entity.
func (p *Pipeline) Emit(ctx context.Context, w features.VectorWriter) (int64, error) {
	// The writer is closed exactly once, on success and on failure alike
	closed := false
	defer func() {
		if !closed {
			w.Close()
		}
	}()

	var specs []relational.RelationSpec
	headers := make(map[string]*record.Header, len(p.tables))
	var example *config.TableConfig

	for i := range p.cfg.Tables {
		tc := &p.cfg.Tables[i]
		tbl, ok := p.tables[tc.Name]
		if !ok {
			return 0, fmt.Errorf("table %s not loaded", tc.Name)
		}
		// Relation names must match config names, not scratch names
		stream := record.Rename(tbl, tc.Name)
		specs = append(specs, relational.RelOn(stream, tc.Key()))
		headers[tc.Name] = tbl.Header()
		if tc.TreatAs == config.TreatExamples && example == nil {
			example = tc
		}
	}
	if example == nil {
		return 0, config.ErrNoExamples
	}
	label, err := labelColumn(example, headers[example.Name])
	if err != nil {
		return 0, err
	}

	gen, err := features.NewGenerator(p.feats, headers,
		features.ExampleSource{Table: example.Name, Label: label},
		p.cfg.PositiveFunc(),
	)
	if err != nil {
		return 0, err
	}

	mc, err := relational.NewMergeCollect(specs...)
	if err != nil {
		return 0, err
	}
	defer mc.Close()

	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		group, err := mc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		v, ok, err := gen.Vector(group)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		if err := w.WriteVector(v); err != nil {
			return n, err
		}
		n++
	}
	closed = true
	if err := w.Close(); err != nil {
		return n, err
	}
	if n == 0 {
		return 0, ErrNoVectors
	}
	return n, nil
}

// DropScratch removes this run's scratch tables.
func (p *Pipeline) DropScratch(ctx context.Context) {
	for name := range p.tables {
		if err := p.db.DropTable(ctx, p.scratchName(name)); err != nil {
			logger.Warn().Err(err).Str("table", name).Msg("failed to drop scratch table")
		}
		delete(p.tables, name)
	}
}
