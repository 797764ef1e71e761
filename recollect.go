package main

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/danthegoodman1/recollect/config"
	"github.com/danthegoodman1/recollect/features"
	"github.com/danthegoodman1/recollect/record"
	"github.com/danthegoodman1/recollect/tabledb"
)

type (
	// Pipeline drives one collection run: delimited files go into
	// scratch tables, features are detected or loaded, records are
	// merge-collected by entity, and vectors are written out.
	Pipeline struct {
		cfg *config.Config
		db  tabledb.Database

		// loaded scratch tables by config table name
		tables map[string]tabledb.Table
		// scratch table names carry a per-run suffix
		runID string

		feats *features.Set

		discarded atomic.Int64
	}
)

func NewPipeline(cfg *config.Config, db tabledb.Database, runID string) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		db:     db,
		tables: make(map[string]tabledb.Table),
		runID:  runID,
	}
}

// Discarded reports how many malformed records were dropped during
// loading, across all tables.
func (p *Pipeline) Discarded() int64 {
	return p.discarded.Load()
}

func (p *Pipeline) scratchName(table string) string {
	return table + "_" + p.runID
}

// discardHandler logs and counts records the readers could not parse.
func (p *Pipeline) discardHandler(table string) record.ErrorHandler {
	return func(err error, rec record.Record) {
		p.discarded.Add(1)
		logger.Warn().Err(err).Str("table", table).Str("record", fmt.Sprint(rec)).Msg("discarding malformed record")
	}
}

// labelColumn picks the label column of an examples table: a column
// named "label", otherwise the last non-key column.
func labelColumn(tc *config.TableConfig, header *record.Header) (record.Column, error) {
	keyCols := make(map[string]bool, len(tc.ID))
	for _, name := range tc.ID {
		keyCols[name] = true
	}
	last := ""
	for _, name := range header.Names() {
		if keyCols[name] {
			continue
		}
		if strings.EqualFold(name, "label") {
			return record.Col(name), nil
		}
		last = name
	}
	if last == "" {
		return record.Column{}, fmt.Errorf("examples table %s has no label column", tc.Name)
	}
	return record.Col(last), nil
}
