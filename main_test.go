package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/danthegoodman1/recollect/config"
	"github.com/danthegoodman1/recollect/features"
	"github.com/danthegoodman1/recollect/tabledb"
)

func writeDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"demographics.csv": "patient_id,birth_year,gender\n1,1950,F\n2,1961,M\n3,1944,F\n",
		"diagnoses.csv":    "patient_id,dx_code,seen\n1,m1059,2014-07-09\n1,m1059,2014-09-02\n2,c402,2015-01-20\nbogus,x999,2015-01-21\n",
		"examples.csv":     "patient_id,label\n1,1\n2,0\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := writeDataDir(t)

	cfg, err := resolveConfig(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	// Generated config lands next to the data for review
	if _, err := os.Stat(filepath.Join(dir, generatedConfigName)); err != nil {
		t.Fatal("generated config not saved:", err)
	}
	cfg.IsPositive = []string{"1"}

	db, err := tabledb.NewSQLiteDatabase("")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Shutdown(ctx)

	p := NewPipeline(cfg, db, "t1")
	if err := p.LoadTables(ctx); err != nil {
		t.Fatal(err)
	}
	// The bogus diagnoses row is discarded, not fatal
	if p.Discarded() != 1 {
		t.Fatal("wrong discard count:", p.Discarded())
	}

	featuresPath := filepath.Join(dir, "features.txt")
	if err := p.ResolveFeatures(ctx, featuresPath); err != nil {
		t.Fatal(err)
	}
	if p.feats == nil || p.feats.Len() == 0 {
		t.Fatal("no features detected")
	}
	// Detected set is persisted and reloadable
	reloaded, err := features.LoadFile(featuresPath)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != p.feats.Len() {
		t.Fatal("persisted feature set does not round-trip")
	}

	var buf bytes.Buffer
	n, err := p.Emit(ctx, features.NewSVMLightWriter(&buf))
	if err != nil {
		t.Fatal(err)
	}
	// Patients 1 and 2 are labeled; patient 3 has no example record
	if n != 2 {
		t.Fatal("wrong vector count:", n)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatal("wrong line count:", lines)
	}
	if !strings.HasPrefix(lines[0], "+1 ") || !strings.HasSuffix(lines[0], "# 1") {
		t.Fatal("wrong first vector line:", lines[0])
	}
	if !strings.HasPrefix(lines[1], "-1 ") {
		t.Fatal("wrong second vector line:", lines[1])
	}

	// The m1059 count feature sees both events for patient 1
	var countFeature features.Feature
	found := false
	for _, f := range p.feats.Features() {
		if f.Value == "m1059" {
			countFeature, found = f, true
		}
	}
	if !found {
		t.Fatal("m1059 feature not detected")
	}
	wantEntry := " " + strconv.Itoa(countFeature.Number) + ":2"
	if !strings.Contains(lines[0], wantEntry) {
		t.Fatalf("line %q missing entry %q", lines[0], wantEntry)
	}

	p.DropScratch(ctx)
	if len(p.tables) != 0 {
		t.Fatal("scratch tables not dropped")
	}
}

type sinkFullWriter struct {
	closes int
}

func (w *sinkFullWriter) WriteVector(*features.Vector) error {
	return errors.New("sink full")
}

func (w *sinkFullWriter) Close() error {
	w.closes++
	return nil
}

func TestEmitClosesWriterOnError(t *testing.T) {
	ctx := context.Background()
	dir := writeDataDir(t)

	cfg, err := resolveConfig(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg.IsPositive = []string{"1"}

	db, err := tabledb.NewSQLiteDatabase("")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Shutdown(ctx)

	p := NewPipeline(cfg, db, "t2")
	if err := p.LoadTables(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.ResolveFeatures(ctx, ""); err != nil {
		t.Fatal(err)
	}

	w := &sinkFullWriter{}
	if _, err := p.Emit(ctx, w); err == nil {
		t.Fatal("expected write error")
	}
	if w.closes != 1 {
		t.Fatal("writer not closed exactly once on failure:", w.closes)
	}
	p.DropScratch(ctx)
}

func TestOpenWriterAbortRemovesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.svm")
	t.Setenv("OUTPUT_FORMAT", "svmlight")
	t.Setenv("OUTPUT_PATH", path)

	w, _, abort, err := openWriter(context.Background(), &Pipeline{}, "t3")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteVector(&features.Vector{Key: "1", Label: 1, Entries: []features.Entry{{Index: 1, Value: 1}}}); err != nil {
		t.Fatal(err)
	}
	abort()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("partial output not removed:", err)
	}
}

func TestResolveConfigReusesGenerated(t *testing.T) {
	ctx := context.Background()
	dir := writeDataDir(t)

	first, err := resolveConfig(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate a hand edit, then confirm the edited file wins
	first.IsPositive = []string{"1"}
	if err := first.Save(filepath.Join(dir, generatedConfigName)); err != nil {
		t.Fatal(err)
	}
	second, err := resolveConfig(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.IsPositive) != 1 || second.IsPositive[0] != "1" {
		t.Fatal("edited config not reused:", second.IsPositive)
	}
}

func TestLabelColumn(t *testing.T) {
	cfg, err := config.Parse([]byte(`
tables:
  - name: facts
    file: f.csv
    treat_as: facts
  - name: cohort
    file: c.csv
    columns:
      - {name: patient_id, type: int}
      - {name: outcome, type: str}
    id: [patient_id]
    treat_as: examples
`))
	if err != nil {
		t.Fatal(err)
	}
	tc, err := cfg.Table("cohort")
	if err != nil {
		t.Fatal(err)
	}
	h, err := tc.Header()
	if err != nil {
		t.Fatal(err)
	}
	col, err := labelColumn(tc, h)
	if err != nil {
		t.Fatal(err)
	}
	if idx, err := col.Resolve(h); err != nil || idx != 1 {
		t.Fatal("wrong label column:", col, err)
	}
}
