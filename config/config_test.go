package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danthegoodman1/recollect/record"
)

const sampleYAML = `
is_missing: ["", "NA"]
is_positive: ["1", "yes"]
tables:
  - name: demographics
    file: demographics.csv
    format:
      delimiter: ","
      data_start_line: 2
    columns:
      - name: patient_id
        type: int
      - name: birth_year
        type: int
      - name: gender
        type: str
    id: [patient_id]
    treat_as: facts
  - name: diagnoses
    file: diagnoses.csv
    columns:
      - name: patient_id
        type: int
      - name: dx_code
        type: str
      - name: seen
        type: date
    id: [patient_id]
    treat_as: events
  - name: cohort
    file: cohort.csv
    columns:
      - name: patient_id
        type: int
      - name: label
        type: str
    id: [patient_id]
    treat_as: examples
`

func TestParseAndValidate(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Tables) != 3 {
		t.Fatal("wrong table count:", len(c.Tables))
	}

	tc, err := c.Table("demographics")
	if err != nil {
		t.Fatal(err)
	}
	h, err := tc.Header()
	if err != nil {
		t.Fatal(err)
	}
	if h.Len() != 3 || h.TypeAt(0) != record.TypeInt || h.NameAt(2) != "gender" {
		t.Fatal("wrong header:", h)
	}
	if tc.Key() != record.Col("patient_id") {
		t.Fatal("wrong key:", tc.Key())
	}

	f, err := tc.DelimitedFile()
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "demographics" || f.Format.Delimiter != ',' || f.Format.DataStartLine != 2 {
		t.Fatalf("wrong file descriptor: %+v", f)
	}

	if _, err := c.Table("nope"); !errors.Is(err, ErrUnknownTable) {
		t.Fatal("expected ErrUnknownTable, got", err)
	}
}

func TestValidationRules(t *testing.T) {
	// examples table required
	c := &Config{Tables: []TableConfig{{Name: "a", File: "a.csv", TreatAs: TreatFacts}}}
	if err := c.Validate(); !errors.Is(err, ErrNoExamples) {
		t.Fatal("expected ErrNoExamples, got", err)
	}

	// facts or events table required
	c = &Config{Tables: []TableConfig{{Name: "a", File: "a.csv", TreatAs: TreatExamples}}}
	if err := c.Validate(); !errors.Is(err, ErrNoInputs) {
		t.Fatal("expected ErrNoInputs, got", err)
	}

	// unknown treatment rejected by struct validation
	c = &Config{Tables: []TableConfig{{Name: "a", File: "a.csv", TreatAs: "bogus"}}}
	if err := c.Validate(); err == nil {
		t.Fatal("bogus treatment accepted")
	}

	// unknown column type rejected
	if _, err := Parse([]byte(`
tables:
  - name: a
    file: a.csv
    columns: [{name: x, type: complex}]
    treat_as: facts
  - name: b
    file: b.csv
    treat_as: examples
`)); !errors.Is(err, record.ErrUnknownType) {
		t.Fatal("expected ErrUnknownType, got", err)
	}
}

func TestMissingAndPositiveFuncs(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	isMissing := c.MissingFunc()
	if !isMissing("") || !isMissing("NA") || isMissing("0") {
		t.Fatal("wrong missing predicate")
	}
	isPositive := c.PositiveFunc()
	if !isPositive("yes") || !isPositive(int64(1)) || isPositive("no") || isPositive(nil) {
		t.Fatal("wrong positive predicate")
	}

	// Default: boolean labels
	d := &Config{}
	if !d.PositiveFunc()(true) || d.PositiveFunc()("1") {
		t.Fatal("wrong default positive predicate")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	c2, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(c2.Tables) != len(c.Tables) {
		t.Fatal("table count changed across save/load")
	}
	for i := range c.Tables {
		if c2.Tables[i].Name != c.Tables[i].Name || c2.Tables[i].TreatAs != c.Tables[i].TreatAs {
			t.Fatalf("table %d changed across save/load", i)
		}
	}
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"demographics.csv": "patient_id,birth_year,gender\n1,1950,F\n2,1961,M\n",
		"diagnoses.csv":    "patient_id,dx_code,seen\n1,m1059,2014-07-09\n2,c402,2015-01-20\n",
		"examples.csv":     "patient_id,label\n1,1\n2,0\n",
		"notes.bin":        "\x00\x01\x02",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c, err := Detect(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Tables) != 3 {
		t.Fatal("wrong table count:", len(c.Tables))
	}
	byName := map[string]TableConfig{}
	for _, tc := range c.Tables {
		byName[tc.Name] = tc
	}
	if byName["demographics"].TreatAs != TreatFacts {
		t.Fatal("demographics:", byName["demographics"].TreatAs)
	}
	if byName["diagnoses"].TreatAs != TreatEvents {
		t.Fatal("diagnoses:", byName["diagnoses"].TreatAs)
	}
	if byName["examples"].TreatAs != TreatExamples {
		t.Fatal("examples:", byName["examples"].TreatAs)
	}
	if len(byName["diagnoses"].ID) != 1 || byName["diagnoses"].ID[0] != "patient_id" {
		t.Fatal("diagnoses id:", byName["diagnoses"].ID)
	}

	// A detected config validates once treatments are present
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestGuessIDColumn(t *testing.T) {
	mkHeader := func(names ...string) *record.Header {
		types := make([]record.Type, len(names))
		for i := range types {
			types[i] = record.TypeString
		}
		h, err := record.HeaderOf(names, types)
		if err != nil {
			t.Fatal(err)
		}
		return h
	}

	if col, found := guessIDColumn(mkHeader("seen", "patient_id", "dx_code")); !found || col != "patient_id" {
		t.Fatal("expected patient_id, got", col)
	}
	if col, found := guessIDColumn(mkHeader("seen", "id", "dx_code")); !found || col != "id" {
		t.Fatal("expected id, got", col)
	}
	// Words merely ending in "id" are not keys, fall back to the first column
	if col, found := guessIDColumn(mkHeader("acid", "valid", "dx_code")); !found || col != "acid" {
		t.Fatal("expected first-column fallback, got", col)
	}
}
