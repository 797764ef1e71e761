package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danthegoodman1/recollect/delimited"
	"github.com/danthegoodman1/recollect/gologger"
	"github.com/danthegoodman1/recollect/record"
)

var logger = gologger.NewLogger()

// Extensions scanned by Detect.
var delimitedExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".tab": true,
	".txt": true,
}

// Detect scans dir for delimited files and generates a starting config:
// formats and headers are sniffed from the files, treatments are guessed
// from names and shapes. The result is meant to be reviewed and edited,
// then fed back in.
func Detect(ctx context.Context, dir string) (*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadDir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if delimitedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no delimited files in %s", dir)
	}

	c := &Config{}
	for _, name := range names {
		f := delimited.NewFile(filepath.Join(dir, name))
		if err := f.InitFromFile(ctx); err != nil {
			logger.Warn().Err(err).Str("file", name).Msg("skipping undetectable file")
			continue
		}
		tc := TableConfig{
			Name:    f.Name,
			File:    f.Path,
			Format:  FormatConfigOf(*f.Format),
			TreatAs: guessTreatment(f),
		}
		for _, field := range f.Header.Fields() {
			tc.Columns = append(tc.Columns, ColumnConfig{Name: field.Name, Type: field.Type.String()})
		}
		if id, ok := guessIDColumn(f.Header); ok {
			tc.ID = []string{id}
		}
		c.Tables = append(c.Tables, tc)
	}
	if len(c.Tables) == 0 {
		return nil, fmt.Errorf("no readable delimited files in %s", dir)
	}
	return c, nil
}

// guessTreatment picks a starting treatment: "example" in the table name
// wins, temporal columns suggest events, fixed attributes suggest facts.
func guessTreatment(f *delimited.File) string {
	if strings.Contains(strings.ToLower(f.Name), "example") || strings.Contains(strings.ToLower(f.Name), "label") {
		return TreatExamples
	}
	for _, t := range f.Header.Types() {
		switch t {
		case record.TypeDate, record.TypeDateTime:
			return TreatEvents
		}
	}
	return TreatFacts
}

func guessIDColumn(h *record.Header) (string, bool) {
	for _, name := range h.Names() {
		lower := strings.ToLower(name)
		if lower == "id" || strings.HasSuffix(lower, "_id") {
			return name, true
		}
	}
	if h.Len() > 0 {
		return h.NameAt(0), true
	}
	return "", false
}
