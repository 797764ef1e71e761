package features

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/danthegoodman1/recollect/config"
	"github.com/danthegoodman1/recollect/record"
)

// A categorical column with more distinct values than this is dropped
// from detection rather than exploding the matrix.
const maxCategoricalValues = 64

// Detect derives a feature set from the dataset's fact and event tables.
// streams maps table names to their loaded record streams. Fact tables
// yield one feature per non-key column (indicator features per distinct
// value for text columns); event tables yield one count feature per
// distinct value of each text column. Examples tables yield none.
func Detect(ctx context.Context, cfg *config.Config, streams map[string]record.Stream) (*Set, error) {
	var feats []Feature
	for i := range cfg.Tables {
		tc := &cfg.Tables[i]
		if tc.TreatAs == config.TreatExamples {
			continue
		}
		s, ok := streams[tc.Name]
		if !ok {
			return nil, fmt.Errorf("table %s: no stream", tc.Name)
		}
		tableFeats, err := detectTable(ctx, tc, s)
		if err != nil {
			return nil, err
		}
		feats = append(feats, tableFeats...)
	}
	return NewSet(feats...)
}

func detectTable(ctx context.Context, tc *config.TableConfig, s record.Stream) ([]Feature, error) {
	header := s.Header()
	if header == nil {
		return nil, fmt.Errorf("table %s: %w", tc.Name, record.ErrNoHeader)
	}

	keyCols := make(map[string]bool, len(tc.ID))
	for _, name := range tc.ID {
		keyCols[name] = true
	}

	// Text columns need a distinct-value pass
	var textCols []int
	for i := 0; i < header.Len(); i++ {
		if keyCols[header.NameAt(i)] {
			continue
		}
		if header.TypeAt(i) == record.TypeString {
			textCols = append(textCols, i)
		}
	}
	distinct, err := distinctValues(ctx, s, textCols)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tc.Name, err)
	}

	var feats []Feature
	for i := 0; i < header.Len(); i++ {
		name := header.NameAt(i)
		if keyCols[name] {
			continue
		}
		switch header.TypeAt(i) {
		case record.TypeInt, record.TypeFloat:
			if tc.TreatAs == config.TreatFacts {
				feats = append(feats, Feature{Table: tc.Name, Field: name, RV: Continuous})
			}
		case record.TypeBool:
			if tc.TreatAs == config.TreatFacts {
				feats = append(feats, Feature{Table: tc.Name, Field: name, RV: Binary})
			}
		case record.TypeString:
			values := distinct[i]
			if len(values) > maxCategoricalValues {
				logger.Warn().Str("table", tc.Name).Str("column", name).Int("distinct", len(values)).Msg("too many distinct values, dropping column from detection")
				continue
			}
			rv := Binary
			if tc.TreatAs == config.TreatEvents {
				rv = Count
			}
			for _, v := range values {
				feats = append(feats, Feature{Table: tc.Name, Field: name, Value: v, RV: rv})
			}
		default:
			// Temporal columns time events, they are not features
		}
	}
	return feats, nil
}

// distinctValues scans s once, collecting the sorted distinct non-null
// values of cols.
func distinctValues(ctx context.Context, s record.Stream, cols []int) (map[int][]string, error) {
	out := make(map[int][]string, len(cols))
	if len(cols) == 0 {
		return out, nil
	}
	sets := make(map[int]map[string]bool, len(cols))
	for _, col := range cols {
		sets[col] = make(map[string]bool)
	}

	it, err := s.Records()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, col := range cols {
			if col >= len(rec) || rec[col] == nil {
				continue
			}
			sets[col][fmt.Sprint(rec[col])] = true
		}
	}

	for col, set := range sets {
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Strings(values)
		out[col] = values
	}
	return out, nil
}
