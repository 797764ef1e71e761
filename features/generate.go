package features

import (
	"fmt"

	"github.com/danthegoodman1/recollect/record"
	"github.com/danthegoodman1/recollect/relational"
)

type (
	// ExampleSource names the table and label column that decide each
	// entity's outcome.
	ExampleSource struct {
		Table string
		Label record.Column
	}

	// Entry is one nonzero vector component.
	Entry struct {
		Index int
		Value float64
	}

	// Vector is the sparse feature vector of one entity. Label is +1
	// for positive examples and -1 otherwise.
	Vector struct {
		Key     any
		Label   float64
		Entries []Entry
	}

	// Generator turns collected record groups into vectors. Column
	// positions are resolved against the relation headers once, at
	// construction.
	Generator struct {
		set        *Set
		plans      []featurePlan
		exTable    string
		labelIdx   int
		isPositive func(any) bool
	}

	featurePlan struct {
		table string
		col   int
		value string
		rv    RandomVariable
	}
)

// NewGenerator binds set to the relation headers it will read groups
// from. headers maps table names to their headers; ex locates the label.
func NewGenerator(set *Set, headers map[string]*record.Header, ex ExampleSource, isPositive func(any) bool) (*Generator, error) {
	exHeader, ok := headers[ex.Table]
	if !ok || exHeader == nil {
		return nil, fmt.Errorf("examples table %s: %w", ex.Table, record.ErrNoHeader)
	}
	labelIdx, err := ex.Label.Resolve(exHeader)
	if err != nil {
		return nil, fmt.Errorf("examples table %s: %w", ex.Table, err)
	}

	g := &Generator{
		set:        set,
		plans:      make([]featurePlan, set.Len()),
		exTable:    ex.Table,
		labelIdx:   labelIdx,
		isPositive: isPositive,
	}
	if g.isPositive == nil {
		g.isPositive = func(v any) bool {
			b, ok := v.(bool)
			return ok && b
		}
	}
	for i, f := range set.Features() {
		header, ok := headers[f.Table]
		if !ok || header == nil {
			return nil, fmt.Errorf("feature %s: table %s: %w", f.Name(), f.Table, record.ErrNoHeader)
		}
		col, err := header.IndexOf(f.Field)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.Name(), err)
		}
		g.plans[i] = featurePlan{table: f.Table, col: col, value: f.Value, rv: f.RV}
	}
	return g, nil
}

// Vector builds the sparse vector for one collected group. Groups whose
// entity has no example record produce no vector (ok == false): there is
// nothing to label.
func (g *Generator) Vector(group *relational.CollectedRecords) (*Vector, bool, error) {
	examples := group.Records(g.exTable)
	if len(examples) == 0 {
		return nil, false, nil
	}
	label := -1.0
	if g.labelIdx < len(examples[0]) && g.isPositive(examples[0][g.labelIdx]) {
		label = 1.0
	}

	v := &Vector{Key: group.GroupKey(), Label: label}
	for i, p := range g.plans {
		val, present, err := g.eval(p, group.Records(p.table))
		if err != nil {
			return nil, false, fmt.Errorf("feature %s: %w", g.set.At(i).Name(), err)
		}
		if present {
			v.Entries = append(v.Entries, Entry{Index: i + 1, Value: val})
		}
	}
	return v, true, nil
}

func (g *Generator) eval(p featurePlan, recs []record.Record) (float64, bool, error) {
	switch p.rv {
	case Continuous:
		// Latest record wins when facts repeat
		for i := len(recs) - 1; i >= 0; i-- {
			if p.col >= len(recs[i]) || recs[i][p.col] == nil {
				continue
			}
			return numericValue(recs[i][p.col])
		}
		return 0, false, nil
	case Binary:
		if p.value == "" {
			for i := len(recs) - 1; i >= 0; i-- {
				if p.col >= len(recs[i]) || recs[i][p.col] == nil {
					continue
				}
				b, ok := recs[i][p.col].(bool)
				if !ok {
					return 0, false, fmt.Errorf("not a bool: %v", recs[i][p.col])
				}
				if b {
					return 1, true, nil
				}
				return 0, false, nil
			}
			return 0, false, nil
		}
		for _, rec := range recs {
			if p.col < len(rec) && rec[p.col] != nil && fmt.Sprint(rec[p.col]) == p.value {
				return 1, true, nil
			}
		}
		return 0, false, nil
	case Count:
		n := 0
		for _, rec := range recs {
			if p.col < len(rec) && rec[p.col] != nil && fmt.Sprint(rec[p.col]) == p.value {
				n++
			}
		}
		if n == 0 {
			return 0, false, nil
		}
		return float64(n), true, nil
	default:
		return 0, false, fmt.Errorf("unknown random variable kind %d", p.rv)
	}
}

func numericValue(v any) (float64, bool, error) {
	switch v := v.(type) {
	case int64:
		return float64(v), true, nil
	case float64:
		return v, true, nil
	default:
		return 0, false, fmt.Errorf("not numeric: %v (%T)", v, v)
	}
}
