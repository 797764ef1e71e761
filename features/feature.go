package features

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/danthegoodman1/recollect/gologger"
)

var (
	logger = gologger.NewLogger()

	ErrDuplicateFeature = errors.New("duplicate feature")
	ErrFeatureNotFound  = errors.New("feature not found")
	ErrBadFeatureLine   = errors.New("malformed feature line")
)

type (
	// RandomVariable is how a feature's value is read off a group.
	RandomVariable uint8

	// Feature is one column of the output matrix: a field of a fact
	// table (optionally matched against one value), or an event type
	// whose occurrences are counted.
	Feature struct {
		// Number is the 1-based position in the output vector,
		// assigned by the set.
		Number int
		Table  string
		Field  string
		// Value is the matched value for indicator and count
		// features, empty for plain numeric features.
		Value string
		RV    RandomVariable
	}

	// Set is an ordered, name-unique collection of features. Feature
	// numbers are stable across save and load, which is what makes
	// models trained on the output reusable.
	Set struct {
		feats []Feature
		idxs  map[string]int
	}
)

const (
	// Continuous carries the field's numeric value.
	Continuous RandomVariable = iota
	// Binary is 1 when the field matches Value (or is true).
	Binary
	// Count is the number of event records matching Value.
	Count
)

var rvNames = map[RandomVariable]string{
	Continuous: "continuous",
	Binary:     "binary",
	Count:      "count",
}

func (rv RandomVariable) String() string {
	if s, ok := rvNames[rv]; ok {
		return s
	}
	return fmt.Sprintf("rv(%d)", rv)
}

func ParseRandomVariable(s string) (RandomVariable, error) {
	for rv, name := range rvNames {
		if name == s {
			return rv, nil
		}
	}
	return Continuous, fmt.Errorf("unknown random variable kind %q", s)
}

// Name identifies a feature: table.field, or table.field=value for
// indicator and count features.
func (f Feature) Name() string {
	if f.Value == "" {
		return f.Table + "." + f.Field
	}
	return f.Table + "." + f.Field + "=" + f.Value
}

// NewSet numbers feats 1..n in order and indexes them by name.
func NewSet(feats ...Feature) (*Set, error) {
	s := &Set{idxs: make(map[string]int, len(feats))}
	for _, f := range feats {
		f.Number = len(s.feats) + 1
		name := f.Name()
		if _, ok := s.idxs[name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFeature, name)
		}
		s.idxs[name] = len(s.feats)
		s.feats = append(s.feats, f)
	}
	return s, nil
}

func (s *Set) Len() int {
	return len(s.feats)
}

func (s *Set) At(i int) Feature {
	return s.feats[i]
}

func (s *Set) Features() []Feature {
	out := make([]Feature, len(s.feats))
	copy(out, s.feats)
	return out
}

func (s *Set) ByName(name string) (Feature, error) {
	i, ok := s.idxs[name]
	if !ok {
		return Feature{}, fmt.Errorf("%w: %s", ErrFeatureNotFound, name)
	}
	return s.feats[i], nil
}

// Save writes the set as pipe-delimited text, one feature per line:
// number|table|field|value|rv.
func (s *Set) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, f := range s.feats {
		_, err := fmt.Fprintf(bw, "%d|%s|%s|%s|%s\n", f.Number, f.Table, f.Field, f.Value, f.RV)
		if err != nil {
			return fmt.Errorf("error writing feature %s: %w", f.Name(), err)
		}
	}
	return bw.Flush()
}

func (s *Set) SaveFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error in os.Create: %w", err)
	}
	defer file.Close()
	if err := s.Save(file); err != nil {
		return err
	}
	return file.Close()
}

// Load reads a set saved by Save. Numbers in the file must be the
// contiguous sequence 1..n.
func Load(r io.Reader) (*Set, error) {
	var feats []Feature
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) != 5 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrBadFeatureLine, lineNo, line)
		}
		num, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q", ErrBadFeatureLine, lineNo, line)
		}
		rv, err := ParseRandomVariable(parts[4])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if num != len(feats)+1 {
			return nil, fmt.Errorf("%w: line %d: number %d out of sequence", ErrBadFeatureLine, lineNo, num)
		}
		feats = append(feats, Feature{
			Table: parts[1],
			Field: parts[2],
			Value: parts[3],
			RV:    rv,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error in sc.Err: %w", err)
	}
	return NewSet(feats...)
}

func LoadFile(path string) (*Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error in os.Open: %w", err)
	}
	defer file.Close()
	return Load(file)
}
