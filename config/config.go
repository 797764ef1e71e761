package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/danthegoodman1/recollect/delimited"
	"github.com/danthegoodman1/recollect/record"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

var (
	ErrNoExamples   = errors.New("no examples table configured")
	ErrNoInputs     = errors.New("no facts or events table configured")
	ErrUnknownTable = errors.New("unknown table")

	validate = validator.New()
)

// Table treatments: how a table's records contribute to feature vectors.
const (
	TreatFacts    = "facts"
	TreatEvents   = "events"
	TreatExamples = "examples"
)

type (
	// Config declares one dataset: which delimited files to load, their
	// shapes, and how each table is treated during collection.
	Config struct {
		// Field text parsed as a missing value, dataset-wide.
		IsMissing []string `yaml:"is_missing,omitempty"`
		// Label values of positive examples.
		IsPositive []string `yaml:"is_positive,omitempty"`

		Tables []TableConfig `yaml:"tables" validate:"required,min=1,dive"`
	}

	TableConfig struct {
		Name   string        `yaml:"name" validate:"required"`
		File   string        `yaml:"file" validate:"required"`
		Format *FormatConfig `yaml:"format,omitempty"`

		Columns []ColumnConfig `yaml:"columns,omitempty" validate:"dive"`

		// ID names the entity key column(s). The first one is the
		// collection key.
		ID []string `yaml:"id,omitempty"`
		// Use restricts loading to these columns. Empty means all.
		Use []string `yaml:"use,omitempty"`

		TreatAs string `yaml:"treat_as" validate:"required,oneof=facts events examples"`
	}

	FormatConfig struct {
		Delimiter      string `yaml:"delimiter" validate:"required,len=1"`
		Comment        string `yaml:"comment,omitempty" validate:"omitempty,len=1"`
		SkipBlankLines bool   `yaml:"skip_blank_lines,omitempty"`
		DataStartLine  int    `yaml:"data_start_line,omitempty" validate:"gte=0"`
	}

	ColumnConfig struct {
		Name string `yaml:"name" validate:"required"`
		Type string `yaml:"type" validate:"required"`
	}
)

// Load reads and validates a dataset config.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates config YAML.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(b, &c); err != nil {
		return nil, fmt.Errorf("error in yaml.UnmarshalStrict: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error in yaml.Marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("error in os.WriteFile: %w", err)
	}
	return nil
}

// Validate checks struct shape plus dataset-level rules: every column
// type must parse, and collection needs at least one facts or events
// table and at least one examples table.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	var inputs, examples int
	for i := range c.Tables {
		tc := &c.Tables[i]
		switch tc.TreatAs {
		case TreatExamples:
			examples++
		default:
			inputs++
		}
		if _, err := tc.Header(); err != nil {
			return fmt.Errorf("table %s: %w", tc.Name, err)
		}
	}
	if examples == 0 {
		return ErrNoExamples
	}
	if inputs == 0 {
		return ErrNoInputs
	}
	return nil
}

// Table finds a table config by name.
func (c *Config) Table(name string) (*TableConfig, error) {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
}

// MissingFunc builds the missing-value predicate readers use.
func (c *Config) MissingFunc() func(string) bool {
	if len(c.IsMissing) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(c.IsMissing))
	for _, tok := range c.IsMissing {
		set[tok] = struct{}{}
	}
	return func(s string) bool {
		_, ok := set[s]
		return ok
	}
}

// PositiveFunc reports whether a label value marks a positive example.
// Without configured labels, only boolean true is positive.
func (c *Config) PositiveFunc() func(any) bool {
	if len(c.IsPositive) == 0 {
		return func(v any) bool {
			b, ok := v.(bool)
			return ok && b
		}
	}
	set := make(map[string]struct{}, len(c.IsPositive))
	for _, tok := range c.IsPositive {
		set[tok] = struct{}{}
	}
	return func(v any) bool {
		if v == nil {
			return false
		}
		_, ok := set[fmt.Sprint(v)]
		return ok
	}
}

// Header builds the declared header, or nil when columns are omitted
// (meaning: infer from the file).
func (tc *TableConfig) Header() (*record.Header, error) {
	if len(tc.Columns) == 0 {
		return nil, nil
	}
	fields := make([]record.Field, len(tc.Columns))
	for i, col := range tc.Columns {
		t, err := record.ParseType(col.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = record.Field{Name: col.Name, Type: t}
	}
	return record.NewHeader(fields...)
}

// Key returns the collection key column, defaulting to the first column.
func (tc *TableConfig) Key() record.Column {
	if len(tc.ID) > 0 {
		return record.Col(tc.ID[0])
	}
	return record.ColAt(0)
}

// DelimitedFile builds the file descriptor for this table, with declared
// format and header filled in where present.
func (tc *TableConfig) DelimitedFile() (*delimited.File, error) {
	f := delimited.NewFile(tc.File)
	f.Name = tc.Name
	if tc.Format != nil {
		format, err := tc.Format.Format()
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", tc.Name, err)
		}
		f.Format = &format
	}
	header, err := tc.Header()
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tc.Name, err)
	}
	f.Header = header
	return f, nil
}

func (fc *FormatConfig) Format() (delimited.Format, error) {
	f := delimited.Format{
		SkipBlankLines: fc.SkipBlankLines,
		DataStartLine:  fc.DataStartLine,
	}
	for _, r := range fc.Delimiter {
		f.Delimiter = r
	}
	for _, r := range fc.Comment {
		f.Comment = r
	}
	if err := f.Validate(); err != nil {
		return delimited.Format{}, err
	}
	return f, nil
}

// FormatConfigOf converts a detected format back to its YAML form.
func FormatConfigOf(f delimited.Format) *FormatConfig {
	fc := &FormatConfig{
		Delimiter:      string(f.Delimiter),
		SkipBlankLines: f.SkipBlankLines,
		DataStartLine:  f.DataStartLine,
	}
	if f.Comment != 0 {
		fc.Comment = string(f.Comment)
	}
	return fc
}
