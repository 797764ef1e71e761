package record

import (
	"fmt"
	"sort"
	"strings"
)

type (
	// Field is an immutable (name, type) pair. It is schema metadata only
	// and never holds values.
	Field struct {
		Name string
		Type Type
	}

	// Header is an ordered sequence of unique-named fields describing
	// the columns of a relation. It is immutable after construction.
	Header struct {
		fields []Field
		idxs   map[string]int
	}

	// Column references a header column by name or by 0-based index.
	// The zero Column refers to index 0, the conventional key column.
	Column struct {
		name    string
		index   int
		byName  bool
	}

	// Ordering is a column with a sort direction.
	Ordering struct {
		Column     Column
		Descending bool
	}
)

// Col references a column by name.
func Col(name string) Column {
	return Column{name: name, byName: true}
}

// ColAt references a column by 0-based index.
func ColAt(index int) Column {
	return Column{index: index}
}

func (c Column) String() string {
	if c.byName {
		return c.name
	}
	return fmt.Sprintf("#%d", c.index)
}

// Resolve maps this reference to a 0-based index in h.
func (c Column) Resolve(h *Header) (int, error) {
	if c.byName {
		return h.IndexOf(c.name)
	}
	if c.index < 0 || c.index >= h.Len() {
		return -1, fmt.Errorf("%w: index %d out of range [0,%d)", ErrFieldNotFound, c.index, h.Len())
	}
	return c.index, nil
}

func Asc(c Column) Ordering {
	return Ordering{Column: c}
}

func Desc(c Column) Ordering {
	return Ordering{Column: c, Descending: true}
}

// NewHeader builds a header from fields in the given order. At least one
// field is required and names must be unique.
func NewHeader(fields ...Field) (*Header, error) {
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	h := &Header{
		fields: make([]Field, 0, len(fields)),
		idxs:   make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if _, exists := h.idxs[f.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, f.Name)
		}
		h.idxs[f.Name] = len(h.fields)
		h.fields = append(h.fields, f)
	}
	return h, nil
}

// HeaderOf builds a header from parallel name and type slices.
func HeaderOf(names []string, types []Type) (*Header, error) {
	if len(names) != len(types) {
		return nil, fmt.Errorf("%d names but %d types", len(names), len(types))
	}
	fields := make([]Field, len(names))
	for i := range names {
		fields[i] = Field{Name: names[i], Type: types[i]}
	}
	return NewHeader(fields...)
}

// HeaderOfNames builds a header of untyped (TypeAny) columns.
func HeaderOfNames(names ...string) (*Header, error) {
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Type: TypeAny}
	}
	return NewHeader(fields...)
}

// HeaderFromMap builds a header from a name to type mapping. Go maps have
// no order, so fields are ordered by sorted name; use NewHeader or
// HeaderOf when column order matters.
func HeaderFromMap(types map[string]Type) (*Header, error) {
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Type: types[n]}
	}
	return NewHeader(fields...)
}

func (h *Header) Len() int {
	return len(h.fields)
}

// Fields returns a copy of the field sequence.
func (h *Header) Fields() []Field {
	fields := make([]Field, len(h.fields))
	copy(fields, h.fields)
	return fields
}

func (h *Header) Names() []string {
	names := make([]string, len(h.fields))
	for i, f := range h.fields {
		names[i] = f.Name
	}
	return names
}

func (h *Header) Types() []Type {
	types := make([]Type, len(h.fields))
	for i, f := range h.fields {
		types[i] = f.Type
	}
	return types
}

func (h *Header) FieldAt(index int) Field {
	return h.fields[index]
}

func (h *Header) NameAt(index int) string {
	return h.fields[index].Name
}

func (h *Header) TypeAt(index int) Type {
	return h.fields[index].Type
}

func (h *Header) Has(name string) bool {
	_, ok := h.idxs[name]
	return ok
}

func (h *Header) IndexOf(name string) (int, error) {
	idx, ok := h.idxs[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
	}
	return idx, nil
}

func (h *Header) FieldOf(name string) (Field, error) {
	idx, err := h.IndexOf(name)
	if err != nil {
		return Field{}, err
	}
	return h.fields[idx], nil
}

// Project returns a new header restricted to the given columns, in the
// given order. Columns may repeat or reorder but not introduce new names.
func (h *Header) Project(cols ...Column) (*Header, error) {
	if len(cols) == 0 {
		return nil, ErrNoFields
	}
	fields := make([]Field, len(cols))
	for i, col := range cols {
		idx, err := col.Resolve(h)
		if err != nil {
			return nil, err
		}
		fields[i] = h.fields[idx]
	}
	return NewHeader(fields...)
}

// Conforms reports whether rec has the header's arity and per-position
// value types. It is advisory: iteration never calls this.
func (h *Header) Conforms(rec Record) bool {
	if len(rec) != len(h.fields) {
		return false
	}
	for i, v := range rec {
		if !h.fields[i].Type.ValidValue(v) {
			return false
		}
	}
	return true
}

func (h *Header) Equal(o *Header) bool {
	if h == nil || o == nil {
		return h == o
	}
	if len(h.fields) != len(o.fields) {
		return false
	}
	for i := range h.fields {
		if h.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

func (h *Header) String() string {
	parts := make([]string, len(h.fields))
	for i, f := range h.fields {
		parts[i] = f.Name + " " + f.Type.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
