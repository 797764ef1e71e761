package record

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type (
	// Type is the semantic type tag of a column. Values are represented
	// with a single canonical Go type per tag: bool, int64, float64,
	// string, and time.Time for the temporal tags. TypeAny accepts any
	// value and parses text to the most specific atom it can.
	Type uint8
)

const (
	TypeAny Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeDate
	TypeTime
	TypeDateTime
)

const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04:05"
	DateTimeLayout = "2006-01-02T15:04:05"
)

var typeNames = map[Type]string{
	TypeAny:      "any",
	TypeBool:     "bool",
	TypeInt:      "int",
	TypeFloat:    "float",
	TypeString:   "str",
	TypeDate:     "date",
	TypeTime:     "time",
	TypeDateTime: "datetime",
}

// Lowercase names and aliases recognized by ParseType.
var names2Types = map[string]Type{
	"any":       TypeAny,
	"atom":      TypeAny,
	"auto":      TypeAny,
	"object":    TypeAny,
	"bool":      TypeBool,
	"boolean":   TypeBool,
	"int":       TypeInt,
	"integer":   TypeInt,
	"float":     TypeFloat,
	"double":    TypeFloat,
	"real":      TypeFloat,
	"str":       TypeString,
	"string":    TypeString,
	"char":      TypeString,
	"varchar":   TypeString,
	"date":      TypeDate,
	"time":      TypeTime,
	"datetime":  TypeDateTime,
	"timestamp": TypeDateTime,
}

func (t Type) String() string {
	s, ok := typeNames[t]
	if !ok {
		return fmt.Sprintf("type(%d)", uint8(t))
	}
	return s
}

// ParseType interprets a type name (e.g. from a config file).
func ParseType(name string) (Type, error) {
	t, ok := names2Types[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return TypeAny, fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// Parse converts field text to this type's canonical value.
func (t Type) Parse(text string) (any, error) {
	switch t {
	case TypeAny:
		return ParseAtom(text), nil
	case TypeBool:
		switch strings.ToLower(text) {
		case "true", "t", "yes", "1":
			return true, nil
		case "false", "f", "no", "0":
			return false, nil
		}
		return nil, fmt.Errorf("not a bool: %q", text)
	case TypeInt:
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an int: %q", text)
		}
		return i, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %q", text)
		}
		return f, nil
	case TypeString:
		return text, nil
	case TypeDate:
		return parseTemporal(text, DateLayout)
	case TypeTime:
		return parseTemporal(text, TimeLayout)
	case TypeDateTime:
		return parseTemporal(text, DateTimeLayout)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(t))
}

func parseTemporal(text, layout string) (any, error) {
	ts, err := time.Parse(layout, text)
	if err != nil {
		return nil, fmt.Errorf("not a %q timestamp: %q", layout, text)
	}
	return ts, nil
}

// Format renders a canonical value back to field text. The zero text of a
// nil value is the empty string.
func (t Type) Format(v any) string {
	if v == nil {
		return ""
	}
	if ts, ok := v.(time.Time); ok {
		switch t {
		case TypeDate:
			return ts.Format(DateLayout)
		case TypeTime:
			return ts.Format(TimeLayout)
		default:
			return ts.Format(DateTimeLayout)
		}
	}
	return fmt.Sprint(v)
}

// ValidValue reports whether v is an acceptable value for this type. A nil
// value (missing) is acceptable for every type.
func (t Type) ValidValue(v any) bool {
	if v == nil || t == TypeAny {
		return true
	}
	switch t {
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeInt:
		_, ok := v.(int64)
		return ok
	case TypeFloat:
		_, ok := v.(float64)
		return ok
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeDate, TypeTime, TypeDateTime:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// ParseAtom parses text as the most specific atom: int, then float, then
// bool, falling back to the text itself. Surrounding whitespace is not
// trimmed, matching field text as delivered by the reader.
func ParseAtom(text string) any {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f
	}
	switch strings.ToLower(text) {
	case "true":
		return true
	case "false":
		return false
	}
	return text
}
