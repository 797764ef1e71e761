package record

import (
	"errors"
	"testing"
	"time"
)

func TestParseTypeAliases(t *testing.T) {
	cases := map[string]Type{
		"int":       TypeInt,
		"INTEGER":   TypeInt,
		"double":    TypeFloat,
		"real":      TypeFloat,
		"varchar":   TypeString,
		"timestamp": TypeDateTime,
		"auto":      TypeAny,
		" bool ":    TypeBool,
	}
	for name, want := range cases {
		got, err := ParseType(name)
		if err != nil {
			t.Fatal(name, err)
		}
		if got != want {
			t.Fatalf("%s: got %s, want %s", name, got, want)
		}
	}

	if _, err := ParseType("quaternion"); !errors.Is(err, ErrUnknownType) {
		t.Fatal("expected ErrUnknownType, got", err)
	}
}

func TestTypeParseValues(t *testing.T) {
	v, err := TypeInt.Parse("42")
	if err != nil || v != int64(42) {
		t.Fatal(v, err)
	}
	v, err = TypeFloat.Parse("0.5")
	if err != nil || v != 0.5 {
		t.Fatal(v, err)
	}
	v, err = TypeBool.Parse("True")
	if err != nil || v != true {
		t.Fatal(v, err)
	}
	v, err = TypeDate.Parse("2014-07-09")
	if err != nil {
		t.Fatal(err)
	}
	ts := v.(time.Time)
	if ts.Year() != 2014 || ts.Month() != time.July || ts.Day() != 9 {
		t.Fatal("wrong date:", ts)
	}
	if _, err := TypeInt.Parse("4.5"); err == nil {
		t.Fatal("expected error parsing float text as int")
	}
}

func TestParseAtom(t *testing.T) {
	if v := ParseAtom("12"); v != int64(12) {
		t.Fatal("want int64:", v)
	}
	if v := ParseAtom("1.5"); v != 1.5 {
		t.Fatal("want float64:", v)
	}
	if v := ParseAtom("false"); v != false {
		t.Fatal("want bool:", v)
	}
	if v := ParseAtom("m1059"); v != "m1059" {
		t.Fatal("want string:", v)
	}
}

func TestTypeFormatRoundTrip(t *testing.T) {
	v, err := TypeDateTime.Parse("2014-07-09T13:45:00")
	if err != nil {
		t.Fatal(err)
	}
	if got := TypeDateTime.Format(v); got != "2014-07-09T13:45:00" {
		t.Fatal("round trip mismatch:", got)
	}
	if got := TypeInt.Format(nil); got != "" {
		t.Fatal("nil should format empty, got", got)
	}
}

func TestCompareTotalOrder(t *testing.T) {
	if Compare(nil, int64(0)) >= 0 {
		t.Fatal("nil must sort before values")
	}
	if Compare(int64(2), 2.0) != 0 {
		t.Fatal("int and float with equal value must compare equal")
	}
	if Compare(int64(2), 2.5) >= 0 {
		t.Fatal("2 < 2.5 across numeric types")
	}
	if Compare("a", "b") >= 0 {
		t.Fatal("string order broken")
	}
	if Compare(false, true) >= 0 {
		t.Fatal("bool order broken")
	}
	a := time.Date(2014, 7, 9, 0, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)
	if Compare(a, b) >= 0 {
		t.Fatal("time order broken")
	}
	if Compare(nil, nil) != 0 {
		t.Fatal("nil must equal nil")
	}
}
