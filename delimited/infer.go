package delimited

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danthegoodman1/recollect/record"
)

// How many sample rows vote on each column's type.
const inferSampleRows = 100

// InferHeader derives column names and types from sample text. Names come
// from the header row when the format declares one, otherwise columns are
// named x1..xN. Each column's type is the one most of the sampled rows
// parse as, falling back to TypeAny.
func InferHeader(f Format, sample string) (*record.Header, error) {
	rows, err := readSampleRows(f, sample, inferSampleRows+1)
	if err != nil {
		return nil, err
	}

	var names []string
	data := rows
	if f.HasHeaderRow() {
		names = rows[0]
		data = rows[1:]
	}
	if len(data) == 0 && len(names) == 0 {
		return nil, ErrNoSample
	}

	width := len(names)
	for _, row := range data {
		if len(row) > width {
			width = len(row)
		}
	}
	if len(names) == 0 {
		names = make([]string, width)
		for i := range names {
			names[i] = "x" + strconv.Itoa(i+1)
		}
	} else if len(names) < width {
		for i := len(names); i < width; i++ {
			names = append(names, "x"+strconv.Itoa(i+1))
		}
	}

	types := make([]record.Type, width)
	for col := 0; col < width; col++ {
		counts := make(map[record.Type]int)
		for _, row := range data {
			if col >= len(row) {
				continue
			}
			cell := strings.TrimSpace(row[col])
			if cell == "" {
				continue
			}
			t, ok := parseTyped(cell)
			if !ok {
				t = record.TypeString
			}
			counts[t]++
		}
		types[col] = majorityType(counts)
	}

	header, err := record.HeaderOf(names, types)
	if err != nil {
		return nil, fmt.Errorf("error in record.HeaderOf: %w", err)
	}
	return header, nil
}

// parseTyped reports the most specific non-string type cell parses as.
func parseTyped(cell string) (record.Type, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return record.TypeAny, false
	}
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return record.TypeInt, true
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return record.TypeFloat, true
	}
	switch strings.ToLower(cell) {
	case "true", "false":
		return record.TypeBool, true
	}
	if _, err := record.TypeDate.Parse(cell); err == nil {
		return record.TypeDate, true
	}
	if _, err := record.TypeDateTime.Parse(cell); err == nil {
		return record.TypeDateTime, true
	}
	if _, err := record.TypeTime.Parse(cell); err == nil {
		return record.TypeTime, true
	}
	return record.TypeAny, false
}

func majorityType(counts map[record.Type]int) record.Type {
	best := record.TypeAny
	bestCount := 0
	for t, n := range counts {
		// Stable preference on ties: more specific type wins
		if n > bestCount || (n == bestCount && t != record.TypeString && best == record.TypeString) {
			best = t
			bestCount = n
		}
	}
	return best
}
