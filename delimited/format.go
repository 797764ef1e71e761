package delimited

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidFormat  = errors.New("invalid delimited format")
	ErrDetectFailed   = errors.New("could not detect delimiter")
	ErrNoSample       = errors.New("empty sample")
)

type (
	// Format describes the shape of a delimited text file. Quoting
	// follows RFC 4180 (double quotes, doubled to escape), which is what
	// encoding/csv implements.
	Format struct {
		// Delimiter separates fields in a record. Required.
		Delimiter rune
		// Comment marks a line as a comment when it is the first rune.
		// Zero means no comment lines.
		Comment rune
		// SkipBlankLines drops lines with no content instead of
		// treating them as records.
		SkipBlankLines bool
		// DataStartLine is the 1-based non-comment line where data
		// starts. 2 means the file has a header row. Zero defaults
		// to 1.
		DataStartLine int
	}
)

// Common formats.
var (
	ExcelCSV = Format{Delimiter: ',', SkipBlankLines: true}
	ExcelTab = Format{Delimiter: '\t', SkipBlankLines: true}
	// Programming-style CSV: octothorpe comments, whitespace tolerant.
	ProgrammingCSV = Format{Delimiter: ',', Comment: '#', SkipBlankLines: true}
)

func (f Format) Validate() error {
	if f.Delimiter == 0 {
		return fmt.Errorf("%w: no delimiter", ErrInvalidFormat)
	}
	if f.DataStartLine < 0 {
		return fmt.Errorf("%w: data start line %d", ErrInvalidFormat, f.DataStartLine)
	}
	return nil
}

func (f Format) dataStart() int {
	if f.DataStartLine < 1 {
		return 1
	}
	return f.DataStartLine
}

// HasHeaderRow reports whether the first non-comment line carries column
// names instead of data.
func (f Format) HasHeaderRow() bool {
	return f.dataStart() > 1
}

// NewReader configures an encoding/csv reader for this format.
func (f Format) NewReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = f.Delimiter
	cr.Comment = f.Comment
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

var candidateDelimiters = []rune{',', '\t', ';', '|', ':'}

// Detect guesses the format of sample text: the delimiter is the candidate
// appearing a consistent nonzero number of times per line, and a header
// row is assumed when the first line parses as all-text while later lines
// carry typed columns.
func Detect(sample string) (Format, error) {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return Format{}, ErrNoSample
	}

	delimiter, ok := guessDelimiter(lines)
	if !ok {
		return Format{}, ErrDetectFailed
	}

	f := Format{
		Delimiter:      delimiter,
		SkipBlankLines: true,
		DataStartLine:  1,
	}
	if guessHasHeader(f, sample) {
		f.DataStartLine = 2
	}
	return f, nil
}

func sampleLines(sample string) []string {
	var lines []string
	for _, line := range strings.Split(sample, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	// The final line of a truncated sample is likely cut mid-record
	if len(lines) > 1 && !strings.HasSuffix(sample, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// guessDelimiter scores candidates by how consistently they split every
// line into the same number of fields, preferring wider rows on ties.
func guessDelimiter(lines []string) (rune, bool) {
	bestScore := 0
	var best rune
	for _, cand := range candidateDelimiters {
		counts := make(map[int]int)
		for _, line := range lines {
			counts[strings.Count(line, string(cand))]++
		}
		// Most common per-line count for this candidate
		mode, modeLines := 0, 0
		for count, n := range counts {
			if n > modeLines || (n == modeLines && count > mode) {
				mode, modeLines = count, n
			}
		}
		if mode == 0 {
			continue
		}
		score := modeLines*1000 + mode
		if score > bestScore {
			bestScore = score
			best = cand
		}
	}
	return best, bestScore > 0
}

func guessHasHeader(f Format, sample string) bool {
	rows, err := readSampleRows(f, sample, 25)
	if err != nil || len(rows) < 2 {
		return false
	}
	first, rest := rows[0], rows[1:]
	// A header row is all unparseable-as-typed text
	for _, cell := range first {
		if _, ok := parseTyped(cell); ok {
			return false
		}
	}
	// and at least one data column is typed
	for _, row := range rest {
		for _, cell := range row {
			if _, ok := parseTyped(cell); ok {
				return true
			}
		}
	}
	return false
}

func readSampleRows(f Format, sample string, limit int) ([][]string, error) {
	cr := f.NewReader(strings.NewReader(sample))
	var rows [][]string
	for len(rows) < limit {
		row, err := cr.Read()
		if err != nil {
			break
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrNoSample
	}
	return rows, nil
}
