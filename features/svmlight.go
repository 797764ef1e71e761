package features

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

type (
	// VectorWriter sinks generated vectors into some output format.
	VectorWriter interface {
		WriteVector(v *Vector) error
		// Close flushes buffered output. It does not close the
		// underlying writer.
		Close() error
	}

	// SVMLightWriter emits vectors as SVMlight sparse lines:
	// "<label> <index>:<value> ... # <key>".
	SVMLightWriter struct {
		bw *bufio.Writer
	}
)

var _ VectorWriter = (*SVMLightWriter)(nil)

func NewSVMLightWriter(w io.Writer) *SVMLightWriter {
	return &SVMLightWriter{bw: bufio.NewWriter(w)}
}

func (sw *SVMLightWriter) WriteVector(v *Vector) error {
	if _, err := sw.bw.WriteString(formatLabel(v.Label)); err != nil {
		return fmt.Errorf("error writing label: %w", err)
	}
	for _, e := range v.Entries {
		if _, err := fmt.Fprintf(sw.bw, " %d:%s", e.Index, formatValue(e.Value)); err != nil {
			return fmt.Errorf("error writing entry %d: %w", e.Index, err)
		}
	}
	if _, err := fmt.Fprintf(sw.bw, " # %v\n", v.Key); err != nil {
		return fmt.Errorf("error writing key comment: %w", err)
	}
	return nil
}

func (sw *SVMLightWriter) Close() error {
	return sw.bw.Flush()
}

func formatLabel(label float64) string {
	if label > 0 {
		return "+1"
	}
	return "-1"
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
