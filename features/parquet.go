package features

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/xitongsys/parquet-go/writer"
)

type (
	// ParquetMatrixWriter emits vectors as rows of a parquet file: a
	// Key string column, a required Label double, and one optional
	// double column per feature (F1..Fn, numbered like the set).
	// Absent entries become nulls, preserving sparsity.
	ParquetMatrixWriter struct {
		pw *writer.JSONWriter
	}

	parquetJSONSchema struct {
		Tag    string               `json:",omitempty"`
		Fields []*parquetJSONSchema `json:",omitempty"`
	}
)

var _ VectorWriter = (*ParquetMatrixWriter)(nil)

func NewParquetMatrixWriter(w io.Writer, set *Set) (*ParquetMatrixWriter, error) {
	schema, err := matrixSchema(set)
	if err != nil {
		return nil, err
	}
	pw, err := writer.NewJSONWriterFromWriter(schema, w, 4)
	if err != nil {
		return nil, fmt.Errorf("error in writer.NewJSONWriterFromWriter: %w", err)
	}
	return &ParquetMatrixWriter{pw: pw}, nil
}

func matrixSchema(set *Set) (string, error) {
	fields := []*parquetJSONSchema{
		{Tag: "name=Key, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN, repetitiontype=REQUIRED"},
		{Tag: "name=Label, type=DOUBLE, repetitiontype=REQUIRED"},
	}
	for _, f := range set.Features() {
		fields = append(fields, &parquetJSONSchema{
			Tag: fmt.Sprintf("name=F%d, type=DOUBLE, repetitiontype=OPTIONAL", f.Number),
		})
	}
	root := parquetJSONSchema{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}
	b, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal: %w", err)
	}
	return string(b), nil
}

func (mw *ParquetMatrixWriter) WriteVector(v *Vector) error {
	row := map[string]any{
		"key":   fmt.Sprint(v.Key),
		"label": v.Label,
	}
	for _, e := range v.Entries {
		row[fmt.Sprintf("f%d", e.Index)] = e.Value
	}
	rowBytes, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("error in json.Marshal of row: %w", err)
	}
	if err := mw.pw.Write(rowBytes); err != nil {
		return fmt.Errorf("error in pw.Write: %w", err)
	}
	return nil
}

func (mw *ParquetMatrixWriter) Close() error {
	if err := mw.pw.WriteStop(); err != nil {
		return fmt.Errorf("error in pw.WriteStop: %w", err)
	}
	return nil
}
