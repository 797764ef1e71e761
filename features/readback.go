package features

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/reader"
)

// ReadMatrix loads a parquet feature matrix written by
// ParquetMatrixWriter back into sparse vectors, e.g. to verify an
// upload or merge runs from earlier output.
func ReadMatrix(b []byte) ([]*Vector, error) {
	fr, err := buffer.NewBufferFile(b)
	if err != nil {
		return nil, fmt.Errorf("error in buffer.NewBufferFile: %w", err)
	}
	pr, err := reader.NewParquetReader(fr, nil, 4)
	if err != nil {
		return nil, fmt.Errorf("error in reader.NewParquetReader: %w", err)
	}
	defer pr.ReadStop()

	rows, err := pr.ReadByNumber(int(pr.GetNumRows()))
	if err != nil {
		return nil, fmt.Errorf("error in pr.ReadByNumber: %w", err)
	}

	vectors := make([]*Vector, 0, len(rows))
	for _, row := range rows {
		// row is a generated struct, walk its fields reflectively
		v := reflect.ValueOf(row)
		typeOf := v.Type()
		vec := &Vector{}
		for i := 0; i < v.NumField(); i++ {
			name := typeOf.Field(i).Name
			val := v.Field(i)
			// OPTIONAL columns come back as pointers
			if val.Kind() == reflect.Ptr {
				if val.IsNil() {
					continue
				}
				val = val.Elem()
			}
			switch {
			case name == "Key":
				vec.Key = val.String()
			case name == "Label":
				vec.Label = val.Float()
			case strings.HasPrefix(name, "F"):
				idx, err := strconv.Atoi(name[1:])
				if err != nil {
					return nil, fmt.Errorf("unexpected matrix column %s", name)
				}
				vec.Entries = append(vec.Entries, Entry{Index: idx, Value: val.Float()})
			default:
				return nil, fmt.Errorf("unexpected matrix column %s", name)
			}
		}
		sort.Slice(vec.Entries, func(i, j int) bool {
			return vec.Entries[i].Index < vec.Entries[j].Index
		})
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
