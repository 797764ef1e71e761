package delimited

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/danthegoodman1/recollect/gologger"
	"github.com/danthegoodman1/recollect/record"
	"github.com/danthegoodman1/recollect/s3_helper"
)

var logger = gologger.NewLogger()

// S3 key prefix recognized in file paths. The bucket comes from the
// environment (utils.S3_BUCKET_NAME).
const s3Prefix = "s3://"

// Sample size for format detection and header inference.
const sampleSize = 1 << 20

type (
	// File describes one delimited text file: its path (local, or
	// s3://key in the configured bucket), the table name it represents,
	// and its format and header once known or detected.
	File struct {
		Path   string
		Name   string
		Format *Format
		Header *record.Header
	}
)

// NewFile builds a descriptor with the table name defaulted to the file
// stem.
func NewFile(path string) *File {
	return &File{Path: path, Name: stem(path)}
}

func stem(path string) string {
	base := filepath.Base(strings.TrimPrefix(path, s3Prefix))
	for {
		ext := filepath.Ext(base)
		if ext == "" {
			return base
		}
		base = strings.TrimSuffix(base, ext)
	}
}

// InitFromFile fills in any missing format and header by reading the
// start of the file and detecting them.
func (f *File) InitFromFile(ctx context.Context) error {
	sample, err := f.readSample(ctx)
	if err != nil {
		return fmt.Errorf("error reading sample from %s: %w", f.Path, err)
	}
	if f.Format == nil {
		logger.Info().Str("path", f.Path).Msg("detecting format")
		format, err := Detect(sample)
		if err != nil {
			return fmt.Errorf("error detecting format of %s: %w", f.Path, err)
		}
		f.Format = &format
	}
	if f.Header == nil {
		logger.Info().Str("path", f.Path).Msg("inferring header")
		header, err := InferHeader(*f.Format, sample)
		if err != nil {
			return fmt.Errorf("error inferring header of %s: %w", f.Path, err)
		}
		f.Header = header
	}
	return nil
}

func (f *File) readSample(ctx context.Context) (string, error) {
	r, closer, err := openContent(ctx, f.Path)
	if err != nil {
		return "", err
	}
	defer closer()
	buf := make([]byte, sampleSize)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return string(buf[:n]), nil
}

// Reader builds a record stream over this file. isMissing marks field text
// parsed as a missing value (nil); eh receives per-record failures.
// Format and header must be known (call InitFromFile first if not).
func (f *File) Reader(isMissing func(string) bool, eh record.ErrorHandler) (*Reader, error) {
	if f.Format == nil {
		return nil, fmt.Errorf("%s: %w: no format", f.Path, ErrInvalidFormat)
	}
	if err := f.Format.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	if f.Header == nil {
		return nil, fmt.Errorf("%s: %w", f.Path, record.ErrNoHeader)
	}
	return &Reader{
		path:      f.Path,
		name:      f.Name,
		format:    *f.Format,
		header:    f.Header,
		isMissing: isMissing,
		eh:        eh,
	}, nil
}

// openContent opens a local file or fetches an s3:// object, returning the
// content reader and a release func.
func openContent(ctx context.Context, path string) (io.Reader, func(), error) {
	if strings.HasPrefix(path, s3Prefix) {
		key := strings.TrimPrefix(path, s3Prefix)
		b, err := s3_helper.ReadBytesFromS3(ctx, key)
		if err != nil {
			return nil, nil, fmt.Errorf("error in s3_helper.ReadBytesFromS3: %w", err)
		}
		return bytes.NewReader(b), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error in os.Open: %w", err)
	}
	return file, func() { file.Close() }, nil
}
