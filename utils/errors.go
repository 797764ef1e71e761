package utils

import "errors"

type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

type permanent interface {
	IsPermanent() bool
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string {
	return e.err.Error()
}

func (e permanentError) Unwrap() error {
	return e.err
}

func (e permanentError) IsPermanent() bool {
	return true
}

// Permanent marks err as not worth retrying while keeping the wrapped
// chain visible to errors.Is/As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanentError reports whether err (or anything it wraps) declares
// itself permanent, meaning retrying cannot help.
func IsPermanentError(err error) bool {
	if err == nil {
		return false
	}
	var p permanent
	if errors.As(err, &p) {
		return p.IsPermanent()
	}
	return false
}
