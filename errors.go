package dlite

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so that callers orchestrating strategies can decide
// whether to retry, report a bad configuration, or give up.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindDecode
	KindMissing
	KindConfig
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindMissing:
		return "missing"
	case KindConfig:
		return "config"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is the error type returned by strategies, stores and drivers. Op names
// the operation that failed (e.g. "download", "parse mpr").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Cause implements the causer interface from github.com/pkg/errors.
func (e *Error) Cause() error { return e.Err }

// Unwrap supports errors.Is and errors.As from the standard library.
func (e *Error) Unwrap() error { return e.Err }

func newError(k Kind, err error, op string, args ...interface{}) error {
	if len(args) > 0 {
		op = fmt.Sprintf(op, args...)
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// NetworkError wraps err as a (retryable) network failure.
func NetworkError(err error, op string, args ...interface{}) error {
	return newError(KindNetwork, err, op, args...)
}

// DecodeError wraps err as a failure to decode fetched or stored bytes.
func DecodeError(err error, op string, args ...interface{}) error {
	return newError(KindDecode, err, op, args...)
}

// MissingError reports that a collection, instance, entity or cache key does
// not exist.
func MissingError(op string, args ...interface{}) error {
	return newError(KindMissing, errors.New("not found"), op, args...)
}

// ConfigError wraps err as an invalid strategy configuration.
func ConfigError(err error, op string, args ...interface{}) error {
	return newError(KindConfig, err, op, args...)
}

// StorageError wraps err as a storage driver or store failure.
func StorageError(err error, op string, args ...interface{}) error {
	return newError(KindStorage, err, op, args...)
}

// KindOf returns the Kind of the first *Error found in err's cause chain, or
// KindUnknown.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		switch c := err.(type) {
		case interface{ Cause() error }:
			err = c.Cause()
		case interface{ Unwrap() error }:
			err = c.Unwrap()
		default:
			return KindUnknown
		}
	}
	return KindUnknown
}

// Retryable reports whether err is a network failure which may succeed if the
// operation is repeated.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}
