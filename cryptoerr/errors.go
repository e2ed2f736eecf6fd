// Package cryptoerr holds the failure taxonomy shared by the container and blob decryptors.
package cryptoerr

import (
	"context"

	"github.com/pkg/errors"
)

// errors
var (
	ErrKeyMismatch        = errors.New("key mismatch")
	ErrUnrecognizedFormat = errors.New("unrecognized format")
	ErrTruncated          = errors.New("truncated input")
	ErrInvalidKey         = errors.New("invalid key")
)

// Kind is the per-file outcome reported by the batch runner.
type Kind uint8

const (
	KindOK Kind = iota
	KindKeyMismatch
	KindUnrecognizedFormat
	KindTruncated
	KindInvalidKey
	KindIO
	KindCanceled
)

var kindNames = [...]string{
	KindOK:                 "ok",
	KindKeyMismatch:        "key_mismatch",
	KindUnrecognizedFormat: "unrecognized_format",
	KindTruncated:          "truncated",
	KindInvalidKey:         "invalid_key",
	KindIO:                 "io_error",
	KindCanceled:           "canceled",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Hard reports whether the outcome should make the process exit non-zero.
func (k Kind) Hard() bool {
	return k != KindOK && k != KindCanceled
}

// KindOf classifies err. Anything that is not one of the sentinels above or a
// context error is treated as a filesystem failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrKeyMismatch):
		return KindKeyMismatch
	case errors.Is(err, ErrUnrecognizedFormat):
		return KindUnrecognizedFormat
	case errors.Is(err, ErrTruncated):
		return KindTruncated
	case errors.Is(err, ErrInvalidKey):
		return KindInvalidKey
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindIO
	}
}
