package server

import (
	"errors"

	"github.com/celerix-dev/safari/pkg/engine"
)

// Error codes carried in "ERR <code> <message>" replies.
const (
	CodeNotFound    = "NOT_FOUND"
	CodeInvalid     = "INVALID"
	CodeUnavailable = "UNAVAILABLE"
	CodeInternal    = "INTERNAL"
)

// ErrorCode classifies err for the wire.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, engine.ErrInvalidInput):
		return CodeInvalid
	case errors.Is(err, engine.ErrStoreUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// SentinelForCode maps a wire code back to the store error it stands for.
// Unknown codes return nil.
func SentinelForCode(code string) error {
	switch code {
	case CodeNotFound:
		return engine.ErrNotFound
	case CodeInvalid:
		return engine.ErrInvalidInput
	case CodeUnavailable:
		return engine.ErrStoreUnavailable
	default:
		return nil
	}
}
