package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/sink"
)

// mapAcquisitionError maps engine error codes to HTTP errors.
func mapAcquisitionError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var ae *acquisition.Error
	if errors.As(err, &ae) && !isSentinel(ae) {
		msg = ae.Message
	}
	switch acquisition.CodeOf(err) {
	case acquisition.ErrCodeNotSupported:
		return huma.Error501NotImplemented(msg, err)
	case acquisition.ErrCodeBusy:
		return huma.Error409Conflict(msg, err)
	case acquisition.ErrCodeInvalidValue:
		return huma.Error400BadRequest(msg, err)
	}
	if errors.Is(err, sink.ErrNoFrame) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError(msg, err)
}

// Sentinels carry a generic message; callers wrapping one describe the
// problem in the outer error.
func isSentinel(e *acquisition.Error) bool {
	switch e {
	case acquisition.ErrHardware, acquisition.ErrNotSupported, acquisition.ErrBusy, acquisition.ErrInvalidValue:
		return true
	}
	return false
}
