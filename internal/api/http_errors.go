package api

import (
	"errors"
	"net/http"

	"github.com/merfantz/runnerd/internal/core"
)

// httpStatusForError maps a domain error to an HTTP status and a
// client-safe message.
func httpStatusForError(err error) (int, string) {
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr == nil {
		return http.StatusInternalServerError, "internal error"
	}

	switch domErr.Category {
	case core.ErrCatValidation:
		return http.StatusUnprocessableEntity, domErr.Message
	case core.ErrCatNotFound:
		return http.StatusNotFound, domErr.Message
	case core.ErrCatConflict:
		return http.StatusConflict, domErr.Message
	case core.ErrCatResource:
		return http.StatusServiceUnavailable, domErr.Message
	case core.ErrCatExecution:
		return http.StatusInternalServerError, domErr.Message
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// httpStatusForOutcome mirrors a termination outcome as an HTTP status.
func httpStatusForOutcome(outcome core.TerminationOutcome) int {
	switch outcome {
	case core.OutcomeStopped, core.OutcomeAlreadyStopped:
		return http.StatusOK
	case core.OutcomeNotFound:
		return http.StatusNotFound
	case core.OutcomeAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
