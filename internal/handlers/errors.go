package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/clasedesurf/reservations/internal/apperr"
	"github.com/danielgtaylor/huma/v2"
)

// apiError is the body of every failed operation: {kind, message} plus the
// extra fields apperr.Body adds for cascade and retryable errors.
type apiError struct {
	status int
	apperr.Body
}

func (e *apiError) Error() string {
	return e.Message
}

func (e *apiError) GetStatus() int {
	return e.status
}

// httpError converts a core error into its HTTP form. Unexpected errors are
// logged here and reported without details.
func httpError(err error) error {
	body := apperr.BodyOf(err)
	if body.Kind == apperr.Internal {
		log.Printf("Internal error: %v", err)
	}
	return &apiError{status: apperr.Status(body.Kind), Body: body}
}

// newError replaces huma.NewError so request validation and routing errors
// share the {kind, message} shape. Validation failures are reported as 400.
func newError(status int, msg string, errs ...error) huma.StatusError {
	kind := kindForStatus(status)
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}

	message := msg
	if kind == apperr.Internal {
		for _, err := range errs {
			log.Printf("Internal error: %s: %v", msg, err)
		}
		message = "internal error"
	} else if len(errs) > 0 {
		details := make([]string, 0, len(errs))
		for _, err := range errs {
			if err != nil {
				details = append(details, err.Error())
			}
		}
		if len(details) > 0 {
			message = msg + ": " + strings.Join(details, "; ")
		}
	}

	return &apiError{status: status, Body: apperr.Body{Kind: kind, Message: message}}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperr.Validation
	case http.StatusUnauthorized:
		return apperr.Unauthorized
	case http.StatusForbidden:
		return apperr.Forbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.NotFound
	case http.StatusConflict:
		return apperr.StateConflict
	case http.StatusTooManyRequests:
		return apperr.RateLimited
	}
	if status < 500 {
		return apperr.Validation
	}
	return apperr.Internal
}
