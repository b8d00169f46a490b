package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Body is the JSON shape of every error the service returns.
type Body struct {
	Kind              Kind   `json:"kind"`
	Message           string `json:"message"`
	ReservationsCount *int64 `json:"reservationsCount,omitempty"`
	CanForceDelete    bool   `json:"canForceDelete,omitempty"`
	Retryable         bool   `json:"retryable,omitempty"`
}

// BodyOf renders err for a client. Internal details are never exposed.
func BodyOf(err error) Body {
	b := Body{Kind: KindOf(err), Message: MessageOf(err), Retryable: Retryable(err)}
	if b.Kind == Internal {
		b.Message = "internal error"
	}
	var e *Error
	if b.Kind == CascadeBlocked && errors.As(err, &e) {
		count := e.Count
		b.ReservationsCount = &count
		b.CanForceDelete = true
	}
	return b
}

// Status maps an error kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case Validation, DiscountInvalid:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case CapacityExceeded, DiscountExhausted, StateConflict, CascadeBlocked:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Write sends err as a JSON error response. It is for plain net/http
// middleware; API operations return errors and let huma render them.
func Write(w http.ResponseWriter, err error) {
	body := BodyOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(body.Kind))
	json.NewEncoder(w).Encode(body)
}
