package httpx

import (
	"errors"
	"net/http"
)

// Transport-level sentinels. Domain packages wrap or translate into these.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("dependency unavailable")
)

type errorMapping struct {
	target error
	status int
	title  string
	expose bool
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{ErrValidation, http.StatusBadRequest, "Validation Failed", true},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized", true},
	{ErrForbidden, http.StatusForbidden, "Forbidden", true},
	{ErrNotFound, http.StatusNotFound, "Not Found", true},
	{ErrDuplicate, http.StatusConflict, "Duplicate", true},
	{ErrConflict, http.StatusConflict, "Conflict", true},
	{ErrUnavailable, http.StatusServiceUnavailable, "Service Unavailable", false},
}

// StatusFor returns the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps err to a problem response. Details of unavailable
// dependencies and unknown errors are not exposed.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			detail := ""
			if m.expose {
				detail = err.Error()
			}
			Problem(w, m.status, m.title, detail)
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
