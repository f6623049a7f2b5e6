// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
)

// errorStatuses is checked in order; the first sentinel matched wins.
var errorStatuses = []struct {
	target error
	status int
	title  string
}{
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrDuplicate, http.StatusConflict, "Duplicate"},
	{shared.ErrIdempotencyConflict, http.StatusConflict, "Already Processed"},
	{shared.ErrConflict, http.StatusConflict, "Conflict"},
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrInvalidCredentials, http.StatusUnauthorized, "Unauthorized"},
	{shared.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{shared.ErrForbidden, http.StatusForbidden, "Forbidden"},
}

// StatusFor returns the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	status, _ := classify(err)
	return status
}

func classify(err error) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.target) {
			return e.status, e.title
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := classify(err)
	Problem(w, status, title, shared.UserSafeMessage(err))
}
