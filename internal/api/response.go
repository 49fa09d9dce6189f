package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/billing"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ledger"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ratelimit"
)

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
}

type dataResponse struct {
	Data    any    `json:"data"`
	Warning string `json:"warning,omitempty"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type pageResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func newPagination(page, limit, total int) pagination {
	return pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised
// is a 500 with a generic message; the cause goes to the access log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation ledger.ValidationError
		readOnly   *billing.ReadOnlyError
		locked     *billing.LockedError
		limited    *ratelimit.LimitedError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message: validation.Field + " " + validation.Message,
			Error:   "validation_error",
			Field:   validation.Field,
		})
	case errors.Is(err, errUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody{Message: "missing or invalid bearer token", Error: "unauthorized"})
	case errors.As(err, &locked):
		writeJSON(w, http.StatusForbidden, errorBody{
			Message: "this account is suspended; contact billing to restore access",
			Error:   "billing_locked",
			Code:    locked.Code,
		})
	case errors.As(err, &readOnly):
		writeJSON(w, http.StatusForbidden, errorBody{
			Message: "this account is past due and read-only until the balance is settled",
			Error:   "billing_read_only",
		})
	case errors.Is(err, ledger.ErrTenantMismatch):
		writeJSON(w, http.StatusForbidden, errorBody{Message: "access to this resource is forbidden", Error: "forbidden"})
	case errors.Is(err, ledger.ErrMemberNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Message: "member not found", Error: "not_found"})
	case errors.Is(err, ledger.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Message: "payment not found", Error: "not_found"})
	case errors.Is(err, ledger.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorBody{
			Message: "the payment was modified by someone else; reload it and try again",
			Error:   "version_conflict",
		})
	case errors.Is(err, ledger.ErrAlreadyCorrected):
		writeJSON(w, http.StatusConflict, errorBody{
			Message: "the payment has already been corrected and cannot be corrected again",
			Error:   "already_corrected",
		})
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Message: "too many requests, slow down", Error: "rate_limited"})
	default:
		if meta, ok := r.Context().Value(requestMetaKey).(*requestMeta); ok {
			meta.err = err
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: "internal server error", Error: "internal_error"})
	}
}
