package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/ledger"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/revenue"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxBodyBytes     = 64 << 10
)

type Handler struct {
	ledger   *ledger.Ledger
	revenue  *revenue.Aggregator
	validate *validator.Validate
}

func NewHandler(l *ledger.Ledger, agg *revenue.Aggregator) *Handler {
	return &Handler{
		ledger:   l,
		revenue:  agg,
		validate: newValidator(),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ledger.ValidationError{Field: "body", Message: fmt.Sprintf("must not exceed %d bytes", maxBodyBytes)}
		}
		return ledger.ValidationError{Field: "body", Message: "must be valid JSON: " + err.Error()}
	}
	if err := h.validate.Struct(dst); err != nil {
		return fieldError(err)
	}
	return nil
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, _ := PrincipalFrom(r.Context())
	payment, err := h.ledger.Create(r.Context(), ledger.CreatePaymentInput{
		TenantID:      p.TenantID,
		BranchID:      req.BranchID,
		MemberID:      req.MemberID,
		Amount:        req.Amount,
		PaidOn:        req.PaidOn,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Note:          req.Note,
		CreatedBy:     p.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dataResponse{Data: toPaymentResponse(payment)})
}

func (h *Handler) CorrectPayment(w http.ResponseWriter, r *http.Request) {
	var req correctPaymentRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, _ := PrincipalFrom(r.Context())
	result, err := h.ledger.Correct(r.Context(), ledger.CorrectPaymentInput{
		TenantID:        p.TenantID,
		PaymentID:       mux.Vars(r)["id"],
		Changes:         req.Changes.toChanges(),
		ExpectedVersion: *req.Version,
		ActingUser:      p.UserID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toPaymentResponse(result.Payment), Warning: result.Warning})
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	payment, err := h.ledger.Get(r.Context(), p.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toPaymentResponse(payment)})
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, page, err := parseListQuery(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter.MemberID = q.Get("memberId")
	filter.BranchID = q.Get("branchId")
	filter.PaymentMethod = models.PaymentMethod(q.Get("paymentMethod"))
	if filter.IncludeCorrections, err = queryBool(q, "includeCorrections"); err != nil {
		writeError(w, r, err)
		return
	}

	p, _ := PrincipalFrom(r.Context())
	result, err := h.ledger.List(r.Context(), p.TenantID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Data:       toPaymentResponses(result.Payments),
		Pagination: newPagination(page, filter.Limit, result.Total),
	})
}

func (h *Handler) MemberHistory(w http.ResponseWriter, r *http.Request) {
	filter, page, err := parseListQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, _ := PrincipalFrom(r.Context())
	result, err := h.ledger.MemberHistory(r.Context(), p.TenantID, mux.Vars(r)["memberId"], filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Data:       toPaymentResponses(result.Payments),
		Pagination: newPagination(page, filter.Limit, result.Total),
	})
}

func (h *Handler) Revenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		query revenue.Query
		err   error
	)
	if query.StartDate, err = queryDate(q, "startDate"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.EndDate, err = queryDate(q, "endDate"); err != nil {
		writeError(w, r, err)
		return
	}
	if query.GroupBy, err = revenue.ParseGroupBy(q.Get("groupBy")); err != nil {
		writeError(w, r, err)
		return
	}
	if query.IncludeSuperseded, err = queryBool(q, "includeSuperseded"); err != nil {
		writeError(w, r, err)
		return
	}
	query.BranchID = q.Get("branchId")
	query.PaymentMethod = models.PaymentMethod(q.Get("paymentMethod"))

	p, _ := PrincipalFrom(r.Context())
	report, err := h.revenue.Report(r.Context(), p.TenantID, query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: toRevenueResponse(report)})
}

// parseListQuery reads the date range and page window shared by the list
// endpoints. It returns the 1-based page for the response envelope.
func parseListQuery(q url.Values) (models.PaymentFilter, int, error) {
	var (
		filter models.PaymentFilter
		err    error
	)
	if filter.StartDate, err = queryDate(q, "startDate"); err != nil {
		return filter, 0, err
	}
	if filter.EndDate, err = queryDate(q, "endDate"); err != nil {
		return filter, 0, err
	}

	page, err := queryInt(q, "page", 1)
	if err != nil || page < 1 {
		return filter, 0, ledger.ValidationError{Field: "page", Message: "must be a positive integer"}
	}
	limit, err := queryInt(q, "limit", defaultPageLimit)
	if err != nil || limit < 1 {
		return filter, 0, ledger.ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	filter.Limit = limit
	filter.Offset = (page - 1) * limit
	return filter, page, nil
}

func queryDate(q url.Values, key string) (models.Date, error) {
	raw := q.Get(key)
	if raw == "" {
		return models.Date{}, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return models.Date{}, ledger.ValidationError{Field: key, Message: "must be a date in YYYY-MM-DD format"}
	}
	return d, nil
}

func queryInt(q url.Values, key string, fallback int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func queryBool(q url.Values, key string) (bool, error) {
	raw := q.Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, ledger.ValidationError{Field: key, Message: "must be true or false"}
	}
	return v, nil
}
