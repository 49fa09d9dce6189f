package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/billing"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/clock"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ledger"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ratelimit"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/revenue"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage/memory"
)

const testSecret = "test-secret"

type fixture struct {
	store  *memory.MemoryLedgerStore
	router http.Handler
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	store.AddTenant("t-active", billing.StatusActive)
	store.AddTenant("t-trial", billing.StatusTrial)
	store.AddTenant("t-pastdue", billing.StatusPastDue)
	store.AddTenant("t-suspended", billing.StatusSuspended)
	store.AddBranch("t-active", "b1")
	store.AddMember("t-active", "b1", "m1")
	store.AddBranch("t-trial", "b9")
	store.AddMember("t-trial", "b9", "m9")

	l := ledger.NewLedger(store, store, ledger.WithClock(clock.Fixed(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))))
	router := NewRouter(RouterConfig{
		Handler:   NewHandler(l, revenue.NewAggregator(store)),
		Directory: store,
		Limiter:   limiter,
		JWTSecret: []byte(testSecret),
	})
	return &fixture{store: store, router: router}
}

func signToken(t *testing.T, secret, tenantID, userID string) string {
	t.Helper()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	Warning    string          `json:"warning"`
	Pagination pagination      `json:"pagination"`
	Message    string          `json:"message"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	Field      string          `json:"field"`
}

type response struct {
	status int
	header http.Header
	body   envelope
}

func (f *fixture) do(t *testing.T, method, path, tenantID string, body any) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, tenantID, "user-1"))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return response{status: rec.Code, header: rec.Header(), body: env}
}

func (r response) payment(t *testing.T) paymentResponse {
	t.Helper()
	var p paymentResponse
	if err := json.Unmarshal(r.body.Data, &p); err != nil {
		t.Fatalf("decode payment: %v", err)
	}
	return p
}

func (r response) payments(t *testing.T) []paymentResponse {
	t.Helper()
	var ps []paymentResponse
	if err := json.Unmarshal(r.body.Data, &ps); err != nil {
		t.Fatalf("decode payments: %v", err)
	}
	return ps
}

func createBody(amount, paidOn string) map[string]any {
	return map[string]any{
		"memberId":      "m1",
		"amount":        amount,
		"paidOn":        paidOn,
		"paymentMethod": "CASH",
	}
}

func seed(t *testing.T, store *memory.MemoryLedgerStore, tenantID string) {
	t.Helper()
	err := store.CreatePayment(context.Background(), models.Payment{
		ID:            "seeded-" + tenantID,
		TenantID:      tenantID,
		BranchID:      "b-" + tenantID,
		MemberID:      "m-" + tenantID,
		Amount:        decimal.RequireFromString("10.00"),
		PaidOn:        models.NewDate(2024, time.January, 2),
		PaymentMethod: models.MethodCash,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t, nil)
	res := f.do(t, http.MethodGet, "/health", "", nil)
	if res.status != http.StatusOK {
		t.Errorf("status = %d", res.status)
	}
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", "t-active", "user-1")},
		{"missing tenant", "Bearer " + signToken(t, testSecret, "", "user-1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestBillingGate(t *testing.T) {
	f := newFixture(t, nil)
	for _, tenant := range []string{"t-pastdue", "t-suspended"} {
		seed(t, f.store, tenant)
	}

	tests := []struct {
		name      string
		tenant    string
		method    string
		path      string
		wantCode  int
		wantError string
		wantLock  string
	}{
		{"trial read", "t-trial", http.MethodGet, "/api/v1/payments", http.StatusOK, "", ""},
		{"active read", "t-active", http.MethodGet, "/api/v1/payments", http.StatusOK, "", ""},
		{"past due read", "t-pastdue", http.MethodGet, "/api/v1/payments", http.StatusOK, "", ""},
		{"past due get", "t-pastdue", http.MethodGet, "/api/v1/payments/seeded-t-pastdue", http.StatusOK, "", ""},
		{"past due create", "t-pastdue", http.MethodPost, "/api/v1/payments", http.StatusForbidden, "billing_read_only", ""},
		{"past due correct", "t-pastdue", http.MethodPost, "/api/v1/payments/seeded-t-pastdue/correct", http.StatusForbidden, "billing_read_only", ""},
		{"suspended read", "t-suspended", http.MethodGet, "/api/v1/payments", http.StatusForbidden, "billing_locked", billing.LockedCode},
		{"suspended revenue", "t-suspended", http.MethodGet, "/api/v1/revenue?startDate=2024-01-01&endDate=2024-01-31", http.StatusForbidden, "billing_locked", billing.LockedCode},
		{"suspended create", "t-suspended", http.MethodPost, "/api/v1/payments", http.StatusForbidden, "billing_locked", billing.LockedCode},
		{"unknown tenant", "t-ghost", http.MethodGet, "/api/v1/payments", http.StatusForbidden, "forbidden", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any
			if tt.method == http.MethodPost {
				body = "{}"
			}
			res := f.do(t, tt.method, tt.path, tt.tenant, body)
			if res.status != tt.wantCode {
				t.Fatalf("status = %d, want %d (%+v)", res.status, tt.wantCode, res.body)
			}
			if res.body.Error != tt.wantError || res.body.Code != tt.wantLock {
				t.Errorf("error = %q code = %q, want %q %q", res.body.Error, res.body.Code, tt.wantError, tt.wantLock)
			}
		})
	}
}

func TestCreateCorrectAndReport(t *testing.T) {
	f := newFixture(t, nil)

	res := f.do(t, http.MethodPost, "/api/v1/payments", "t-active", createBody("100.00", "2024-01-15"))
	if res.status != http.StatusCreated {
		t.Fatalf("create: %d %+v", res.status, res.body)
	}
	original := res.payment(t)
	if original.Amount != "100.00" || original.BranchID != "b1" || original.Version != 0 || original.CreatedBy != "user-1" {
		t.Errorf("created = %+v", original)
	}
	if original.PaidOn.String() != "2024-01-15" {
		t.Errorf("paidOn = %s", original.PaidOn)
	}

	res = f.do(t, http.MethodPost, "/api/v1/payments/"+original.ID+"/correct", "t-active", map[string]any{
		"changes": map[string]any{"amount": "150.00"},
		"version": 0,
	})
	if res.status != http.StatusOK {
		t.Fatalf("correct: %d %+v", res.status, res.body)
	}
	correction := res.payment(t)
	if !correction.IsCorrection || correction.CorrectedPaymentID == nil || *correction.CorrectedPaymentID != original.ID {
		t.Errorf("correction = %+v", correction)
	}
	if correction.Amount != "150.00" || res.body.Warning != "" {
		t.Errorf("amount = %s warning = %q", correction.Amount, res.body.Warning)
	}

	res = f.do(t, http.MethodPost, "/api/v1/payments/"+original.ID+"/correct", "t-active", map[string]any{
		"changes": map[string]any{"amount": "175.00"},
		"version": 0,
	})
	if res.status != http.StatusConflict || res.body.Error != "already_corrected" {
		t.Errorf("second correction: %d %+v", res.status, res.body)
	}

	res = f.do(t, http.MethodGet, "/api/v1/payments/"+original.ID, "t-active", nil)
	if got := res.payment(t); !got.IsCorrected || got.Version != 0 || got.Amount != "100.00" {
		t.Errorf("original after correction = %+v", got)
	}

	res = f.do(t, http.MethodGet, "/api/v1/revenue?startDate=2024-01-01&endDate=2024-01-31&groupBy=month", "t-active", nil)
	var report revenueResponse
	if err := json.Unmarshal(res.body.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalRevenue != "150.00" || report.PaymentCount != 1 || len(report.Breakdown) != 1 || report.Breakdown[0].PeriodKey != "2024-01" {
		t.Errorf("report = %+v", report)
	}

	res = f.do(t, http.MethodGet, "/api/v1/revenue?startDate=2024-01-01&endDate=2024-01-31&groupBy=month&includeSuperseded=true", "t-active", nil)
	if err := json.Unmarshal(res.body.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalRevenue != "250.00" || report.PaymentCount != 2 {
		t.Errorf("audit report = %+v", report)
	}

	res = f.do(t, http.MethodGet, "/api/v1/payments", "t-active", nil)
	if list := res.payments(t); len(list) != 1 || list[0].ID != correction.ID {
		t.Errorf("current list = %+v", list)
	}
	res = f.do(t, http.MethodGet, "/api/v1/payments?includeCorrections=true", "t-active", nil)
	if list := res.payments(t); len(list) != 2 {
		t.Errorf("full list has %d rows", len(list))
	}
	res = f.do(t, http.MethodGet, "/api/v1/payments/members/m1", "t-active", nil)
	if list := res.payments(t); len(list) != 2 || res.body.Pagination.Total != 2 {
		t.Errorf("history = %d rows, pagination %+v", len(list), res.body.Pagination)
	}
}

func TestCorrectionErrors(t *testing.T) {
	f := newFixture(t, nil)
	res := f.do(t, http.MethodPost, "/api/v1/payments", "t-active", createBody("100.00", "2023-11-01"))
	id := res.payment(t).ID

	tests := []struct {
		name      string
		tenant    string
		id        string
		body      any
		wantCode  int
		wantError string
	}{
		{"stale version", "t-active", id, map[string]any{"changes": map[string]any{"amount": "1.00"}, "version": 3}, http.StatusConflict, "version_conflict"},
		{"missing version", "t-active", id, map[string]any{"changes": map[string]any{"amount": "1.00"}}, http.StatusBadRequest, "validation_error"},
		{"no changes", "t-active", id, map[string]any{"changes": map[string]any{}, "version": 0}, http.StatusBadRequest, "validation_error"},
		{"bad method", "t-active", id, map[string]any{"changes": map[string]any{"paymentMethod": "BITCOIN"}, "version": 0}, http.StatusBadRequest, "validation_error"},
		{"other tenant", "t-trial", id, map[string]any{"changes": map[string]any{"amount": "1.00"}, "version": 0}, http.StatusForbidden, "forbidden"},
		{"unknown payment", "t-active", "nope", map[string]any{"changes": map[string]any{"amount": "1.00"}, "version": 0}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, http.MethodPost, "/api/v1/payments/"+tt.id+"/correct", tt.tenant, tt.body)
			if res.status != tt.wantCode || res.body.Error != tt.wantError {
				t.Errorf("got %d %q, want %d %q", res.status, res.body.Error, tt.wantCode, tt.wantError)
			}
		})
	}

	res = f.do(t, http.MethodPost, "/api/v1/payments/"+id+"/correct", "t-active", map[string]any{
		"changes": map[string]any{"note": "receipt reissued"},
		"version": 0,
	})
	if res.status != http.StatusOK || !strings.Contains(res.body.Warning, "2023-11-01") {
		t.Errorf("old payment: %d warning %q", res.status, res.body.Warning)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)

	withField := func(key string, value any) map[string]any {
		b := createBody("10.00", "2024-02-01")
		b[key] = value
		return b
	}

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantField string
	}{
		{"malformed json", "{", http.StatusBadRequest, "body"},
		{"zero amount", withField("amount", "0"), http.StatusBadRequest, "amount"},
		{"three decimals", withField("amount", "10.005"), http.StatusBadRequest, "amount"},
		{"too large", withField("amount", "1000000.00"), http.StatusBadRequest, "amount"},
		{"future date", withField("paidOn", "2024-03-02"), http.StatusBadRequest, "paidOn"},
		{"bad date format", withField("paidOn", "01/02/2024"), http.StatusBadRequest, "body"},
		{"unknown method", withField("paymentMethod", "BITCOIN"), http.StatusBadRequest, "paymentMethod"},
		{"missing member", withField("memberId", ""), http.StatusBadRequest, "memberId"},
		{"long note", withField("note", strings.Repeat("x", 501)), http.StatusBadRequest, "note"},
		{"member of other tenant", withField("memberId", "m9"), http.StatusForbidden, ""},
		{"branch of other tenant", withField("branchId", "b9"), http.StatusForbidden, ""},
		{"extreme exponent", withField("amount", "1e-1000000"), http.StatusBadRequest, "amount"},
		{"oversized body", withField("note", strings.Repeat("x", maxBodyBytes)), http.StatusBadRequest, "body"},
		{"max amount", withField("amount", "999999.99"), http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.do(t, http.MethodPost, "/api/v1/payments", "t-active", tt.body)
			if res.status != tt.wantCode || res.body.Field != tt.wantField {
				t.Errorf("got %d field %q, want %d %q (%s)", res.status, res.body.Field, tt.wantCode, tt.wantField, res.body.Message)
			}
		})
	}
}

func TestTenantIsolationOnReads(t *testing.T) {
	f := newFixture(t, nil)
	id := f.do(t, http.MethodPost, "/api/v1/payments", "t-active", createBody("10.00", "2024-02-01")).payment(t).ID

	if res := f.do(t, http.MethodGet, "/api/v1/payments/"+id, "t-trial", nil); res.status != http.StatusForbidden {
		t.Errorf("cross-tenant get: %d", res.status)
	}
	if res := f.do(t, http.MethodGet, "/api/v1/payments/missing", "t-active", nil); res.status != http.StatusNotFound {
		t.Errorf("missing get: %d", res.status)
	}
	if res := f.do(t, http.MethodGet, "/api/v1/payments/members/m9", "t-active", nil); res.status != http.StatusForbidden {
		t.Errorf("cross-tenant history: %d", res.status)
	}
	if res := f.do(t, http.MethodGet, "/api/v1/payments/members/ghost", "t-active", nil); res.status != http.StatusNotFound {
		t.Errorf("unknown member history: %d", res.status)
	}
	res := f.do(t, http.MethodGet, "/api/v1/payments", "t-trial", nil)
	if list := res.payments(t); len(list) != 0 {
		t.Errorf("other tenant sees %d payments", len(list))
	}
}

func TestPagination(t *testing.T) {
	f := newFixture(t, nil)
	for _, day := range []string{"2024-02-01", "2024-02-02", "2024-02-03"} {
		f.do(t, http.MethodPost, "/api/v1/payments", "t-active", createBody("10.00", day))
	}

	res := f.do(t, http.MethodGet, "/api/v1/payments?limit=2&page=2", "t-active", nil)
	list := res.payments(t)
	want := pagination{Page: 2, Limit: 2, Total: 3, TotalPages: 2}
	if res.body.Pagination != want || len(list) != 1 || list[0].PaidOn.String() != "2024-02-01" {
		t.Errorf("pagination = %+v, rows = %d", res.body.Pagination, len(list))
	}

	res = f.do(t, http.MethodGet, "/api/v1/payments?limit=500", "t-active", nil)
	if res.body.Pagination.Limit != maxPageLimit {
		t.Errorf("limit = %d, want clamp to %d", res.body.Pagination.Limit, maxPageLimit)
	}

	for _, q := range []string{"page=0", "limit=abc", "startDate=2024-13-01", "includeCorrections=maybe", "startDate=2024-02-03&endDate=2024-02-01"} {
		if res := f.do(t, http.MethodGet, "/api/v1/payments?"+q, "t-active", nil); res.status != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", q, res.status)
		}
	}
}

func TestRevenueValidation(t *testing.T) {
	f := newFixture(t, nil)
	for _, q := range []string{
		"",
		"startDate=2024-01-01",
		"startDate=2024-02-01&endDate=2024-01-01",
		"startDate=2024-01-01&endDate=2024-01-31&groupBy=year",
		"startDate=2024-01-01&endDate=2024-01-31&paymentMethod=BARTER",
	} {
		if res := f.do(t, http.MethodGet, "/api/v1/revenue?"+q, "t-active", nil); res.status != http.StatusBadRequest {
			t.Errorf("%q: status %d, want 400", q, res.status)
		}
	}
}

type denyLimiter struct{ calls int }

func (d *denyLimiter) Allow(context.Context, string) error {
	d.calls++
	return &ratelimit.LimitedError{RetryAfter: 1500 * time.Millisecond}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	limiter := &denyLimiter{}
	f := newFixture(t, limiter)

	res := f.do(t, http.MethodPost, "/api/v1/payments", "t-active", createBody("10.00", "2024-02-01"))
	if res.status != http.StatusTooManyRequests || res.header.Get("Retry-After") != "2" {
		t.Errorf("mutation: %d retry-after %q", res.status, res.header.Get("Retry-After"))
	}

	if res := f.do(t, http.MethodGet, "/api/v1/payments", "t-active", nil); res.status != http.StatusOK {
		t.Errorf("read: %d", res.status)
	}
	if limiter.calls != 1 {
		t.Errorf("limiter consulted %d times, want 1", limiter.calls)
	}
}

func TestCORSDoesNotAllowCredentials(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/payments", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q, want unset", got)
	}
}
