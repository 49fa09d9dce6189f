package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/billing"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ledger"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ratelimit"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/storage"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger writes one access log line per request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			meta := &requestMeta{requestID: r.Header.Get("X-Request-ID")}
			if meta.requestID == "" {
				meta.requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", meta.requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := context.WithValue(r.Context(), requestMetaKey, meta)
			next.ServeHTTP(rec, r.WithContext(ctx))

			fields := []zap.Field{
				zap.String("request_id", meta.requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			}
			if meta.tenantID != "" {
				fields = append(fields, zap.String("tenant_id", meta.tenantID), zap.String("user_id", meta.userID))
			}
			if meta.err != nil {
				fields = append(fields, zap.Error(meta.err))
			}
			switch {
			case rec.status >= 500:
				log.Error("request", fields...)
			case rec.status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// RateLimit throttles mutations per tenant. Reads are never limited. When
// the limiter itself fails the request is let through.
func RateLimit(limiter ratelimit.Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r.Context())
			if isMutation(r.Method) {
				err := limiter.Allow(r.Context(), "tenant:"+p.TenantID)
				if errors.Is(err, ratelimit.ErrLimited) {
					writeError(w, r, err)
					return
				}
				if err != nil {
					log.Warn("rate limiter unavailable", zap.String("tenant_id", p.TenantID), zap.Error(err))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BillingGate consults the tenant's billing status before any handler runs.
func BillingGate(directory interfaces.TenantDirectory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFrom(r.Context())
			status, err := directory.BillingStatus(r.Context(), p.TenantID)
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, r, ledger.ErrTenantMismatch)
				return
			}
			if err != nil {
				writeError(w, r, err)
				return
			}
			if err := billing.Check(status, isMutation(r.Method)); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
