package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ratelimit"
)

type RouterConfig struct {
	Handler        *Handler
	Directory      interfaces.TenantDirectory
	Limiter        ratelimit.Limiter
	JWTSecret      []byte
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires the middleware chain: access log, CORS, authentication,
// rate limit, billing gate, handler. /health sits outside authentication.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	h := cfg.Handler

	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(
		Authenticate(cfg.JWTSecret),
		RateLimit(limiter, log.Named("api.ratelimit")),
		BillingGate(cfg.Directory),
	)
	v1.HandleFunc("/payments", h.CreatePayment).Methods(http.MethodPost)
	v1.HandleFunc("/payments", h.ListPayments).Methods(http.MethodGet)
	v1.HandleFunc("/payments/members/{memberId}", h.MemberHistory).Methods(http.MethodGet)
	v1.HandleFunc("/payments/{id}", h.GetPayment).Methods(http.MethodGet)
	v1.HandleFunc("/payments/{id}/correct", h.CorrectPayment).Methods(http.MethodPost)
	v1.HandleFunc("/revenue", h.Revenue).Methods(http.MethodGet)

	// Credentials travel in the Authorization header, never cookies.
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
	})

	return RequestLogger(log.Named("api.http"))(c.Handler(r))
}
