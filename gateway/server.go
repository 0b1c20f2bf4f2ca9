// Package gateway implements the Ingestion Gateway: authentication,
// per-subject rate limiting, idempotent delivery, FHIR code normalization,
// and forwarding to the Clinical Emitter (spec.md §4.2).
package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/singleflight"

	"github.com/yanniks/health-companion-prototype/gateway/audit"
	"github.com/yanniks/health-companion-prototype/gateway/auth"
	"github.com/yanniks/health-companion-prototype/gateway/forward"
	"github.com/yanniks/health-companion-prototype/gateway/idempotency"
	"github.com/yanniks/health-companion-prototype/gateway/ratelimit"
	"github.com/yanniks/health-companion-prototype/internal/logging"
	"github.com/yanniks/health-companion-prototype/internal/telemetry"
)

// ServerVersion is reported by the metadata endpoint.
const ServerVersion = "1.0.0"

// Config configures one Ingestion Gateway process.
type Config struct {
	Verifier          *auth.Verifier
	RateLimiter       *ratelimit.Limiter
	Idempotency       *idempotency.Cache
	Audit             *audit.Log
	Forwarder         *forward.Client
	IAMDiscoveryURL   string
	Logger            logging.Logger
	Telemetry         *telemetry.Registry
	Now               func() time.Time
}

// Server is the Ingestion Gateway's HTTP surface.
type Server struct {
	verifier        *auth.Verifier
	rateLimiter     *ratelimit.Limiter
	idempotency     *idempotency.Cache
	audit           *audit.Log
	forwarder       *forward.Client
	iamDiscoveryURL string
	logger          logging.Logger
	telemetry       *telemetry.Registry
	now             func() time.Time

	// submissionGroup coalesces concurrent forwarding attempts that share
	// a (idempotency key, subject) pair, so a second caller racing the
	// first observes the first attempt's result instead of forwarding
	// the bundle to the Clinical Emitter twice (spec.md §5 write-once).
	submissionGroup singleflight.Group

	router *mux.Router
}

// NewServer constructs a Server and wires its routes.
func NewServer(c Config) *Server {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		verifier:        c.Verifier,
		rateLimiter:     c.RateLimiter,
		idempotency:     c.Idempotency,
		audit:           c.Audit,
		forwarder:       c.Forwarder,
		iamDiscoveryURL: c.IAMDiscoveryURL,
		logger:          c.Logger,
		telemetry:       c.Telemetry,
		now:             now,
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()

	instrument := func(path string, h http.HandlerFunc) http.Handler {
		if s.telemetry == nil {
			return h
		}
		return s.telemetry.Instrument(path, h)
	}

	onReject := func(w http.ResponseWriter, r *http.Request, category auth.ErrorCategory, message string) {
		s.auditReject(r, category, message)
		writeError(w, http.StatusUnauthorized, category, message)
	}
	protect := s.verifier.Middleware(onReject)

	r.Handle("/api/v1/metadata", instrument("metadata", s.handleMetadata)).Methods(http.MethodGet)
	r.Handle("/api/v1/observations", protect(s.rateLimited(instrument("observations", s.handleSubmitObservations)))).Methods(http.MethodPost)
	r.Handle("/api/v1/status", protect(s.rateLimited(instrument("status", s.handleStatus)))).Methods(http.MethodGet)

	if s.telemetry != nil {
		healthz, metrics := s.telemetry.Handlers()
		r.Handle("/healthz", healthz)
		r.Handle("/metrics", metrics)
	}
	return r
}

// rateLimited enforces the per-subject sliding-window cap of spec.md §4.2
// on top of a protect-wrapped handler; it must run after authentication so
// the subject identifier comes from verified claims, not request input.
func (s *Server) rateLimited(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, auth.CategoryAuthentication, "missing verified subject")
			return
		}
		allowed, retryAfter := s.rateLimiter.Allow(claims.Subject)
		if !allowed {
			if err := s.audit.Append(rejectionAuditEntry("rate_limited", claims.Subject)); err != nil {
				s.logger.Warnf("audit append failed: %v", err)
			}
			writeRateLimited(w, retryAfter)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Server) auditReject(r *http.Request, category auth.ErrorCategory, reason string) {
	if err := s.audit.Append(rejectionAuditEntry(string(category), "")); err != nil {
		s.logger.Warnf("audit append failed: %v", err)
	}
}

func rejectionAuditEntry(eventKind, subjectRef string) audit.Entry {
	return audit.Entry{EventKind: eventKind, SubjectReference: subjectRef, Outcome: "rejected"}
}
