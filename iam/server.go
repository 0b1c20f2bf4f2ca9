package iam

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/yanniks/health-companion-prototype/internal/idgen"
	"github.com/yanniks/health-companion-prototype/internal/logging"
	"github.com/yanniks/health-companion-prototype/internal/telemetry"
)

// Config configures one Identity Authority process, grounded on dex's
// server.Config (server/server.go).
type Config struct {
	IssuerURL string
	Client    Client
	Store     *Store
	Keys      *KeyPair
	Logger    logging.Logger
	Telemetry *telemetry.Registry
	Now       func() time.Time
}

// Server is the Identity Authority's HTTP surface: discovery, JWKS,
// authorization, token issuance/rotation, revocation, and patient
// management, mirroring the shape of dex's server.Server.
type Server struct {
	issuerURL string
	client    Client
	store     *Store
	keys      *KeyPair
	logger    logging.Logger
	telemetry *telemetry.Registry
	now       func() time.Time

	router *mux.Router
}

// NewServer constructs a Server and wires its routes.
func NewServer(c Config) (*Server, error) {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		issuerURL: strings.TrimSuffix(c.IssuerURL, "/"),
		client:    c.Client,
		store:     c.Store,
		keys:      c.Keys,
		logger:    c.Logger,
		telemetry: c.Telemetry,
		now:       now,
	}
	s.router = s.newRouter()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) absURL(path string) string {
	return s.issuerURL + path
}

func (s *Server) newRouter() *mux.Router {
	r := mux.NewRouter()

	instrument := func(path string, h http.HandlerFunc) http.Handler {
		if s.telemetry == nil {
			return h
		}
		return s.telemetry.Instrument(path, h)
	}

	r.Handle("/.well-known/openid-configuration", instrument("discovery", s.handleDiscovery)).Methods(http.MethodGet)
	r.Handle("/jwks", instrument("jwks", s.handleJWKS)).Methods(http.MethodGet)
	r.Handle("/authorize", instrument("authorize", s.handleAuthorize)).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/token", instrument("token", s.handleToken)).Methods(http.MethodPost)
	r.Handle("/revoke", instrument("revoke", s.handleRevoke)).Methods(http.MethodPost)

	r.Handle("/patients", instrument("patients_create", s.handleCreatePatient)).Methods(http.MethodPost)
	r.Handle("/patients", instrument("patients_list", s.handleListPatients)).Methods(http.MethodGet)
	r.Handle("/patients/{id}", instrument("patients_get", s.handleGetPatient)).Methods(http.MethodGet)
	r.Handle("/patients/{id}", instrument("patients_delete", s.handleDeletePatient)).Methods(http.MethodDelete)

	if s.telemetry != nil {
		healthz, metrics := s.telemetry.Handlers()
		r.Handle("/healthz", healthz)
		r.Handle("/metrics", metrics)
	}
	return r
}

func (s *Server) requestID(r *http.Request) string {
	if rid := logging.RequestIDFromContext(r.Context()); rid != "" {
		return rid
	}
	return idgen.RequestID()
}
