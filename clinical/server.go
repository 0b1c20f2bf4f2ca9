// Package clinical implements the Clinical Emitter: it converts normalized
// FHIR Observations into GDT 2.1 exchange files with byte-exact framing and
// tracks per-subject transfer status (spec.md §4.3).
package clinical

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/yanniks/health-companion-prototype/internal/filestore"
	"github.com/yanniks/health-companion-prototype/internal/logging"
	"github.com/yanniks/health-companion-prototype/internal/telemetry"
)

// Config configures one Clinical Emitter process.
type Config struct {
	OutputPath string
	SenderID   string
	ReceiverID string
	Status     *filestore.Store[TransferStatus]
	Logger     logging.Logger
	Telemetry  *telemetry.Registry
	Now        func() time.Time
}

// Server is the Clinical Emitter's HTTP surface.
type Server struct {
	outputPath string
	senderID   string
	receiverID string
	status     *filestore.Store[TransferStatus]
	logger     logging.Logger
	telemetry  *telemetry.Registry
	now        func() time.Time
	router     *mux.Router
}

// NewServer constructs a Server and wires its routes.
func NewServer(c Config) *Server {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		outputPath: c.OutputPath,
		senderID:   c.SenderID,
		receiverID: c.ReceiverID,
		status:     c.Status,
		logger:     c.Logger,
		telemetry:  c.Telemetry,
		now:        now,
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

	r.Handle("/api/v1/process", instrument("process", s.handleProcess)).Methods(http.MethodPost)
	r.Handle("/api/v1/status/{patientId}", instrument("status", s.handleStatus)).Methods(http.MethodGet)

	if s.telemetry != nil {
		healthz, metrics := s.telemetry.Handlers()
		r.Handle("/healthz", healthz)
		r.Handle("/metrics", metrics)
	}
	return r
}
