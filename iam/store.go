package iam

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/yanniks/health-companion-prototype/internal/filestore"
	"github.com/yanniks/health-companion-prototype/internal/logging"
)

// ErrNotFound mirrors filestore.ErrNotFound for callers that only import
// this package.
var ErrNotFound = filestore.ErrNotFound

// Store is the Identity Authority's persistence boundary: patients,
// authorization codes, and refresh tokens, each a single mutation
// authority per spec.md §4.4.
type Store struct {
	patients      *filestore.Store[Patient]
	authCodes     *filestore.Store[AuthCode]
	refreshTokens *filestore.Store[RefreshToken]

	seqMu   sync.Mutex
	seqPath string
	seqNext uint64
}

// OpenStore opens (or creates) the three JSON-lines stores under dir, per
// spec.md §6 Persisted state layout: patients.txt, auth_codes.txt,
// refresh_tokens.txt.
func OpenStore(dir string, logger logging.Logger) (*Store, error) {
	patients, err := filestore.Open[Patient](filepath.Join(dir, "patients.txt"), logger)
	if err != nil {
		return nil, err
	}
	authCodes, err := filestore.Open[AuthCode](filepath.Join(dir, "auth_codes.txt"), logger)
	if err != nil {
		return nil, err
	}
	refreshTokens, err := filestore.Open[RefreshToken](filepath.Join(dir, "refresh_tokens.txt"), logger)
	if err != nil {
		return nil, err
	}

	s := &Store{
		patients:      patients,
		authCodes:     authCodes,
		refreshTokens: refreshTokens,
		seqPath:       filepath.Join(dir, "patient_seq.txt"),
	}
	if err := s.loadSeq(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadSeq() error {
	data, err := os.ReadFile(s.seqPath)
	if os.IsNotExist(err) {
		s.seqNext = 1
		return nil
	}
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return errors.Wrap(err, "parsing patient sequence file")
	}
	s.seqNext = n
	return nil
}

func (s *Store) persistSeqLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.seqPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.seqPath, []byte(strconv.FormatUint(s.seqNext, 10)), 0o600)
}

// nextPatientID returns the next never-reused decimal identifier.
func (s *Store) nextPatientID() (string, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	id := s.seqNext
	s.seqNext++
	if err := s.persistSeqLocked(); err != nil {
		s.seqNext = id // roll back in-memory counter on persist failure
		return "", err
	}
	return strconv.FormatUint(id, 10), nil
}

// RegisterPatient creates a new patient record and returns its freshly
// assigned identifier.
func (s *Store) RegisterPatient(ctx context.Context, given, family, dob string, now time.Time) (Patient, error) {
	id, err := s.nextPatientID()
	if err != nil {
		return Patient{}, err
	}
	p := Patient{ID: id, Given: given, Family: family, DOB: dob, CreatedAt: now}
	if err := s.patients.Create(p); err != nil {
		return Patient{}, err
	}
	return p, nil
}

// ListPatients returns every registered patient.
func (s *Store) ListPatients(ctx context.Context) []Patient {
	return s.patients.List()
}

// GetPatient looks up a patient by identifier.
func (s *Store) GetPatient(ctx context.Context, id string) (Patient, error) {
	return s.patients.Get(id)
}

// DeletePatient removes a patient and cascades revocation of every
// outstanding refresh token bound to that subject, per spec.md §3's
// Patient record invariant.
func (s *Store) DeletePatient(ctx context.Context, id string) error {
	if _, err := s.patients.Get(id); err != nil {
		return err
	}
	if err := s.patients.Delete(id); err != nil {
		return err
	}
	for _, rt := range s.refreshTokens.List() {
		if rt.SubjectID == id {
			if err := s.refreshTokens.Delete(rt.Token); err != nil {
				return errors.Wrapf(err, "revoking refresh token during cascade delete of patient %s", id)
			}
		}
	}
	return nil
}

// CreateAuthCode persists a freshly issued authorization code.
func (s *Store) CreateAuthCode(ctx context.Context, c AuthCode) error {
	return s.authCodes.Create(c)
}

// ConsumeAuthCode atomically removes and returns the code, guaranteeing
// single-use under concurrent exchange attempts (spec.md §5).
func (s *Store) ConsumeAuthCode(ctx context.Context, code string) (AuthCode, error) {
	return s.authCodes.Consume(code)
}

// CreateRefreshToken persists a freshly issued refresh token.
func (s *Store) CreateRefreshToken(ctx context.Context, t RefreshToken) error {
	return s.refreshTokens.Create(t)
}

// ConsumeRefreshToken atomically removes and returns the token (rotation:
// callers must issue a fresh one after a successful consume).
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	return s.refreshTokens.Consume(token)
}

// RevokeRefreshToken removes a refresh token unconditionally. Per RFC 7009
// (spec.md §4.1 Revocation endpoint), this never errors on a missing token.
func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	return s.refreshTokens.Delete(token)
}

// Sweep drops expired authorization codes and refresh tokens; it is run
// periodically by the serve command (SPEC_FULL.md §3 Garbage collection
// sweep).
func (s *Store) Sweep() (codes, refreshTokens int) {
	return s.authCodes.Sweep(), s.refreshTokens.Sweep()
}
