package iam

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yanniks/health-companion-prototype/internal/logging"
)

func TestStorePatientSequencePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	logger := logging.New(logrus.ErrorLevel)

	first, err := OpenStore(dir, logger)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	a, err := first.RegisterPatient(context.Background(), "Max", "Mustermann", "1990-01-15", time.Now())
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}

	second, err := OpenStore(dir, logger)
	if err != nil {
		t.Fatalf("reopening OpenStore: %v", err)
	}
	b, err := second.RegisterPatient(context.Background(), "Erika", "Musterfrau", "1985-05-20", time.Now())
	if err != nil {
		t.Fatalf("RegisterPatient after reopen: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("patient id %q was reused across a store reopen", a.ID)
	}
}

func TestStoreConsumeAuthCodeIsSingleUse(t *testing.T) {
	s, err := OpenStore(t.TempDir(), logging.New(logrus.ErrorLevel))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	code := AuthCode{Code: "abc", ClientID: testClientID, SubjectID: "1", Expiry: time.Now().Add(time.Hour)}
	if err := s.CreateAuthCode(context.Background(), code); err != nil {
		t.Fatalf("CreateAuthCode: %v", err)
	}

	if _, err := s.ConsumeAuthCode(context.Background(), "abc"); err != nil {
		t.Fatalf("first ConsumeAuthCode: %v", err)
	}
	if _, err := s.ConsumeAuthCode(context.Background(), "abc"); err == nil {
		t.Error("expected the second consume of the same code to fail")
	}
}

func TestStoreSweepRemovesExpiredCodesAndTokens(t *testing.T) {
	s, err := OpenStore(t.TempDir(), logging.New(logrus.ErrorLevel))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := s.CreateAuthCode(context.Background(), AuthCode{Code: "expired", Expiry: past}); err != nil {
		t.Fatalf("CreateAuthCode: %v", err)
	}
	if err := s.CreateRefreshToken(context.Background(), RefreshToken{Token: "expired-rt", Expiry: past}); err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}

	codes, tokens := s.Sweep()
	if codes != 1 {
		t.Errorf("swept %d codes, want 1", codes)
	}
	if tokens != 1 {
		t.Errorf("swept %d refresh tokens, want 1", tokens)
	}
}
