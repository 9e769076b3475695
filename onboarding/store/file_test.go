package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/m3rciful/onboardbot/onboarding"
)

func TestFileCorruptDocumentStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := OpenFile(context.Background(), path, fixedClock)

	rec, err := s.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != onboarding.StateGreeting {
		t.Fatalf("state = %s", rec.State)
	}

	if _, err := s.Upsert(context.Background(), 1, onboarding.SetState(onboarding.StateReferralQuestion)); err != nil {
		t.Fatalf("upsert over corrupt document: %v", err)
	}
}

func TestFileLoadsLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	doc := `{
  "100": {"state": "DEPOSIT_QUESTION", "has_kyc": true, "has_deposit": null, "username": "alice", "name": "Alice", "extra": 1},
  "200": {"state": "KYC_QUESTION", "has_kyc": false},
  "oops": {"state": "COMPLETED"}
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := OpenFile(context.Background(), path, fixedClock)
	ctx := context.Background()

	alice, _ := s.Get(ctx, 100)
	if alice.State != onboarding.StateDepositQuestion || alice.HasReferralKYC != onboarding.Yes ||
		alice.HasDeposit != onboarding.Unknown || alice.Handle != "alice" || alice.DisplayName != "Alice" {
		t.Fatalf("alice = %+v", alice)
	}

	legacy, _ := s.Get(ctx, 200)
	if legacy.State != onboarding.StateGreeting {
		t.Fatalf("unknown state loaded as %s, want GREETING", legacy.State)
	}
	if legacy.HasReferralKYC != onboarding.No {
		t.Fatalf("has_kyc = %s", legacy.HasReferralKYC)
	}
}

func TestFileWritesKeyedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	ctx := context.Background()
	s := OpenFile(ctx, path, fixedClock)

	if _, err := s.Upsert(ctx, 42, onboarding.Patch{
		State:               onboarding.Ptr(onboarding.StateWaitingForAdmin),
		Handle:              onboarding.Ptr("bob"),
		HasDeposit:          onboarding.Ptr(onboarding.Yes),
		SubmittedIdentifier: onboarding.Ptr("UID9 (@bob)"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	entry, ok := raw["42"]
	if !ok {
		t.Fatalf("document keys = %v", raw)
	}
	if entry["state"] != "WAITING_FOR_ADMIN" || entry["username"] != "bob" || entry["uid_submission"] != "UID9 (@bob)" {
		t.Fatalf("entry = %v", entry)
	}
	if entry["has_deposit"] != true || entry["has_kyc"] != nil {
		t.Fatalf("tri-states = %v/%v", entry["has_kyc"], entry["has_deposit"])
	}

	reopened := OpenFile(ctx, path, fixedClock)
	rec, _ := reopened.Get(ctx, 42)
	if rec.SubmittedIdentifier != "UID9 (@bob)" || rec.HasDeposit != onboarding.Yes {
		t.Fatalf("reopened = %+v", rec)
	}
}

func TestFileWriteFailureRestoresRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	ctx := context.Background()
	s := OpenFile(ctx, path, fixedClock)

	if _, err := s.Upsert(ctx, 1, onboarding.SetState(onboarding.StateDepositQuestion)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	s.path = filepath.Join(dir, "missing", "users.json")
	_, err := s.Upsert(ctx, 1, onboarding.SetState(onboarding.StateIdentifierSubmission))
	if !onboarding.IsPersistence(err) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	_, err = s.Upsert(ctx, 2, onboarding.SetState(onboarding.StateReferralQuestion))
	if !onboarding.IsPersistence(err) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}

	rec, _ := s.Get(ctx, 1)
	if rec.State != onboarding.StateDepositQuestion {
		t.Fatalf("state after failed write = %s, want DEPOSIT_QUESTION", rec.State)
	}
	if list, _ := s.ListByState(ctx, onboarding.StateReferralQuestion); len(list) != 0 {
		t.Fatalf("failed insert left a record: %+v", list)
	}
}
