package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/m3rciful/onboardbot/core/logger"
	"github.com/m3rciful/onboardbot/onboarding"
)

// fileRecord is the on-disk layout of one user, keyed by the stringified id.
type fileRecord struct {
	State      string              `json:"state"`
	HasKYC     onboarding.TriState `json:"has_kyc"`
	HasDeposit onboarding.TriState `json:"has_deposit"`
	Username   string              `json:"username,omitempty"`
	Name       string              `json:"name,omitempty"`
	Submission string              `json:"uid_submission,omitempty"`
	UpdatedAt  *time.Time          `json:"updated_at,omitempty"`
}

// File keeps all records in memory and rewrites a single JSON document on
// every upsert. The rewrite goes through a temp file and rename, so readers
// never observe a partial document.
type File struct {
	path  string
	clock Clock

	mu      sync.RWMutex
	records map[int64]onboarding.Record
}

// OpenFile loads the JSON document at path. A missing, unreadable or corrupt
// document yields an empty store; the failure is logged and never returned.
func OpenFile(ctx context.Context, path string, clock Clock) *File {
	f := &File{path: path, clock: clock, records: make(map[int64]onboarding.Record)}
	f.load(ctx)
	return f
}

func (f *File) load(ctx context.Context) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info(ctx, "store", "store.load",
			slog.String("status", "ok"),
			slog.String("path", f.path),
			slog.Int("count", 0),
		)
		return
	}
	if err != nil {
		logger.Warn(ctx, "store", "store.load",
			slog.String("status", "fail"),
			slog.String("path", f.path),
			slog.String("err", err.Error()),
		)
		return
	}

	raw := make(map[string]fileRecord)
	if err := json.Unmarshal(data, &raw); err != nil {
		logger.Warn(ctx, "store", "store.load",
			slog.String("status", "fail"),
			slog.String("path", f.path),
			slog.String("err", err.Error()),
		)
		return
	}

	skipped := 0
	for key, fr := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			skipped++
			continue
		}
		f.records[id] = fr.record(id)
	}
	logger.Info(ctx, "store", "store.load",
		slog.String("status", "ok"),
		slog.String("path", f.path),
		slog.Int("count", len(f.records)),
		slog.Int("skipped", skipped),
	)
}

func (fr fileRecord) record(id int64) onboarding.Record {
	rec := onboarding.NewRecord(id)
	if st, ok := onboarding.ParseState(fr.State); ok {
		rec.State = st
	}
	rec.HasReferralKYC = fr.HasKYC
	rec.HasDeposit = fr.HasDeposit
	rec.Handle = fr.Username
	rec.DisplayName = fr.Name
	rec.SubmittedIdentifier = fr.Submission
	if fr.UpdatedAt != nil {
		rec.UpdatedAt = fr.UpdatedAt.UTC()
	}
	return rec
}

func toFileRecord(rec onboarding.Record) fileRecord {
	fr := fileRecord{
		State:      rec.State.String(),
		HasKYC:     rec.HasReferralKYC,
		HasDeposit: rec.HasDeposit,
		Username:   rec.Handle,
		Name:       rec.DisplayName,
		Submission: rec.SubmittedIdentifier,
	}
	if !rec.UpdatedAt.IsZero() {
		ts := rec.UpdatedAt
		fr.UpdatedAt = &ts
	}
	return fr
}

// Get returns the stored record or a default one for unknown users.
func (f *File) Get(_ context.Context, userID int64) (onboarding.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if rec, ok := f.records[userID]; ok {
		return rec, nil
	}
	return onboarding.NewRecord(userID), nil
}

// Upsert applies p and rewrites the document. When the write fails the
// in-memory record is restored and a PersistenceError is returned.
func (f *File) Upsert(ctx context.Context, userID int64, p onboarding.Patch) (onboarding.Record, error) {
	if err := p.Validate(); err != nil {
		return onboarding.Record{}, persistErr("upsert", userID, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, existed := f.records[userID]
	base := prev
	if !existed {
		base = onboarding.NewRecord(userID)
	}
	next := p.Apply(base)
	next.UpdatedAt = f.clock.now()
	f.records[userID] = next

	start := time.Now()
	if err := f.flush(); err != nil {
		if existed {
			f.records[userID] = prev
		} else {
			delete(f.records, userID)
		}
		logger.Error(ctx, "store", "store.upsert",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("path", f.path),
			slog.String("err", err.Error()),
		)
		return onboarding.Record{}, persistErr("upsert", userID, err)
	}
	logger.Debug(ctx, "store", "store.upsert",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("state", next.State.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	return next, nil
}

// flush writes the whole document. Callers hold f.mu.
func (f *File) flush() error {
	raw := make(map[string]fileRecord, len(f.records))
	for id, rec := range f.records {
		raw[strconv.FormatInt(id, 10)] = toFileRecord(rec)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// ListByState returns the records in st ordered by user id.
func (f *File) ListByState(_ context.Context, st onboarding.State) ([]onboarding.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []onboarding.Record
	for _, rec := range f.records {
		if rec.State == st {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

var _ Store = (*File)(nil)
