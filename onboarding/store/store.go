// Package store persists onboarding records. Every implementation returns a
// fresh default record for unknown users without writing it, merges patches
// atomically and serializes concurrent upserts for the same user.
package store

import (
	"context"
	"time"

	"github.com/m3rciful/onboardbot/onboarding"
)

// Store is the durable mapping from user identity to onboarding record.
type Store interface {
	// Get returns the stored record or onboarding.NewRecord for unknown users.
	Get(ctx context.Context, userID int64) (onboarding.Record, error)
	// Upsert merges p into the record and returns it once durable.
	// Failures are reported as *onboarding.PersistenceError.
	Upsert(ctx context.Context, userID int64, p onboarding.Patch) (onboarding.Record, error)
	// ListByState returns a snapshot of the records currently in st.
	ListByState(ctx context.Context, st onboarding.State) ([]onboarding.Record, error)
}

// Clock supplies write timestamps.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

func persistErr(op string, userID int64, err error) error {
	return &onboarding.PersistenceError{Op: op, UserID: userID, Err: err}
}
