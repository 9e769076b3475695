package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coredatabase "github.com/m3rciful/onboardbot/core/database"
	"github.com/m3rciful/onboardbot/core/logger"
	"github.com/m3rciful/onboardbot/onboarding"
	"github.com/m3rciful/onboardbot/onboarding/keylock"
	"github.com/m3rciful/onboardbot/onboarding/store/migrations"
)

// Migrations is the embedded schema for the SQL store.
var Migrations = coredatabase.Migrations{FS: migrations.FS, Dir: "."}

const userColumns = `user_id, state, display_name, handle, has_referral_kyc, has_deposit, submitted_identifier, updated_at`

type userRow struct {
	UserID              int64        `db:"user_id"`
	State               string       `db:"state"`
	DisplayName         string       `db:"display_name"`
	Handle              string       `db:"handle"`
	HasReferralKYC      sql.NullBool `db:"has_referral_kyc"`
	HasDeposit          sql.NullBool `db:"has_deposit"`
	SubmittedIdentifier string       `db:"submitted_identifier"`
	UpdatedAt           int64        `db:"updated_at"`
}

// SQL stores records in the onboarding_users table of a PostgreSQL or
// SQLite database opened through sqlx.
type SQL struct {
	db    *sqlx.DB
	clock Clock
	locks *keylock.Map
}

// NewSQL wraps an open, migrated database.
func NewSQL(db *sqlx.DB, clock Clock) *SQL {
	return &SQL{db: db, clock: clock, locks: keylock.New()}
}

// Get loads the record for userID or returns a default one.
func (s *SQL) Get(ctx context.Context, userID int64) (onboarding.Record, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+userColumns+` FROM onboarding_users WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return onboarding.NewRecord(userID), nil
	}
	if err != nil {
		return onboarding.Record{}, persistErr("get", userID, err)
	}
	return s.toRecord(ctx, row), nil
}

// Upsert reads, merges and writes the record inside one transaction.
// Upserts for the same user are serialized in process.
func (s *SQL) Upsert(ctx context.Context, userID int64, p onboarding.Patch) (onboarding.Record, error) {
	if err := p.Validate(); err != nil {
		return onboarding.Record{}, persistErr("upsert", userID, err)
	}
	unlock := s.locks.Lock(userID)
	defer unlock()

	start := time.Now()
	rec, err := s.upsertTx(ctx, userID, p)
	if err != nil {
		logger.Error(ctx, "store", "store.upsert",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("driver", s.db.DriverName()),
			slog.String("err", err.Error()),
		)
		return onboarding.Record{}, persistErr("upsert", userID, err)
	}
	logger.Debug(ctx, "store", "store.upsert",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("state", rec.State.String()),
		slog.Duration("duration", logger.Took(start)),
	)
	return rec, nil
}

func (s *SQL) upsertTx(ctx context.Context, userID int64, p onboarding.Patch) (rec onboarding.Record, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return rec, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row userRow
	err = tx.GetContext(ctx, &row,
		tx.Rebind(`SELECT `+userColumns+` FROM onboarding_users WHERE user_id = ?`), userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		rec = onboarding.NewRecord(userID)
	case err != nil:
		return rec, fmt.Errorf("select: %w", err)
	default:
		rec = s.toRecord(ctx, row)
	}

	rec = p.Apply(rec)
	rec.UpdatedAt = s.clock.now()
	out := fromRecord(rec)

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO onboarding_users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
		    state = excluded.state,
		    display_name = excluded.display_name,
		    handle = excluded.handle,
		    has_referral_kyc = excluded.has_referral_kyc,
		    has_deposit = excluded.has_deposit,
		    submitted_identifier = excluded.submitted_identifier,
		    updated_at = excluded.updated_at`),
		out.UserID,
		out.State,
		out.DisplayName,
		out.Handle,
		out.HasReferralKYC,
		out.HasDeposit,
		out.SubmittedIdentifier,
		out.UpdatedAt,
	)
	if err != nil {
		return rec, fmt.Errorf("upsert: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return rec, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// ListByState returns the records in st ordered by user id.
func (s *SQL) ListByState(ctx context.Context, st onboarding.State) ([]onboarding.Record, error) {
	var rows []userRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`SELECT `+userColumns+` FROM onboarding_users WHERE state = ? ORDER BY user_id`), st.String())
	if err != nil {
		return nil, fmt.Errorf("list by state %s: %w", st, err)
	}
	out := make([]onboarding.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.toRecord(ctx, row))
	}
	return out, nil
}

func (s *SQL) toRecord(ctx context.Context, row userRow) onboarding.Record {
	rec := onboarding.NewRecord(row.UserID)
	if st, ok := onboarding.ParseState(row.State); ok {
		rec.State = st
	} else {
		logger.Warn(ctx, "store", "store.decode",
			slog.String("status", "fail"),
			slog.Int64("user_id", row.UserID),
			slog.String("state", row.State),
		)
	}
	rec.DisplayName = row.DisplayName
	rec.Handle = row.Handle
	rec.HasReferralKYC = triState(row.HasReferralKYC)
	rec.HasDeposit = triState(row.HasDeposit)
	rec.SubmittedIdentifier = row.SubmittedIdentifier
	if row.UpdatedAt > 0 {
		rec.UpdatedAt = time.UnixMilli(row.UpdatedAt).UTC()
	}
	return rec
}

func fromRecord(rec onboarding.Record) userRow {
	row := userRow{
		UserID:              rec.UserID,
		State:               rec.State.String(),
		DisplayName:         rec.DisplayName,
		Handle:              rec.Handle,
		HasReferralKYC:      nullBool(rec.HasReferralKYC),
		HasDeposit:          nullBool(rec.HasDeposit),
		SubmittedIdentifier: rec.SubmittedIdentifier,
	}
	if !rec.UpdatedAt.IsZero() {
		row.UpdatedAt = rec.UpdatedAt.UTC().UnixMilli()
	}
	return row
}

func nullBool(t onboarding.TriState) sql.NullBool {
	if b := t.Bool(); b != nil {
		return sql.NullBool{Bool: *b, Valid: true}
	}
	return sql.NullBool{}
}

func triState(n sql.NullBool) onboarding.TriState {
	if !n.Valid {
		return onboarding.Unknown
	}
	return onboarding.TriStateOf(&n.Bool)
}

var _ Store = (*SQL)(nil)
