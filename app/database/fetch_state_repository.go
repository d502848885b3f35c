package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const fetchStateTable = "fetch_state"

var _ FetchStateStore = (*FetchStateRepository)(nil)

// FetchStateRepository owns the fetch_state table. Rows are created by the
// first claim of a guid and never deleted.
type FetchStateRepository struct {
	db *DB
}

func NewFetchStateRepository(db *DB) *FetchStateRepository {
	return &FetchStateRepository{db: db}
}

// Get returns nil when the guid was never attempted.
func (r *FetchStateRepository) Get(ctx context.Context, guid string) (*FetchState, error) {
	sb := r.db.flavor.NewSelectBuilder()
	sb.Select("guid", "failed_fetch_count", "last_fetch_attempt", "disabled").
		From(fetchStateTable).
		Where(sb.Equal("guid", guid))

	query, args := sb.Build()

	var state FetchState
	var lastAttempt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&state.GUID, &state.FailedFetchCount, &lastAttempt, &state.Disabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fetch state: %w", err)
	}

	state.LastFetchAttempt = nullTimePtr(lastAttempt)
	return &state, nil
}

// Claim records an attempt at now if the guid is still eligible, that is
// enabled and not attempted since cutoff. It reports whether this caller won
// the attempt; a concurrent claim inside the window makes it return false.
func (r *FetchStateRepository) Claim(ctx context.Context, guid string, now, cutoff time.Time) (bool, error) {
	ib := r.db.flavor.NewInsertBuilder()
	ib.InsertInto(fetchStateTable).
		Cols("guid", "failed_fetch_count", "last_fetch_attempt", "disabled").
		Values(guid, 0, now.UTC(), false)
	ib.SQL("ON CONFLICT (guid) DO UPDATE SET last_fetch_attempt = excluded.last_fetch_attempt")
	ib.SQL("WHERE fetch_state.disabled = false AND (fetch_state.last_fetch_attempt IS NULL OR fetch_state.last_fetch_attempt < " + ib.Var(cutoff.UTC()) + ")")

	query, args := ib.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to claim fetch attempt: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}

	return n == 1, nil
}

// RecordSuccess resets the failure counter.
func (r *FetchStateRepository) RecordSuccess(ctx context.Context, guid string, at time.Time) error {
	ib := r.db.flavor.NewInsertBuilder()
	ib.InsertInto(fetchStateTable).
		Cols("guid", "failed_fetch_count", "last_fetch_attempt", "disabled").
		Values(guid, 0, at.UTC(), false)
	ib.SQL("ON CONFLICT (guid) DO UPDATE SET failed_fetch_count = 0")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record fetch success: %w", err)
	}

	return nil
}

// RecordFailure increments the failure counter and returns its new value.
func (r *FetchStateRepository) RecordFailure(ctx context.Context, guid string, at time.Time) (int, error) {
	ib := r.db.flavor.NewInsertBuilder()
	ib.InsertInto(fetchStateTable).
		Cols("guid", "failed_fetch_count", "last_fetch_attempt", "disabled").
		Values(guid, 1, at.UTC(), false)
	ib.SQL("ON CONFLICT (guid) DO UPDATE SET failed_fetch_count = fetch_state.failed_fetch_count + 1")
	ib.SQL("RETURNING failed_fetch_count")

	query, args := ib.Build()

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to record fetch failure: %w", err)
	}

	return count, nil
}

// Disable stops all further fetch attempts for guid.
func (r *FetchStateRepository) Disable(ctx context.Context, guid string) error {
	ub := r.db.flavor.NewUpdateBuilder()
	ub.Update(fetchStateTable).
		Set(ub.Assign("disabled", true)).
		Where(ub.Equal("guid", guid))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to disable fetch state: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("fetch state for %s not found", guid)
	}

	return nil
}

func (r *FetchStateRepository) Stats(ctx context.Context) (FetchStats, error) {
	sb := r.db.flavor.NewSelectBuilder()
	sb.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN failed_fetch_count > 0 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN disabled THEN 1 ELSE 0 END), 0)",
	).From(fetchStateTable)

	query, args := sb.Build()

	var stats FetchStats
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Tracked, &stats.Failing, &stats.Disabled); err != nil {
		return FetchStats{}, fmt.Errorf("failed to get fetch stats: %w", err)
	}

	return stats, nil
}
