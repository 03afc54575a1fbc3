// Package session implements the vehicle<->meter association that
// bridges the AC and DC streams for the analytics aggregator. Queries
// follow the parameterized-pgx, pgx.ErrNoRows-to-typed-error shape of
// zdex-EVCPMSGO's SessionsRepo.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rahullalw/smart-ev-analytics/internal/domain"
)

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// StartSession inserts an active row for (vehicleID, meterID). It
// fails with domain.ErrConflict if the vehicle already has an active
// session — enforced by the database's partial unique index, not a
// read-then-write race in application code.
func (s *Service) StartSession(ctx context.Context, vehicleID, meterID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vehicle_sessions (vehicle_id, meter_id, mapped_at, active)
		VALUES ($1, $2, $3, true)
	`, vehicleID, meterID, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: vehicle %s already has an active session", domain.ErrConflict, vehicleID)
		}
		return fmt.Errorf("session: start: %w", err)
	}
	return nil
}

// EndSession sets active=false and unmapped_at=now on the vehicle's
// active row. Fails with domain.ErrNotFound if none exists.
func (s *Service) EndSession(ctx context.Context, vehicleID uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE vehicle_sessions SET active = false, unmapped_at = $2
		WHERE vehicle_id = $1 AND active
	`, vehicleID, now)
	if err != nil {
		return fmt.Errorf("session: end: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: vehicle %s has no active session", domain.ErrNotFound, vehicleID)
	}
	return nil
}

// LookupActiveSession returns the active session for vehicleID, or
// nil if none exists.
func (s *Service) LookupActiveSession(ctx context.Context, vehicleID uuid.UUID) (*domain.Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT vehicle_id, meter_id, mapped_at, unmapped_at, active
		FROM vehicle_sessions
		WHERE vehicle_id = $1 AND active
	`, vehicleID)

	var sess domain.Session
	var vID, mID uuid.UUID
	if err := row.Scan(&vID, &mID, &sess.MappedAt, &sess.UnmappedAt, &sess.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("session: lookup active: %w", err)
	}
	sess.VehicleID = vID.String()
	sess.MeterID = mID.String()
	return &sess, nil
}

// BulkStartSessions starts a session for every (vehicleID, meterID)
// pair. It is not atomic across pairs: one conflicting pair does not
// abort the rest, and per-pair errors are returned alongside the count
// that succeeded.
func (s *Service) BulkStartSessions(ctx context.Context, pairs []Pair) (started int, errs []error) {
	for _, p := range pairs {
		if err := s.StartSession(ctx, p.VehicleID, p.MeterID); err != nil {
			errs = append(errs, err)
			continue
		}
		started++
	}
	return started, errs
}

// BulkEndSessions ends the active session for each vehicle id,
// best-effort: it reports the count updated without failing on
// vehicles that have no active session.
func (s *Service) BulkEndSessions(ctx context.Context, vehicleIDs []uuid.UUID) (ended int, err error) {
	if len(vehicleIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE vehicle_sessions SET active = false, unmapped_at = $2
		WHERE vehicle_id = ANY($1) AND active
	`, vehicleIDs, now)
	if err != nil {
		return 0, fmt.Errorf("session: bulk end: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Pair is one (vehicle, meter) association for BulkStartSessions.
type Pair struct {
	VehicleID uuid.UUID
	MeterID   uuid.UUID
}
