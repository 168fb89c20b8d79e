package pgrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/event"
)

type eventRepository struct {
	exec core.DBExecutor
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(exec core.DBExecutor) *eventRepository {
	return &eventRepository{exec: exec}
}

type eventRow struct {
	ID               string      `db:"id"`
	Name             string      `db:"name"`
	Description      null.String `db:"description"`
	StartsAt         null.Time   `db:"starts_at"`
	EndsAt           null.Time   `db:"ends_at"`
	RegStartsAt      null.Time   `db:"reg_starts_at"`
	RegEndsAt        null.Time   `db:"reg_ends_at"`
	Allocated        bool        `db:"allocated"`
	AllocationPoints null.Int    `db:"allocation_points"`
	CreatedAt        null.Time   `db:"created_at"`
	UpdatedAt        null.Time   `db:"updated_at"`
}

func (repo eventRepository) unrow(row eventRow) event.Event {
	return event.Event{
		ID:               row.ID,
		Name:             row.Name,
		Description:      row.Description.String,
		StartsAt:         row.StartsAt.Time,
		EndsAt:           row.EndsAt.Time,
		RegStartsAt:      row.RegStartsAt.Time,
		RegEndsAt:        row.RegEndsAt.Time,
		Allocated:        row.Allocated,
		AllocationPoints: row.AllocationPoints.Ptr(),
		CreatedAt:        row.CreatedAt.Time,
		UpdatedAt:        row.UpdatedAt.Time,
	}
}

func (repo eventRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return event.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const eventColumns = `id, name, description, starts_at, ends_at, reg_starts_at, reg_ends_at, allocated, allocation_points, created_at, updated_at`

func (repo eventRepository) CreateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	ev.ID = uuid.New().String()
	q := `INSERT INTO event (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.exec.ExecContext(ctx, q,
		ev.ID, ev.Name, null.NewString(ev.Description, ev.Description != ""),
		ev.StartsAt.UTC(), ev.EndsAt.UTC(), ev.RegStartsAt.UTC(), ev.RegEndsAt.UTC(),
		ev.Allocated, null.IntFromPtr(ev.AllocationPoints), ev.CreatedAt.UTC(), ev.UpdatedAt.UTC())
	if err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	return ev, nil
}

func (repo eventRepository) QueryEvents(ctx context.Context) ([]event.Event, error) {
	var rows []eventRow
	q := `SELECT ` + eventColumns + ` FROM event ORDER BY starts_at DESC`
	if err := repo.exec.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, repo.unrow(row))
	}
	return events, nil
}

func (repo eventRepository) GetEvent(ctx context.Context, id string) (event.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return event.Event{}, event.ErrNotFound
	}
	var row eventRow
	q := `SELECT ` + eventColumns + ` FROM event WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return event.Event{}, repo.trapNoRowsErr(err, "finding event")
	}
	return repo.unrow(row), nil
}

func (repo eventRepository) GetRegistrations(ctx context.Context, eventID string) ([]event.Registration, error) {
	var regs []event.Registration
	q := `SELECT event_id, user_id, registered_at FROM event_registration WHERE event_id = $1 ORDER BY registered_at`
	if err := repo.exec.SelectContext(ctx, &regs, q, eventID); err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}
	return regs, nil
}

func (repo eventRepository) Register(ctx context.Context, reg event.Registration) error {
	q := `INSERT INTO event_registration (event_id, user_id, registered_at)
		VALUES ($1, $2, $3) ON CONFLICT (event_id, user_id) DO NOTHING`
	if _, err := repo.exec.ExecContext(ctx, q, reg.EventID, reg.UserID, reg.RegisteredAt.UTC()); err != nil {
		return errors.Wrap(err, "inserting registration")
	}
	return nil
}

// ClaimAllocation pins the per-participant point value with a conditional
// write: it only succeeds while the event is unallocated and the value is
// unset or already equal. On failure the event is re-read to report which
// condition lost.
func (repo eventRepository) ClaimAllocation(ctx context.Context, eventID string, points int) error {
	q := `UPDATE event SET allocation_points = $2
		WHERE id = $1 AND allocated = false
		AND (allocation_points IS NULL OR allocation_points = $2)`
	res, err := repo.exec.ExecContext(ctx, q, eventID, points)
	if err != nil {
		return errors.Wrap(err, "claiming allocation")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt > 0 {
		return nil
	}

	ev, err := repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.Allocated {
		return event.ErrAlreadyAllocated
	}
	return event.ErrPointsMismatch
}

func (repo eventRepository) FinishAllocation(ctx context.Context, eventID string) (bool, error) {
	res, err := repo.exec.ExecContext(ctx, `UPDATE event SET allocated = true WHERE id = $1 AND allocated = false`, eventID)
	if err != nil {
		return false, errors.Wrap(err, "finishing allocation")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "finishing allocation")
	}
	return cnt > 0, nil
}
