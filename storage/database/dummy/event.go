package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-edu/meridian/core/event"
)

type eventRepository struct {
	db   *eventTable
	regs *registrationTable
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) event.Repository {
	return &eventRepository{db: db.event, regs: db.registration}
}

func (repo *eventRepository) CreateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev.ID = uuid.New().String()
	repo.db.table[ev.ID] = &ev
	return ev, nil
}

func (repo *eventRepository) QueryEvents(ctx context.Context) ([]event.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	events := make([]event.Event, 0, len(repo.db.table))
	for _, ev := range repo.db.table {
		events = append(events, *ev)
	}
	return events, nil
}

func (repo *eventRepository) GetEvent(ctx context.Context, id string) (event.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ev, ok := repo.db.table[id]; ok {
		return *ev, nil
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) GetRegistrations(ctx context.Context, eventID string) ([]event.Registration, error) {
	repo.regs.RLock()
	defer repo.regs.RUnlock()

	res := make([]event.Registration, 0)
	for _, reg := range repo.regs.rows {
		if reg.EventID == eventID {
			res = append(res, reg)
		}
	}
	return res, nil
}

func (repo *eventRepository) Register(ctx context.Context, reg event.Registration) error {
	repo.regs.Lock()
	defer repo.regs.Unlock()

	for _, existing := range repo.regs.rows {
		if existing.EventID == reg.EventID && existing.UserID == reg.UserID {
			return nil
		}
	}
	repo.regs.rows = append(repo.regs.rows, reg)
	return nil
}

func (repo *eventRepository) ClaimAllocation(ctx context.Context, eventID string, points int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev, ok := repo.db.table[eventID]
	if !ok {
		return event.ErrNotFound
	}
	if ev.Allocated {
		return event.ErrAlreadyAllocated
	}
	if ev.AllocationPoints != nil && *ev.AllocationPoints != points {
		return event.ErrPointsMismatch
	}
	ev.AllocationPoints = &points
	return nil
}

func (repo *eventRepository) FinishAllocation(ctx context.Context, eventID string) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev, ok := repo.db.table[eventID]
	if !ok {
		return false, event.ErrNotFound
	}
	if ev.Allocated {
		return false, nil
	}
	ev.Allocated = true
	return true, nil
}
