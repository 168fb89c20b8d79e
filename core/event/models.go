package event

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-edu/meridian/core"
)

// Event is a time-boxed activity with optional point allocation.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	RegStartsAt time.Time `json:"reg_starts_at"`
	RegEndsAt   time.Time `json:"reg_ends_at"`

	// Allocated transitions false -> true exactly once; AllocationPoints is
	// recorded when an allocation run claims the event and pins the
	// per-participant value any retry must repeat.
	Allocated        bool      `json:"allocated"`
	AllocationPoints *int      `json:"allocation_points,omitempty"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

// Registration records one participant signup, ordered by time.
type Registration struct {
	EventID      string    `json:"event_id" db:"event_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"` // UTC
}

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	RegStartsAt time.Time `json:"reg_starts_at" validate:"required"`
	RegEndsAt   time.Time `json:"reg_ends_at" validate:"required,gtfield=RegStartsAt"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Name = core.CleanString(ne.Name)
	ne.Description = core.CleanString(ne.Description)
	return validate.Struct(ne)
}

// AllocateInput carries the admin-chosen per-participant point value.
type AllocateInput struct {
	PointsPerParticipant int `json:"points_per_participant" validate:"required,min=1"`
}

func (ai *AllocateInput) Validate(validate *validator.Validate) error {
	return validate.Struct(ai)
}

// AllocationResult reports the outcome of one allocation run.
type AllocationResult struct {
	EventID  string `json:"event_id"`
	Credited int    `json:"credited"` // participants credited (incl. prior runs)
	Skipped  int    `json:"skipped"`  // participants with no house
}
