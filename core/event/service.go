package event

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/certificate"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("event not found")
	ErrAlreadyAllocated = errors.New("event already allocated")
	ErrPointsMismatch   = errors.New("allocation retry must repeat the original point value")
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event) (Event, error)
		QueryEvents(ctx context.Context) ([]Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		GetRegistrations(ctx context.Context, eventID string) ([]Registration, error)
		Register(ctx context.Context, reg Registration) error

		// ClaimAllocation conditionally records the per-participant point
		// value: it succeeds only while the event is unallocated and the
		// value is unset or identical (pinning retries to the original).
		ClaimAllocation(ctx context.Context, eventID string, points int) error
		// FinishAllocation flips the allocated flag false -> true with a
		// conditional write; flipped reports whether this call won the flip.
		FinishAllocation(ctx context.Context, eventID string) (flipped bool, err error)
	}

	Service interface {
		Create(ctx context.Context, ne NewEvent) (Event, error)
		Query(ctx context.Context) ([]Event, error)
		GetByID(ctx context.Context, id string) (Event, error)
		Register(ctx context.Context, usr user.User, eventID string) error
		Allocate(ctx context.Context, actor user.User, eventID string, pointsPerParticipant int) (AllocationResult, error)
	}

	service struct {
		repo   Repository
		users  user.Repository
		certs  certificate.Repository
		houses house.Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	users user.Repository,
	certs certificate.Repository,
	houses house.Repository,
	logger core.Logger,
) Service {
	return &service{
		repo:   repo,
		users:  users,
		certs:  certs,
		houses: houses,
		logger: logger,
	}
}

func (svc *service) Create(ctx context.Context, ne NewEvent) (Event, error) {
	now := time.Now().UTC()
	ev := Event{
		Name:        ne.Name,
		Description: ne.Description,
		StartsAt:    ne.StartsAt,
		EndsAt:      ne.EndsAt,
		RegStartsAt: ne.RegStartsAt,
		RegEndsAt:   ne.RegEndsAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateEvent(ctx, ev)
}

func (svc *service) Query(ctx context.Context) ([]Event, error) {
	return svc.repo.QueryEvents(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (Event, error) {
	return svc.repo.GetEvent(ctx, id)
}

func (svc *service) Register(ctx context.Context, usr user.User, eventID string) error {
	ev, err := svc.repo.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if now.Before(ev.RegStartsAt) || now.After(ev.RegEndsAt) {
		return core.NewValidationError(errors.New("registration window closed"))
	}
	return svc.repo.Register(ctx, Registration{EventID: ev.ID, UserID: usr.ID, RegisteredAt: now})
}

// Allocate fans an event out into one approved certificate and one ledger
// entry per registered participant with a house. Participants without a
// house are skipped. The event's allocated flag flips exactly once, after
// every synthesized record has been persisted; the fan-out itself is
// idempotent per (event, participant) so a retry after a partial failure
// never double-credits.
func (svc *service) Allocate(ctx context.Context, actor user.User, eventID string, pointsPerParticipant int) (AllocationResult, error) {
	if err := auth.Decide(actor.Actor(), auth.Target{}, auth.OpAllocateEvent); err != nil {
		svc.logger.Warn(fmt.Sprintf("authorization denied: actor=%s op=%s", actor.ID, auth.OpAllocateEvent), actor)
		return AllocationResult{}, err
	}
	if pointsPerParticipant <= 0 {
		return AllocationResult{}, core.NewValidationError(nil, core.FieldError{
			Field: "points_per_participant", Error: "must be a positive point value",
		})
	}

	// claim the event for this point value before touching any other record
	if err := svc.repo.ClaimAllocation(ctx, eventID, pointsPerParticipant); err != nil {
		switch errors.Cause(err) {
		case ErrAlreadyAllocated, ErrPointsMismatch:
			return AllocationResult{}, core.NewConflictError(err)
		case ErrNotFound:
			return AllocationResult{}, err
		}
		return AllocationResult{}, core.NewStorageError(errors.Wrap(err, "claiming allocation"))
	}

	ev, err := svc.repo.GetEvent(ctx, eventID)
	if err != nil {
		return AllocationResult{}, err
	}

	regs, err := svc.repo.GetRegistrations(ctx, eventID)
	if err != nil {
		return AllocationResult{}, core.NewStorageError(errors.Wrap(err, "loading registrations"))
	}

	// one batch lookup: participant -> house
	ids := make([]string, 0, len(regs))
	for _, reg := range regs {
		ids = append(ids, reg.UserID)
	}
	participants, err := svc.users.GetUsersByID(ctx, ids)
	if err != nil {
		return AllocationResult{}, core.NewStorageError(errors.Wrap(err, "loading participants"))
	}
	houseByUser := make(map[string]string, len(participants))
	for _, p := range participants {
		houseByUser[p.ID] = p.HouseID
	}

	res := AllocationResult{EventID: eventID}
	for _, reg := range regs {
		houseID, ok := houseByUser[reg.UserID]
		if !ok || houseID == "" {
			svc.logger.Info(fmt.Sprintf("event %s: participant %s has no house; skipped", eventID, reg.UserID))
			res.Skipped++
			continue
		}

		now := time.Now().UTC()
		cert := certificate.Certificate{
			OwnerID:      reg.UserID,
			Name:         fmt.Sprintf("Event Participation - %s", ev.Name),
			Organization: "Meridian",
			IssueMonth:   int(now.Month()),
			IssueYear:    now.Year(),
			Category:     certificate.CategoryEvent,
			Level:        certificate.LevelBeginner,
			EvidenceKind: certificate.EvidencePrint,
			Status:       certificate.StatusApproved,
			Points:       pointsPerParticipant,
			EventID:      eventID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		cert, _, err := svc.certs.CreateEventCertificate(ctx, cert)
		if err != nil {
			return res, core.NewStorageError(errors.Wrapf(err, "event %s: synthesizing certificate for participant %s", eventID, reg.UserID))
		}

		entry := house.LedgerEntry{
			HouseID:       houseID,
			CertificateID: cert.ID,
			UserID:        reg.UserID,
			Points:        pointsPerParticipant,
			CreatedAt:     now,
		}
		if _, err := svc.houses.AppendLedgerEntry(ctx, entry); err != nil {
			if errors.Cause(err) != house.ErrDuplicateEntry {
				return res, core.NewStorageError(errors.Wrapf(err, "event %s: crediting participant %s", eventID, reg.UserID))
			}
		}
		res.Credited++
	}

	// commit point: flip the flag only after every record persisted
	flipped, err := svc.repo.FinishAllocation(ctx, eventID)
	if err != nil {
		return res, core.NewStorageError(errors.Wrap(err, "flipping allocated flag"))
	}
	if !flipped {
		// a concurrent allocator won the flip; everything it and we wrote is
		// identical thanks to the idempotency guards
		return res, core.NewConflictError(ErrAlreadyAllocated)
	}
	return res, nil
}
