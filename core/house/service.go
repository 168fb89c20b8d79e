package house

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("house not found")
	ErrNameExists     = errors.New("a house with this name already exists")
	ErrDuplicateEntry = errors.New("certificate already credited")

	errCoordinatorTaken   = "this faculty member already coordinates a house"
	errCoordinatorInvalid = "coordinator must be an active faculty member"
)

type (
	Repository interface {
		CreateHouse(ctx context.Context, h House) (House, error)
		QueryHouses(ctx context.Context) ([]House, error)
		GetHouse(ctx context.Context, id string) (House, error)
		GetHouseByCoordinator(ctx context.Context, coordinatorID string) (House, error)
		UpdateHouse(ctx context.Context, h House, coordinatorID *string) (House, error)
		DeleteHousesByID(ctx context.Context, ids []string) (int, error)

		// AppendLedgerEntry appends atomically, guarded by a uniqueness check
		// on the certificate: a certificate that has already been credited
		// yields ErrDuplicateEntry and no new entry.
		AppendLedgerEntry(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
		// QueryLedger returns entries joined with their originating
		// certificate's category and issue date.
		QueryLedger(ctx context.Context, filter LedgerFilter) ([]LedgerView, error)
	}

	Service interface {
		Create(ctx context.Context, nh NewHouse) (House, error)
		Query(ctx context.Context) ([]House, error)
		GetByID(ctx context.Context, id string) (House, error)
		Update(ctx context.Context, id string, uh UpdateHouse) (House, error)
		Delete(ctx context.Context, ids ...string) error
		HouseTotals(ctx context.Context, houseID string, win Window) (Breakdown, error)
		UserTotals(ctx context.Context, userID string, win Window) (Breakdown, error)
		Leaderboard(ctx context.Context, win Window) ([]Standing, error)
		Detail(ctx context.Context, id string, win Window) (Detail, error)
	}

	service struct {
		repo  Repository
		users user.Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, users user.Repository) Service {
	return &service{repo: repo, users: users}
}

// Detail is a house with its ledger-derived member point totals.
type Detail struct {
	House   House          `json:"house"`
	Points  Breakdown      `json:"points"`
	Members []MemberPoints `json:"members"`
}

type MemberPoints struct {
	UserID string    `json:"user_id"`
	Name   string    `json:"name"`
	Points Breakdown `json:"points"`
}

func (svc *service) Create(ctx context.Context, nh NewHouse) (House, error) {
	if nh.CoordinatorID != "" {
		if err := svc.checkCoordinator(ctx, nh.CoordinatorID, ""); err != nil {
			return House{}, err
		}
	}
	now := time.Now().UTC()
	h := House{
		Name:          nh.Name,
		Color:         nh.Color,
		Description:   nh.Description,
		ImageURL:      nh.ImageURL,
		CoordinatorID: nh.CoordinatorID,
		Social:        nh.Social,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateHouse(ctx, h)
}

func (svc *service) Query(ctx context.Context) ([]House, error) {
	return svc.repo.QueryHouses(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (House, error) {
	return svc.repo.GetHouse(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, uh UpdateHouse) (House, error) {
	if uh.CoordinatorID != nil && *uh.CoordinatorID != "" {
		if err := svc.checkCoordinator(ctx, *uh.CoordinatorID, id); err != nil {
			return House{}, err
		}
	}
	h := House{
		ID:          id,
		Name:        uh.Name,
		Color:       uh.Color,
		Description: uh.Description,
		ImageURL:    uh.ImageURL,
		UpdatedAt:   time.Now().UTC(),
	}
	if uh.Social != nil {
		h.Social = *uh.Social
	}
	return svc.repo.UpdateHouse(ctx, h, uh.CoordinatorID)
}

// checkCoordinator enforces the one-to-one coordinator relation: an active
// faculty member coordinating at most one house at a time.
func (svc *service) checkCoordinator(ctx context.Context, coordinatorID, houseID string) error {
	usr, err := svc.users.GetUser(ctx, user.GetFilter{ID: coordinatorID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "coordinator_id", Error: errCoordinatorInvalid})
		}
		return err
	}
	if !usr.IsFaculty() || (usr.IsActive != nil && !*usr.IsActive) {
		return core.NewValidationError(nil, core.FieldError{Field: "coordinator_id", Error: errCoordinatorInvalid})
	}

	existing, err := svc.repo.GetHouseByCoordinator(ctx, coordinatorID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil
		}
		return err
	}
	if existing.ID != houseID {
		return core.NewValidationError(nil, core.FieldError{Field: "coordinator_id", Error: errCoordinatorTaken})
	}
	return nil
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteHousesByID(ctx, ids)
	return err
}

func (svc *service) HouseTotals(ctx context.Context, houseID string, win Window) (Breakdown, error) {
	if _, err := svc.repo.GetHouse(ctx, houseID); err != nil {
		return Breakdown{}, err
	}
	entries, err := svc.repo.QueryLedger(ctx, LedgerFilter{HouseID: houseID})
	if err != nil {
		return Breakdown{}, err
	}
	return Summarize(entries, win), nil
}

func (svc *service) UserTotals(ctx context.Context, userID string, win Window) (Breakdown, error) {
	entries, err := svc.repo.QueryLedger(ctx, LedgerFilter{UserID: userID})
	if err != nil {
		return Breakdown{}, err
	}
	return Summarize(entries, win), nil
}

func (svc *service) Leaderboard(ctx context.Context, win Window) ([]Standing, error) {
	houses, err := svc.repo.QueryHouses(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := svc.repo.QueryLedger(ctx, LedgerFilter{})
	if err != nil {
		return nil, err
	}

	byHouse := make(map[string][]LedgerView, len(houses))
	for _, e := range entries {
		byHouse[e.HouseID] = append(byHouse[e.HouseID], e)
	}

	standings := make([]Standing, 0, len(houses))
	for _, h := range houses {
		standings = append(standings, Standing{
			House:  h,
			Points: Summarize(byHouse[h.ID], win),
		})
	}
	Rank(standings)
	return standings, nil
}

func (svc *service) Detail(ctx context.Context, id string, win Window) (Detail, error) {
	h, err := svc.repo.GetHouse(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	entries, err := svc.repo.QueryLedger(ctx, LedgerFilter{HouseID: id})
	if err != nil {
		return Detail{}, err
	}
	members, err := svc.users.QueryUsers(ctx, &user.QueryFilter{HouseID: id})
	if err != nil {
		return Detail{}, err
	}

	byUser := make(map[string][]LedgerView)
	for _, e := range entries {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	detail := Detail{
		House:   h,
		Points:  Summarize(entries, win),
		Members: make([]MemberPoints, 0, len(members)),
	}
	for _, m := range members {
		detail.Members = append(detail.Members, MemberPoints{
			UserID: m.ID,
			Name:   m.Name,
			Points: Summarize(byUser[m.ID], win),
		})
	}
	return detail, nil
}
