package event_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/certificate"
	"github.com/meridian-edu/meridian/core/event"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
	dummydb "github.com/meridian-edu/meridian/storage/database/dummy"
)

type loggerMock struct{}

func (loggerMock) Debug(msg string, args ...interface{}) {}
func (loggerMock) Info(msg string, args ...interface{})  {}
func (loggerMock) Warn(msg string, args ...interface{})  {}
func (loggerMock) Error(msg string, args ...interface{}) {}
func (loggerMock) Fatal(msg string, args ...interface{}) {}

type testEnv struct {
	svc    event.Service
	repo   event.Repository
	users  user.Repository
	certs  certificate.Repository
	houses house.Repository
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	env := testEnv{
		repo:   dummydb.NewEventRepository(db),
		users:  dummydb.NewUserRepository(db),
		certs:  dummydb.NewCertificateRepository(db),
		houses: dummydb.NewHouseRepository(db),
	}
	env.svc = event.NewService(env.repo, env.users, env.certs, env.houses, loggerMock{})
	return env
}

func (env testEnv) createUser(t *testing.T, name string, role auth.Role, houseID string) user.User {
	t.Helper()
	active := true
	usr, err := env.users.CreateUser(context.Background(), user.User{
		Name:     name,
		Username: strings.ToLower(name),
		Email:    strings.ToLower(name) + "@test.test",
		Role:     role,
		IsActive: &active,
		HouseID:  houseID,
	})
	require.NoError(t, err)
	return usr
}

func (env testEnv) createHouse(t *testing.T, name string) house.House {
	t.Helper()
	h, err := env.houses.CreateHouse(context.Background(), house.House{Name: name, Color: "#112233"})
	require.NoError(t, err)
	return h
}

// createOpenEvent creates an event whose registration window is open now.
func (env testEnv) createOpenEvent(t *testing.T, name string) event.Event {
	t.Helper()
	now := time.Now().UTC()
	ev, err := env.svc.Create(context.Background(), event.NewEvent{
		Name:        name,
		StartsAt:    now.Add(time.Hour),
		EndsAt:      now.Add(2 * time.Hour),
		RegStartsAt: now.Add(-time.Hour),
		RegEndsAt:   now.Add(time.Hour),
	})
	require.NoError(t, err)
	return ev
}

func TestServiceRegister(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := env.createUser(t, "Ada", auth.RoleStudent, "")
	ev := env.createOpenEvent(t, "Hackathon")

	require.NoError(t, env.svc.Register(ctx, usr, ev.ID))

	// registering twice keeps a single signup
	require.NoError(t, env.svc.Register(ctx, usr, ev.ID))
	regs, err := env.repo.GetRegistrations(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

func TestServiceRegister_windowClosed(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	usr := env.createUser(t, "Ada", auth.RoleStudent, "")

	now := time.Now().UTC()
	ev, err := env.svc.Create(ctx, event.NewEvent{
		Name:        "Hackathon",
		StartsAt:    now.Add(48 * time.Hour),
		EndsAt:      now.Add(50 * time.Hour),
		RegStartsAt: now.Add(24 * time.Hour),
		RegEndsAt:   now.Add(36 * time.Hour),
	})
	require.NoError(t, err)

	err = env.svc.Register(ctx, usr, ev.ID)
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestServiceAllocate(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	h1 := env.createHouse(t, "Phoenix")
	h2 := env.createHouse(t, "Kraken")
	admin := env.createUser(t, "Grace", auth.RoleAdmin, "")
	ada := env.createUser(t, "Ada", auth.RoleStudent, h1.ID)
	eve := env.createUser(t, "Eve", auth.RoleStudent, h2.ID)
	noHouse := env.createUser(t, "Mallory", auth.RoleStudent, "")
	ev := env.createOpenEvent(t, "Hackathon")

	for _, usr := range []user.User{ada, eve, noHouse} {
		require.NoError(t, env.svc.Register(ctx, usr, ev.ID))
	}

	res, err := env.svc.Allocate(ctx, admin, ev.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Credited)
	assert.Equal(t, 1, res.Skipped)

	got, err := env.svc.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, got.Allocated)

	// one approved event certificate per credited participant
	for _, usr := range []user.User{ada, eve} {
		certs, err := env.certs.QueryCertificatesByOwner(ctx, usr.ID)
		require.NoError(t, err)
		require.Len(t, certs, 1)
		assert.Equal(t, certificate.StatusApproved, certs[0].Status)
		assert.Equal(t, certificate.CategoryEvent, certs[0].Category)
		assert.Equal(t, ev.ID, certs[0].EventID)
		assert.Equal(t, 15, certs[0].Points)

		entries, err := env.houses.QueryLedger(ctx, house.LedgerFilter{UserID: usr.ID})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, usr.HouseID, entries[0].HouseID)
		assert.Equal(t, 15, entries[0].Points)
	}
	certs, err := env.certs.QueryCertificatesByOwner(ctx, noHouse.ID)
	require.NoError(t, err)
	assert.Empty(t, certs)

	// a second run is rejected outright
	_, err = env.svc.Allocate(ctx, admin, ev.ID, 15)
	var cErr *core.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, event.ErrAlreadyAllocated, cErr.Err)
}

func TestServiceAllocate_retryConvergence(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	h := env.createHouse(t, "Phoenix")
	admin := env.createUser(t, "Grace", auth.RoleAdmin, "")
	ada := env.createUser(t, "Ada", auth.RoleStudent, h.ID)
	ev := env.createOpenEvent(t, "Hackathon")
	require.NoError(t, env.svc.Register(ctx, ada, ev.ID))

	// simulate a run that claimed the event and died before the flag flip
	require.NoError(t, env.repo.ClaimAllocation(ctx, ev.ID, 15))

	// a retry must repeat the claimed point value
	_, err := env.svc.Allocate(ctx, admin, ev.ID, 20)
	var cErr *core.ConflictError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, event.ErrPointsMismatch, cErr.Err)

	// the matching retry completes the run without double-crediting
	res, err := env.svc.Allocate(ctx, admin, ev.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Credited)

	entries, err := env.houses.QueryLedger(ctx, house.LedgerFilter{HouseID: h.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 15, entries[0].Points)
}

func TestServiceAllocate_validation(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	admin := env.createUser(t, "Grace", auth.RoleAdmin, "")
	student := env.createUser(t, "Ada", auth.RoleStudent, "")
	ev := env.createOpenEvent(t, "Hackathon")

	_, err := env.svc.Allocate(ctx, admin, ev.ID, 0)
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = env.svc.Allocate(ctx, student, ev.ID, 10)
	var aErr *core.AuthorizationError
	assert.ErrorAs(t, err, &aErr)

	_, err = env.svc.Allocate(ctx, admin, "cc0c6a0f-3eb4-4f5c-83d2-494d92b863d7", 10)
	assert.Equal(t, event.ErrNotFound, err)
}
