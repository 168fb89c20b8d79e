package house_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
	dummydb "github.com/meridian-edu/meridian/storage/database/dummy"
)

type testEnv struct {
	svc   house.Service
	users user.Repository
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	env := testEnv{users: dummydb.NewUserRepository(db)}
	env.svc = house.NewService(dummydb.NewHouseRepository(db), env.users)
	return env
}

func (env testEnv) createUser(t *testing.T, name string, role auth.Role, isActive bool) user.User {
	t.Helper()
	usr, err := env.users.CreateUser(context.Background(), user.User{
		Name:     name,
		Username: strings.ToLower(name),
		Email:    strings.ToLower(name) + "@test.test",
		Role:     role,
		IsActive: &isActive,
	})
	require.NoError(t, err)
	return usr
}

func TestServiceCreate_coordinator(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	faculty := env.createUser(t, "Alan", auth.RoleFaculty, true)
	student := env.createUser(t, "Ada", auth.RoleStudent, true)
	inactive := env.createUser(t, "Rip", auth.RoleFaculty, false)

	tests := []struct {
		name          string
		coordinatorID string
		wantErr       bool
	}{
		{name: "active faculty", coordinatorID: faculty.ID},
		{name: "no coordinator"},
		{name: "student rejected", coordinatorID: student.ID, wantErr: true},
		{name: "inactive faculty rejected", coordinatorID: inactive.ID, wantErr: true},
		{name: "unknown user rejected", coordinatorID: "83e02827-3323-46a8-89ae-74a42cdd0bbf", wantErr: true},
		// faculty.ID already coordinates the house created in the first case
		{name: "taken coordinator rejected", coordinatorID: faculty.ID, wantErr: true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, house.NewHouse{
				Name:          "House " + string(rune('A'+i)),
				Color:         "#112233",
				CoordinatorID: tt.coordinatorID,
			})
			if tt.wantErr {
				var vErr *core.ValidationError
				assert.ErrorAs(t, err, &vErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServiceUpdate_coordinator(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	faculty := env.createUser(t, "Alan", auth.RoleFaculty, true)
	other := env.createUser(t, "Edsger", auth.RoleFaculty, true)

	h, err := env.svc.Create(ctx, house.NewHouse{Name: "Phoenix", Color: "#112233", CoordinatorID: faculty.ID})
	require.NoError(t, err)
	h2, err := env.svc.Create(ctx, house.NewHouse{Name: "Kraken", Color: "#445566"})
	require.NoError(t, err)

	// re-assigning a house its own coordinator is fine
	_, err = env.svc.Update(ctx, h.ID, house.UpdateHouse{CoordinatorID: &faculty.ID})
	assert.NoError(t, err)

	// another house cannot claim a taken coordinator
	_, err = env.svc.Update(ctx, h2.ID, house.UpdateHouse{CoordinatorID: &faculty.ID})
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	got, err := env.svc.Update(ctx, h2.ID, house.UpdateHouse{CoordinatorID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, other.ID, got.CoordinatorID)
}
