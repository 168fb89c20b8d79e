package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/event"
)

func Test_eventApi_allocate(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	phoenix := app.createHouse(t, "Phoenix")
	admin := app.createUser(t, "Grace", auth.RoleAdmin, "", "")
	ada := app.createUser(t, "Ada", auth.RoleStudent, phoenix.ID, "")

	now := time.Now().UTC()
	ev, err := app.events.CreateEvent(ctx, event.Event{
		Name:        "Hackathon",
		StartsAt:    now.Add(time.Hour),
		EndsAt:      now.Add(2 * time.Hour),
		RegStartsAt: now.Add(-time.Hour),
		RegEndsAt:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("creating event failed: %v", err)
	}
	if err = app.events.Register(ctx, event.Registration{EventID: ev.ID, UserID: ada.ID, RegisteredAt: now}); err != nil {
		t.Fatalf("registering failed: %v", err)
	}

	path := "/v1/events/" + ev.ID + "/allocate"
	tests := []httpTest{
		{
			name:     "auth required",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "points required",
			token:    app.getToken(t, admin),
			body:     []byte("{}"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "students denied",
			token:    app.getToken(t, ada),
			body:     []byte(`{"points_per_participant": 15}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "allocated",
			token:    app.getToken(t, admin),
			body:     []byte(`{"points_per_participant": 15}`),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, event.AllocationResult{EventID: ev.ID, Credited: 1}),
		},
		{
			name:     "second run conflicts",
			token:    app.getToken(t, admin),
			body:     []byte(`{"points_per_participant": 15}`),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "event already allocated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
