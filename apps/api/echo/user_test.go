package echoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/meridian-edu/meridian/core/auth"
)

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)
	usr := app.createUser(t, "Ada", auth.RoleStudent, "", "LePassword")
	deactivated := app.createUser(t, "Eve", auth.RoleStudent, "", "LePassword")
	inactive := false
	if _, err := app.users.UpdateUser(context.Background(), deactivated, &inactive, nil); err != nil {
		t.Fatalf("deactivating user failed: %v", err)
	}

	tests := []httpTest{
		{
			name:     "empty body",
			body:     []byte("{}"),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown user",
			body:     []byte(`{"username": "ghost", "password": "LePassword"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     []byte(`{"username": "ada", "password": "nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			body:     []byte(`{"username": "eve", "password": "LePassword"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "login by username",
			body:     []byte(`{"username": "ada", "password": "LePassword"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "login by email",
			body:     []byte(`{"username": "` + usr.Email + `", "password": "LePassword"}`),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshalling LoginResponse failed: %v", err)
				}
				if resp.Token == "" {
					t.Error("failed! empty token")
				}
			}
		})
	}
}

func Test_userApi_query(t *testing.T) {
	app := newTestApp(t)
	admin := app.createUser(t, "Grace", auth.RoleAdmin, "", "")
	faculty := app.createUser(t, "Alan", auth.RoleFaculty, "", "")
	student := app.createUser(t, "Ada", auth.RoleStudent, "", "")

	tests := []httpTest{
		{
			name:     "auth required",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "students denied",
			token:    app.getToken(t, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "faculty see all users",
			token:    app.getToken(t, faculty),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{admin, faculty, student}),
		},
		{
			name:     "admins see all users",
			token:    app.getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{admin, faculty, student}),
		},
		{
			name:     "search filter",
			path:     "/v1/users?search=ada",
			token:    app.getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{student}),
		},
		{
			name:     "role filter",
			path:     "/v1/users?role=faculty",
			token:    app.getToken(t, admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []interface{}{faculty}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "/v1/users"
			}
			req, rec := newAuthRequest(http.MethodGet, path, tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_resetPasswordFor(t *testing.T) {
	app := newTestApp(t)
	student := app.createUser(t, "Ada", auth.RoleStudent, "", "")
	peer := app.createUser(t, "Eve", auth.RoleStudent, "", "")
	faculty := app.createUser(t, "Alan", auth.RoleFaculty, "", "")
	helper := app.createUser(t, "Mary", auth.RoleFaculty, "", "")
	helper.Capabilities = []auth.Capability{auth.CapResetStudentPassword}
	if _, err := app.users.UpdateUser(context.Background(), helper, nil, nil); err != nil {
		t.Fatalf("granting capability failed: %v", err)
	}

	tests := []httpTest{
		{
			name:     "auth required",
			path:     "/v1/users/" + student.ID + "/password-reset",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "student may not reset a peer",
			path:     "/v1/users/" + peer.ID + "/password-reset",
			token:    app.getToken(t, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "faculty without capability denied",
			path:     "/v1/users/" + student.ID + "/password-reset",
			token:    app.getToken(t, faculty),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "faculty with capability resets student",
			path:     "/v1/users/" + student.ID + "/password-reset",
			token:    app.getToken(t, helper),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Password reset instructions have been sent."}),
		},
		{
			name:     "unknown user",
			path:     "/v1/users/e0a4fa12-9d46-4b27-8d6a-9f6d8f5cb6b2/password-reset",
			token:    app.getToken(t, helper),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, tt.token)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_update(t *testing.T) {
	app := newTestApp(t)
	admin := app.createUser(t, "Grace", auth.RoleAdmin, "", "")
	student := app.createUser(t, "Ada", auth.RoleStudent, "", "")
	peer := app.createUser(t, "Eve", auth.RoleStudent, "", "")

	tests := []httpTest{
		{
			name:     "self update allowed",
			path:     "/v1/users/" + student.ID,
			token:    app.getToken(t, student),
			body:     []byte(`{"name": "Ada L"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "self role escalation denied",
			path:     "/v1/users/" + student.ID,
			token:    app.getToken(t, student),
			body:     []byte(`{"role": "admin"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "peer update denied",
			path:     "/v1/users/" + peer.ID,
			token:    app.getToken(t, student),
			wantCode: http.StatusForbidden,
			body:     []byte(`{"name": "Mallory"}`),
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "admin can change role",
			path:     "/v1/users/" + peer.ID,
			token:    app.getToken(t, admin),
			body:     []byte(`{"role": "faculty"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown user",
			path:     "/v1/users/e0a4fa12-9d46-4b27-8d6a-9f6d8f5cb6b2",
			token:    app.getToken(t, admin),
			body:     []byte(`{"name": "Nobody"}`),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPut, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
