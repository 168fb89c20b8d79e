package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/certificate"
	"github.com/meridian-edu/meridian/core/event"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
	dummydb "github.com/meridian-edu/meridian/storage/database/dummy"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type loggerMock struct{}

func (loggerMock) Debug(msg string, args ...interface{}) {}
func (loggerMock) Info(msg string, args ...interface{})  {}
func (loggerMock) Warn(msg string, args ...interface{})  {}
func (loggerMock) Error(msg string, args ...interface{}) {}
func (loggerMock) Fatal(msg string, args ...interface{}) {}

type emailServiceMock struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (svc *emailServiceMock) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.messages = append(svc.messages, messages...)
}

func testConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Meridian",
		SecretKey:        "secret",
		DefaultFromEmail: "noreply@localhost",

		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,

		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

type testApp struct {
	server Server
	conf   *core.Config

	users  user.Repository
	certs  certificate.Repository
	houses house.Repository
	events event.Repository
}

func newTestApp(t *testing.T) testApp {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("newTestApp() failed: %v", err)
	}

	conf := testConfig()
	app := testApp{
		conf:   conf,
		users:  dummydb.NewUserRepository(db),
		certs:  dummydb.NewCertificateRepository(db),
		houses: dummydb.NewHouseRepository(db),
		events: dummydb.NewEventRepository(db),
	}

	logger := loggerMock{}
	mailSvc := &emailServiceMock{}

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	certificate.InitValidators(validate, translator)

	app.server = NewServer(&Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,

		UserSvc:        user.NewService(app.users, mailSvc, conf),
		CertificateSvc: certificate.NewService(app.certs, app.users, app.houses, nil, mailSvc, logger, conf),
		HouseSvc:       house.NewService(app.houses, app.users),
		EventSvc:       event.NewService(app.events, app.users, app.certs, app.houses, logger),

		SignalShutdown: func() {},
	})
	return app
}

func (app testApp) createUser(t *testing.T, name string, role auth.Role, houseID, pwd string) user.User {
	t.Helper()
	now := time.Now().UTC()
	active := true
	usr := user.User{
		Name:      name,
		Username:  strings.ToLower(name),
		Email:     strings.ToLower(name) + "@test.test",
		Role:      role,
		IsActive:  &active,
		HouseID:   houseID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := app.users.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (app testApp) createHouse(t *testing.T, name string) house.House {
	t.Helper()
	h, err := app.houses.CreateHouse(context.Background(), house.House{Name: name, Color: "#112233"})
	if err != nil {
		t.Fatalf("createHouse() failed: %v", err)
	}
	return h
}

// credit records an approved certificate and its ledger entry directly.
func (app testApp) credit(t *testing.T, usr user.User, category certificate.Category, points, year, month int) {
	t.Helper()
	ctx := context.Background()
	cert, err := app.certs.CreateCertificate(ctx, certificate.Certificate{
		OwnerID:    usr.ID,
		Name:       "t",
		Category:   category,
		IssueYear:  year,
		IssueMonth: month,
		Status:     certificate.StatusApproved,
		Points:     points,
	})
	if err != nil {
		t.Fatalf("credit() failed: %v", err)
	}
	if _, err = app.houses.AppendLedgerEntry(ctx, house.LedgerEntry{
		HouseID:       usr.HouseID,
		CertificateID: cert.ID,
		UserID:        usr.ID,
		Points:        points,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("credit() failed: %v", err)
	}
}

func (app testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
