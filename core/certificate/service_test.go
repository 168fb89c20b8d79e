package certificate_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/certificate"
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

type emailServiceMock struct {
	mu       sync.Mutex
	messages []*core.EmailMessage
}

func (svc *emailServiceMock) SendMessages(messages ...*core.EmailMessage) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.messages = append(svc.messages, messages...)
}

type evidenceStoreMock struct {
	saved   map[string]string // certID -> filename
	deleted []string
}

func (s *evidenceStoreMock) Save(ctx context.Context, certID, filename string, r io.Reader) (string, string, error) {
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	s.saved[certID] = filename
	_, _ = io.Copy(io.Discard, r)
	return "evidence/" + certID + "/" + filename, "deadbeef", nil
}

func (s *evidenceStoreMock) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("%PDF-1.4")), nil
}

func (s *evidenceStoreMock) Delete(ctx context.Context, certID string) error {
	s.deleted = append(s.deleted, certID)
	delete(s.saved, certID)
	return nil
}

type testEnv struct {
	svc      certificate.Service
	users    user.Repository
	houses   house.Repository
	evidence *evidenceStoreMock
	mailSvc  *emailServiceMock
}

func setup(t *testing.T) testEnv {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)

	env := testEnv{
		users:    dummydb.NewUserRepository(db),
		houses:   dummydb.NewHouseRepository(db),
		evidence: &evidenceStoreMock{},
		mailSvc:  &emailServiceMock{},
	}
	conf := &core.Config{AppName: "Meridian"}
	env.svc = certificate.NewService(
		dummydb.NewCertificateRepository(db),
		env.users, env.houses, env.evidence, env.mailSvc, loggerMock{}, conf,
	)
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

func (env testEnv) submit(t *testing.T, owner user.User) certificate.Certificate {
	t.Helper()
	cert, err := env.svc.Submit(context.Background(), owner, certificate.NewCertificate{
		Name:         "Cloud Fundamentals",
		Organization: "Acme",
		IssueMonth:   3,
		IssueYear:    2026,
		Category:     certificate.CategoryExternal,
		Level:        certificate.LevelIntermediate,
		EvidenceKind: certificate.EvidenceURL,
		EvidenceURL:  "https://acme.test/cert/123",
	}, nil)
	require.NoError(t, err)
	return cert
}

func TestServiceSubmit_fileEvidence(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	owner := env.createUser(t, "Ada", auth.RoleStudent, "")

	cert, err := env.svc.Submit(ctx, owner, certificate.NewCertificate{
		Name:         "First Aid",
		Organization: "Red Cross",
		IssueMonth:   1,
		IssueYear:    2026,
		Category:     certificate.CategoryExternal,
		Level:        certificate.LevelBeginner,
		EvidenceKind: certificate.EvidenceFile,
		FileName:     "scan.pdf",
	}, strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, certificate.StatusPending, cert.Status)
	assert.Equal(t, "evidence/"+cert.ID+"/scan.pdf", cert.EvidenceRef)
	assert.Equal(t, "deadbeef", cert.ContentHash)
	assert.Equal(t, "scan.pdf", env.evidence.saved[cert.ID])

	r, filename, err := env.svc.OpenEvidence(ctx, owner, cert.ID)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	assert.Equal(t, "scan.pdf", filename)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(content))

	// file evidence without a payload is rejected
	_, err = env.svc.Submit(ctx, owner, certificate.NewCertificate{
		Name:         "First Aid",
		Organization: "Red Cross",
		IssueMonth:   1,
		IssueYear:    2026,
		Category:     certificate.CategoryExternal,
		Level:        certificate.LevelBeginner,
		EvidenceKind: certificate.EvidenceFile,
		FileName:     "scan.pdf",
	}, nil)
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	// the rejected submission must not leave an orphan pending record
	certs, err := env.svc.QueryByOwner(ctx, owner, owner.ID)
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

func TestServiceReview_approve(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	h := env.createHouse(t, "Phoenix")
	owner := env.createUser(t, "Ada", auth.RoleStudent, h.ID)
	reviewer := env.createUser(t, "Grace", auth.RoleAdmin, "")
	cert := env.submit(t, owner)

	got, err := env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionApprove, certificate.ReviewInput{Comment: "well done"})
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusApproved, got.Status)
	// no explicit value: level default applies
	assert.Equal(t, certificate.DefaultPoints[certificate.LevelIntermediate], got.Points)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, reviewer.ID, got.Comments[0].AuthorID)

	entries, err := env.houses.QueryLedger(ctx, house.LedgerFilter{HouseID: h.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cert.ID, entries[0].CertificateID)
	assert.Equal(t, owner.ID, entries[0].UserID)
	assert.Equal(t, got.Points, entries[0].Points)

	// approving again is a no-op: no second entry, no new comment
	again, err := env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionApprove, certificate.ReviewInput{Comment: "again"})
	require.NoError(t, err)
	assert.Equal(t, got.Points, again.Points)
	assert.Len(t, again.Comments, 1)

	entries, err = env.houses.QueryLedger(ctx, house.LedgerFilter{HouseID: h.ID})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestServiceReview_approveExplicitPoints(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	h := env.createHouse(t, "Phoenix")
	owner := env.createUser(t, "Ada", auth.RoleStudent, h.ID)
	reviewer := env.createUser(t, "Grace", auth.RoleAdmin, "")
	cert := env.submit(t, owner)

	got, err := env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionApprove, certificate.ReviewInput{Points: 55})
	require.NoError(t, err)
	assert.Equal(t, 55, got.Points)

	entries, err := env.houses.QueryLedger(ctx, house.LedgerFilter{HouseID: h.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 55, entries[0].Points)
}

func TestServiceReview_approveWithoutHouse(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	owner := env.createUser(t, "Ada", auth.RoleStudent, "")
	reviewer := env.createUser(t, "Grace", auth.RoleAdmin, "")
	cert := env.submit(t, owner)

	got, err := env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionApprove, certificate.ReviewInput{})
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusApproved, got.Status)

	// approval recorded, but no house to credit
	entries, err := env.houses.QueryLedger(ctx, house.LedgerFilter{UserID: owner.ID})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServiceReview_rejectAfterApprove(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	h := env.createHouse(t, "Phoenix")
	owner := env.createUser(t, "Ada", auth.RoleStudent, h.ID)
	reviewer := env.createUser(t, "Grace", auth.RoleAdmin, "")
	cert := env.submit(t, owner)

	_, err := env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionApprove, certificate.ReviewInput{})
	require.NoError(t, err)

	_, err = env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionReject, certificate.ReviewInput{})
	var cErr *core.ConflictError
	assert.ErrorAs(t, err, &cErr)
}

func TestServiceReview_deniedForStudent(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	owner := env.createUser(t, "Ada", auth.RoleStudent, "")
	peer := env.createUser(t, "Eve", auth.RoleStudent, "")
	cert := env.submit(t, owner)

	_, err := env.svc.Review(ctx, peer, cert.ID, certificate.DecisionApprove, certificate.ReviewInput{})
	var aErr *core.AuthorizationError
	assert.ErrorAs(t, err, &aErr)
}

func TestServiceEdit_rejectedResubmits(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	owner := env.createUser(t, "Ada", auth.RoleStudent, "")
	reviewer := env.createUser(t, "Grace", auth.RoleAdmin, "")
	cert := env.submit(t, owner)

	_, err := env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionReject, certificate.ReviewInput{Comment: "illegible"})
	require.NoError(t, err)

	got, err := env.svc.Edit(ctx, owner, cert.ID, certificate.UpdateCertificate{Name: "Cloud Fundamentals II"}, nil)
	require.NoError(t, err)
	assert.Equal(t, certificate.StatusPending, got.Status)
	assert.Equal(t, "Cloud Fundamentals II", got.Name)
}

func TestServiceRemove_ledgerSurvives(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	h := env.createHouse(t, "Phoenix")
	owner := env.createUser(t, "Ada", auth.RoleStudent, h.ID)
	reviewer := env.createUser(t, "Grace", auth.RoleAdmin, "")
	cert := env.submit(t, owner)

	_, err := env.svc.Review(ctx, reviewer, cert.ID, certificate.DecisionApprove, certificate.ReviewInput{})
	require.NoError(t, err)

	require.NoError(t, env.svc.Remove(ctx, owner, cert.ID))

	_, err = env.svc.GetByID(ctx, reviewer, cert.ID)
	assert.Equal(t, certificate.ErrNotFound, err)

	// credited points are immutable; deleting the certificate keeps the entry
	entries, err := env.houses.QueryLedger(ctx, house.LedgerFilter{HouseID: h.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, cert.ID, entries[0].CertificateID)
}

func TestServiceQueryByOwner(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	owner := env.createUser(t, "Ada", auth.RoleStudent, "")
	peer := env.createUser(t, "Eve", auth.RoleStudent, "")
	admin := env.createUser(t, "Grace", auth.RoleAdmin, "")
	cert := env.submit(t, owner)

	// owners see their own certificates
	certs, err := env.svc.QueryByOwner(ctx, owner, owner.ID)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, cert.ID, certs[0].ID)

	// admins see anyone's
	certs, err = env.svc.QueryByOwner(ctx, admin, owner.ID)
	require.NoError(t, err)
	assert.Len(t, certs, 1)

	// peers see nothing
	_, err = env.svc.QueryByOwner(ctx, peer, owner.ID)
	var aErr *core.AuthorizationError
	assert.ErrorAs(t, err, &aErr)
}
