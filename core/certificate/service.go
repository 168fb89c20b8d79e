package certificate

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"path"
	"time"

	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("certificate not found")

	errApprovedIsFinal = errors.New("certificate already approved")
	errUnknownDecision = errors.New("unknown review decision")
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type (
	Repository interface {
		CreateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		// CreateEventCertificate inserts a certificate synthesized by an event
		// allocation. The (event, owner) pair is unique: when a certificate
		// already exists for it, the existing one is returned with created=false.
		CreateEventCertificate(ctx context.Context, cert Certificate) (c Certificate, created bool, err error)
		GetCertificate(ctx context.Context, id string) (Certificate, error)
		QueryCertificatesByOwner(ctx context.Context, ownerID string) ([]Certificate, error)
		UpdateCertificate(ctx context.Context, cert Certificate) (Certificate, error)
		DeleteCertificate(ctx context.Context, id string) error
	}

	// EvidenceStore stores uploaded evidence blobs, addressed by certificate id.
	// Save returns the blob key and the SHA-256 hex digest of the content.
	EvidenceStore interface {
		Save(ctx context.Context, certID, filename string, r io.Reader) (key, hash string, err error)
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, certID string) error
	}

	Service interface {
		Submit(ctx context.Context, owner user.User, nc NewCertificate, evidence io.Reader) (Certificate, error)
		GetByID(ctx context.Context, actor user.User, id string) (Certificate, error)
		QueryByOwner(ctx context.Context, actor user.User, ownerID string) ([]Certificate, error)
		Edit(ctx context.Context, actor user.User, id string, uc UpdateCertificate, evidence io.Reader) (Certificate, error)
		// OpenEvidence returns the stored evidence blob for download, along
		// with its filename.
		OpenEvidence(ctx context.Context, actor user.User, id string) (io.ReadCloser, string, error)
		Review(ctx context.Context, reviewer user.User, id string, decision Decision, in ReviewInput) (Certificate, error)
		Remove(ctx context.Context, actor user.User, id string) error
	}

	service struct {
		repo     Repository
		users    user.Repository
		houses   house.Repository
		evidence EvidenceStore
		mailSvc  core.EmailService
		logger   core.Logger
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	users user.Repository,
	houses house.Repository,
	evidence EvidenceStore,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:     repo,
		users:    users,
		houses:   houses,
		evidence: evidence,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     conf,
	}
}

func (svc *service) Submit(ctx context.Context, owner user.User, nc NewCertificate, evidence io.Reader) (Certificate, error) {
	now := time.Now().UTC()
	cert := Certificate{
		OwnerID:      owner.ID,
		Name:         nc.Name,
		Organization: nc.Organization,
		IssueMonth:   nc.IssueMonth,
		IssueYear:    nc.IssueYear,
		Expires:      nc.Expires,
		ExpiryDate:   nc.ExpiryDate,
		Category:     nc.Category,
		Level:        nc.Level,
		EvidenceKind: nc.EvidenceKind,
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if nc.EvidenceKind == EvidenceURL {
		cert.EvidenceRef = nc.EvidenceURL
	}
	if nc.EvidenceKind == EvidenceFile && evidence == nil {
		return Certificate{}, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "evidence file is required"})
	}

	cert, err := svc.repo.CreateCertificate(ctx, cert)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "creating certificate")
	}

	if nc.EvidenceKind == EvidenceFile {
		key, hash, err := svc.evidence.Save(ctx, cert.ID, nc.FileName, evidence)
		if err != nil {
			// do not leave an orphan pending record behind
			if derr := svc.repo.DeleteCertificate(ctx, cert.ID); derr != nil {
				svc.logger.Warn(fmt.Sprintf("deleting certificate %s after failed evidence store: %v", cert.ID, derr))
			}
			return Certificate{}, errors.Wrap(err, "storing evidence")
		}
		cert.EvidenceRef = key
		cert.ContentHash = hash
		cert, err = svc.repo.UpdateCertificate(ctx, cert)
		if err != nil {
			return Certificate{}, errors.Wrap(err, "recording evidence ref")
		}
	}
	return cert, nil
}

func (svc *service) GetByID(ctx context.Context, actor user.User, id string) (Certificate, error) {
	cert, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	if err := svc.decide(ctx, actor, cert, auth.OpListCertificates); err != nil {
		return Certificate{}, err
	}
	return cert, nil
}

func (svc *service) QueryByOwner(ctx context.Context, actor user.User, ownerID string) ([]Certificate, error) {
	target := auth.Target{ID: ownerID, Role: actor.Role}
	if actor.ID != ownerID {
		owner, err := svc.users.GetUser(ctx, user.GetFilter{ID: ownerID})
		if err != nil {
			return nil, err
		}
		target = owner.Target()
	}
	if err := auth.Decide(actor.Actor(), target, auth.OpListCertificates); err != nil {
		svc.logAudit(actor, ownerID, auth.OpListCertificates)
		return nil, err
	}
	return svc.repo.QueryCertificatesByOwner(ctx, ownerID)
}

func (svc *service) Edit(ctx context.Context, actor user.User, id string, uc UpdateCertificate, evidence io.Reader) (Certificate, error) {
	cert, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	if err := svc.decide(ctx, actor, cert, auth.OpUpdateCertificate); err != nil {
		return Certificate{}, err
	}

	if uc.Name != "" {
		cert.Name = uc.Name
	}
	if uc.Organization != "" {
		cert.Organization = uc.Organization
	}
	if uc.IssueMonth != 0 {
		cert.IssueMonth = uc.IssueMonth
	}
	if uc.IssueYear != 0 {
		cert.IssueYear = uc.IssueYear
	}
	if uc.Expires != nil {
		cert.Expires = *uc.Expires
		if !*uc.Expires {
			cert.ExpiryDate = time.Time{}
		}
	}
	if !uc.ExpiryDate.IsZero() {
		cert.ExpiryDate = uc.ExpiryDate
	}
	if uc.Category != "" {
		cert.Category = uc.Category
	}
	if uc.Level != "" {
		cert.Level = uc.Level
	}

	if uc.EvidenceKind != "" && uc.EvidenceKind != cert.EvidenceKind {
		// evidence replacement invalidates any cached hash
		if cert.EvidenceKind == EvidenceFile {
			if err := svc.evidence.Delete(ctx, cert.ID); err != nil {
				svc.logger.Warn(fmt.Sprintf("deleting replaced evidence for certificate %s: %v", cert.ID, err))
			}
		}
		cert.EvidenceKind = uc.EvidenceKind
		cert.EvidenceRef = ""
		cert.ContentHash = ""
	}
	switch cert.EvidenceKind {
	case EvidenceURL:
		if uc.EvidenceURL != "" {
			cert.EvidenceRef = uc.EvidenceURL
			cert.ContentHash = ""
		}
	case EvidenceFile:
		if evidence != nil {
			key, hash, err := svc.evidence.Save(ctx, cert.ID, uc.FileName, evidence)
			if err != nil {
				return Certificate{}, errors.Wrap(err, "storing evidence")
			}
			cert.EvidenceRef = key
			cert.ContentHash = hash
		}
	}

	// editing a rejected certificate resubmits it; an approved one keeps its
	// status and frozen point value (edits never re-run allocation)
	if cert.Status == StatusRejected {
		cert.Status = StatusPending
	}

	cert.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCertificate(ctx, cert)
}

func (svc *service) OpenEvidence(ctx context.Context, actor user.User, id string) (io.ReadCloser, string, error) {
	cert, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if err := svc.decide(ctx, actor, cert, auth.OpListCertificates); err != nil {
		return nil, "", err
	}
	if cert.EvidenceKind != EvidenceFile || cert.EvidenceRef == "" {
		return nil, "", core.NewNotFoundError(errors.New("no evidence file stored"))
	}

	r, err := svc.evidence.Open(ctx, cert.EvidenceRef)
	if err != nil {
		return nil, "", errors.Wrap(err, "opening evidence")
	}
	return r, path.Base(cert.EvidenceRef), nil
}

func (svc *service) Review(ctx context.Context, reviewer user.User, id string, decision Decision, in ReviewInput) (Certificate, error) {
	cert, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		return Certificate{}, err
	}
	owner, err := svc.users.GetUser(ctx, user.GetFilter{ID: cert.OwnerID})
	if err != nil {
		return Certificate{}, errors.Wrap(err, "finding certificate owner")
	}
	if err := auth.Decide(reviewer.Actor(), owner.Target(), auth.OpReviewCertificate); err != nil {
		svc.logAudit(reviewer, owner.ID, auth.OpReviewCertificate)
		return Certificate{}, err
	}

	switch decision {
	case DecisionApprove:
		return svc.approve(ctx, reviewer, cert, owner, in)
	case DecisionReject:
		return svc.reject(ctx, reviewer, cert, owner, in)
	}
	return Certificate{}, core.NewValidationError(errUnknownDecision)
}

// approve transitions pending -> approved and emits exactly one ledger
// entry to the owner's current house. The entry is appended before the
// status flip so that a failed update converges on retry: the append is
// idempotent per certificate, and an already-approved certificate is a
// no-op with respect to ledger emission.
func (svc *service) approve(ctx context.Context, reviewer user.User, cert Certificate, owner user.User, in ReviewInput) (Certificate, error) {
	if cert.Status == StatusApproved {
		return cert, nil
	}

	points := in.Points
	if points == 0 {
		points = DefaultPoints[cert.Level]
	}

	if owner.HouseID == "" {
		// documented edge case: approval still records status, no entry emitted
		svc.logger.Info(fmt.Sprintf("certificate %s approved for user %s with no house; no ledger entry emitted", cert.ID, owner.ID))
	} else {
		entry := house.LedgerEntry{
			HouseID:       owner.HouseID,
			CertificateID: cert.ID,
			UserID:        owner.ID,
			Points:        points,
			CreatedAt:     time.Now().UTC(),
		}
		if _, err := svc.houses.AppendLedgerEntry(ctx, entry); err != nil {
			if errors.Cause(err) != house.ErrDuplicateEntry {
				return Certificate{}, errors.Wrap(err, "appending ledger entry")
			}
		}
	}

	cert.Status = StatusApproved
	cert.Points = points
	if in.Comment != "" {
		cert.Comments = append(cert.Comments, ReviewComment{
			AuthorID:  reviewer.ID,
			Body:      in.Comment,
			CreatedAt: time.Now().UTC(),
		})
	}
	cert.UpdatedAt = time.Now().UTC()

	cert, err := svc.repo.UpdateCertificate(ctx, cert)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "updating certificate")
	}

	go svc.sendReviewMail(owner, cert, "certificate-approved")
	return cert, nil
}

func (svc *service) reject(ctx context.Context, reviewer user.User, cert Certificate, owner user.User, in ReviewInput) (Certificate, error) {
	switch cert.Status {
	case StatusApproved:
		return Certificate{}, core.NewConflictError(errApprovedIsFinal)
	case StatusRejected:
		return cert, nil
	}

	cert.Status = StatusRejected
	cert.Points = 0
	if in.Comment != "" {
		cert.Comments = append(cert.Comments, ReviewComment{
			AuthorID:  reviewer.ID,
			Body:      in.Comment,
			CreatedAt: time.Now().UTC(),
		})
	}
	cert.UpdatedAt = time.Now().UTC()

	cert, err := svc.repo.UpdateCertificate(ctx, cert)
	if err != nil {
		return Certificate{}, errors.Wrap(err, "updating certificate")
	}

	go svc.sendReviewMail(owner, cert, "certificate-rejected")
	return cert, nil
}

// Remove deletes the certificate and its stored evidence blob. Ledger
// entries already emitted for it are immutable and survive the deletion.
func (svc *service) Remove(ctx context.Context, actor user.User, id string) error {
	cert, err := svc.repo.GetCertificate(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.decide(ctx, actor, cert, auth.OpDeleteCertificate); err != nil {
		return err
	}

	if cert.EvidenceKind == EvidenceFile && cert.EvidenceRef != "" {
		if err := svc.evidence.Delete(ctx, cert.ID); err != nil {
			svc.logger.Warn(fmt.Sprintf("deleting evidence for certificate %s: %v", cert.ID, err))
		}
	}
	return svc.repo.DeleteCertificate(ctx, id)
}

// decide runs the gatekeeper for an operation on a certificate, resolving
// the owner as the target.
func (svc *service) decide(ctx context.Context, actor user.User, cert Certificate, op auth.Operation) error {
	if actor.ID == cert.OwnerID {
		return auth.Decide(actor.Actor(), auth.Target{ID: cert.OwnerID, Role: actor.Role}, op)
	}
	owner, err := svc.users.GetUser(ctx, user.GetFilter{ID: cert.OwnerID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			// owner gone; only reachable by admins via the decision table
			return auth.Decide(actor.Actor(), auth.Target{}, op)
		}
		return err
	}
	if err := auth.Decide(actor.Actor(), owner.Target(), op); err != nil {
		svc.logAudit(actor, owner.ID, op)
		return err
	}
	return nil
}

// logAudit records a gatekeeper denial with actor and target for audit.
func (svc *service) logAudit(actor user.User, targetID string, op auth.Operation) {
	svc.logger.Warn(fmt.Sprintf("authorization denied: actor=%s target=%s op=%s", actor.ID, targetID, op), actor)
}

func (svc *service) sendReviewMail(owner user.User, cert Certificate, template string) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: owner.Name, Address: owner.Email}},
		Subject:      fmt.Sprintf("%s - Certificate %s", svc.conf.AppName, cert.Status),
		TemplateName: template,
		TemplateData: struct {
			User        user.User
			Certificate Certificate
		}{owner, cert},
	}
	svc.mailSvc.SendMessages(msg)
}
