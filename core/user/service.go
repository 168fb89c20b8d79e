package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrUserExists     = errors.New("a user with this username or email already exists")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		GetUsersByID(ctx context.Context, ids []string) ([]User, error)
		UpdateUser(ctx context.Context, usr User, isActive *bool, houseID *string) (User, error)
		DeleteUsersByID(ctx context.Context, ids []string) (int, error)
	}

	Service interface {
		CheckUniqueness(uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		GetManyByID(ctx context.Context, ids []string) ([]User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		RequestPasswordResetFor(ctx context.Context, actor User, targetID string) error
		ConfirmPasswordReset(ctx context.Context, rp ResetUserPassword) error
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		case ErrUserExists:
			field = "username"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:         nu.Name,
		Username:     nu.Username,
		Email:        nu.Email,
		IsActive:     boolPtr(true),
		Role:         nu.Role,
		Capabilities: nu.Capabilities,
		HouseID:      nu.HouseID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryUsers(ctx, filter)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) GetManyByID(ctx context.Context, ids []string) ([]User, error) {
	return svc.repo.GetUsersByID(ctx, ids)
}

func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr := User{
		ID:           id,
		Name:         uu.Name,
		Username:     uu.Username,
		Email:        uu.Email,
		Role:         uu.Role,
		Capabilities: uu.Capabilities,
		UpdatedAt:    time.Now().UTC(),
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
	}
	return svc.repo.UpdateUser(ctx, usr, uu.IsActive, uu.HouseID)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, User{ID: usr.ID, LastLogin: usr.LastLogin}, nil, nil)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteUsersByID(ctx, ids)
	return err
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

// RequestPasswordResetFor sends reset instructions to another user on a
// staff member's behalf. The gatekeeper decides whether the actor may
// reset the target's password.
func (svc *service) RequestPasswordResetFor(ctx context.Context, actor User, targetID string) error {
	target, err := svc.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if err := auth.Decide(actor.Actor(), target.Target(), auth.OpResetPassword); err != nil {
		return err
	}
	go svc.sendPasswordResetMail(target)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	token, err := MakeToken(svc.conf, usr)
	if err != nil {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("%s - Password Reset", svc.conf.AppName),
		TemplateName: "password-reset",
		TemplateData: struct {
			User  User
			UID   string
			Token string
		}{usr, EncodeUID(usr), token},
	}
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) ConfirmPasswordReset(ctx context.Context, rp ResetUserPassword) error {
	uid, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		return err
	}
	if err = verifyToken(svc.conf, usr, rp.Token); err != nil {
		return core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	_, err = svc.repo.UpdateUser(ctx, User{ID: usr.ID, PasswordHash: usr.PasswordHash, UpdatedAt: time.Now().UTC()}, nil, nil)
	return err
}

func boolPtr(b bool) *bool { return &b }
