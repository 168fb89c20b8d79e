package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/auth"
)

type User struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	IsActive     *bool             `json:"is_active"`
	Role         auth.Role         `json:"role"`
	Capabilities []auth.Capability `json:"capabilities"`
	HouseID      string            `json:"house_id,omitempty"` // empty: not in any house
	PasswordHash []byte            `json:"-"`
	CreatedAt    time.Time         `json:"created_at"` // UTC
	UpdatedAt    time.Time         `json:"updated_at"` // UTC
	LastLogin    time.Time         `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == auth.RoleAdmin }
func (u *User) IsFaculty() bool { return u.Role == auth.RoleFaculty }
func (u *User) IsStudent() bool { return u.Role == auth.RoleStudent }

// Actor converts the user into the gatekeeper's actor shape.
func (u User) Actor() auth.Actor {
	return auth.Actor{ID: u.ID, Role: u.Role, Capabilities: u.Capabilities}
}

// Target converts the user into the gatekeeper's target shape.
func (u User) Target() auth.Target {
	return auth.Target{ID: u.ID, Role: u.Role}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string            `json:"name" validate:"required"`
	Username        string            `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string            `json:"email" validate:"required,email"`
	Password        string            `json:"password" validate:"required,pwdminlen,pwdnospace,pwdnotallnum"`
	PasswordConfirm string            `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            auth.Role         `json:"role" validate:"required,role"`
	Capabilities    []auth.Capability `json:"capabilities" validate:"omitempty,capabilities"`
	HouseID         string            `json:"house_id" validate:"omitempty,uuid4"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	if err := validatePasswordSimilarity(nu.Password, nu.Name, nu.Username, nu.Email); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string            `json:"name"`
	Username        string            `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string            `json:"email" validate:"omitempty,email"`
	IsActive        *bool             `json:"is_active"`
	Role            auth.Role         `json:"role" validate:"omitempty,role"`
	Capabilities    []auth.Capability `json:"capabilities" validate:"omitempty,capabilities"`
	HouseID         *string           `json:"house_id" validate:"omitempty"`
	Password        string            `json:"password" validate:"omitempty,pwdminlen,pwdnospace,pwdnotallnum"`
	PasswordConfirm string            `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(validate *validator.Validate, origUsr User, svc Service) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Username = core.CleanString(uu.Username, true /* lower */)
	uu.Email = core.CleanString(uu.Email, true /* lower */)

	// validate only what the caller supplied; untouched fields are
	// backfilled from the original record afterwards
	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Name == "" {
		uu.Name = origUsr.Name
	}
	if uu.Username == "" {
		uu.Username = origUsr.Username
	}
	if uu.Email == "" {
		uu.Email = origUsr.Email
	}
	if uu.Password != "" {
		if err := validatePasswordSimilarity(uu.Password, uu.Name, uu.Username, uu.Email); err != nil {
			return err
		}
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required,pwdminlen,pwdnospace,pwdnotallnum"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        auth.Role `query:"role"`
	HouseID     string    `query:"house_id"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.HouseID == "" && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single user; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
