package house

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-edu/meridian/core"
)

type SocialLinks struct {
	Website   string `json:"website,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
}

// House is a competing cohort of students. Membership lives on the user
// record; the ledger is a dedicated append-only table keyed by house id.
type House struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Color         string      `json:"color"`
	Description   string      `json:"description,omitempty"`
	ImageURL      string      `json:"image_url,omitempty"`
	CoordinatorID string      `json:"coordinator_id,omitempty"` // at most one coordinating faculty
	Social        SocialLinks `json:"social"`
	CreatedAt     time.Time   `json:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at"` // UTC
}

// LedgerEntry is the atomic unit of credit: one point value, from one
// certificate, to one user's house. Entries are immutable once created.
type LedgerEntry struct {
	ID            string    `json:"id" db:"id"`
	HouseID       string    `json:"house_id" db:"house_id"`
	CertificateID string    `json:"certificate_id" db:"certificate_id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Points        int       `json:"points" db:"points"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"` // UTC
}

// LedgerView is a ledger entry joined with the attributes of its
// originating certificate that aggregation slices on.
type LedgerView struct {
	LedgerEntry
	Category   string `json:"category" db:"category"`
	IssueYear  int    `json:"issue_year" db:"issue_year"`
	IssueMonth int    `json:"issue_month" db:"issue_month"`
}

// LedgerFilter selects ledger entries; zero fields are ignored.
type LedgerFilter struct {
	HouseID string
	UserID  string
}

// NewHouse contains information needed to create a new House.
type NewHouse struct {
	Name          string      `json:"name" validate:"required"`
	Color         string      `json:"color" validate:"required,hexcolor"`
	Description   string      `json:"description"`
	ImageURL      string      `json:"image_url" validate:"omitempty,url"`
	CoordinatorID string      `json:"coordinator_id" validate:"omitempty,uuid4"`
	Social        SocialLinks `json:"social"`
}

func (nh *NewHouse) Validate(validate *validator.Validate) error {
	nh.Name = core.CleanString(nh.Name)
	nh.Description = core.CleanString(nh.Description)
	return validate.Struct(nh)
}

// UpdateHouse defines what information may be provided to modify an existing House.
type UpdateHouse struct {
	Name          string       `json:"name"`
	Color         string       `json:"color" validate:"omitempty,hexcolor"`
	Description   string       `json:"description"`
	ImageURL      string       `json:"image_url" validate:"omitempty,url"`
	CoordinatorID *string      `json:"coordinator_id"`
	Social        *SocialLinks `json:"social"`
}

func (uh *UpdateHouse) Validate(validate *validator.Validate) error {
	uh.Name = core.CleanString(uh.Name)
	uh.Description = core.CleanString(uh.Description)
	return validate.Struct(uh)
}
