package certificate

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridian-edu/meridian/core"
)

type Category string

const (
	CategoryInternal Category = "internal"
	CategoryExternal Category = "external"
	CategoryEvent    Category = "event"
)

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
	LevelDepartment   Level = "department"
)

type EvidenceKind string

const (
	EvidenceURL   EvidenceKind = "url"
	EvidenceFile  EvidenceKind = "file"
	EvidencePrint EvidenceKind = "print"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// DefaultPoints is the fallback point value per level when a reviewer
// approves without specifying one.
var DefaultPoints = map[Level]int{
	LevelBeginner:     10,
	LevelIntermediate: 20,
	LevelAdvanced:     30,
	LevelDepartment:   40,
}

// evidenceFileTypes is the MIME allow-list for uploaded evidence.
var evidenceFileTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
}

type ReviewComment struct {
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Certificate represents one claim of achievement, owned by exactly one user.
type Certificate struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Name         string          `json:"name"`
	Organization string          `json:"organization"`
	IssueMonth   int             `json:"issue_month"`
	IssueYear    int             `json:"issue_year"`
	Expires      bool            `json:"expires"`
	ExpiryDate   time.Time       `json:"expiry_date,omitempty"`
	Category     Category        `json:"category"`
	Level        Level           `json:"level"`
	EvidenceKind EvidenceKind    `json:"evidence_kind"`
	EvidenceRef  string          `json:"evidence_ref,omitempty"` // URL or blob key
	ContentHash  string          `json:"content_hash,omitempty"` // SHA-256 hex of uploaded evidence
	Status       Status          `json:"status"`
	Points       int             `json:"points"` // 0 until approved
	Comments     []ReviewComment `json:"comments,omitempty"`
	EventID      string          `json:"event_id,omitempty"` // set when synthesized by an event allocation
	CreatedAt    time.Time       `json:"created_at"`         // UTC
	UpdatedAt    time.Time       `json:"updated_at"`         // UTC
}

func (c *Certificate) IsApproved() bool { return c.Status == StatusApproved }

// NewCertificate contains the information needed to submit a certificate.
type NewCertificate struct {
	Name         string       `json:"name" validate:"required"`
	Organization string       `json:"organization" validate:"required"`
	IssueMonth   int          `json:"issue_month" validate:"required,min=1,max=12"`
	IssueYear    int          `json:"issue_year" validate:"required,min=1980"`
	Expires      bool         `json:"expires"`
	ExpiryDate   time.Time    `json:"expiry_date" validate:"required_if=Expires true"`
	Category     Category     `json:"category" validate:"required,certcategory"`
	Level        Level        `json:"level" validate:"required,certlevel"`
	EvidenceKind EvidenceKind `json:"evidence_kind" validate:"required,evidencekind"`
	EvidenceURL  string       `json:"evidence_url" validate:"required_if=EvidenceKind url,omitempty,url"`

	// file evidence metadata; the payload itself travels out of band
	FileName string `json:"file_name" validate:"required_if=EvidenceKind file"`
	FileType string `json:"file_type" validate:"required_if=EvidenceKind file"`
	FileSize int64  `json:"file_size"`
}

func (nc *NewCertificate) Validate(validate *validator.Validate, conf *core.Config) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Organization = core.CleanString(nc.Organization)

	if err := validate.Struct(nc); err != nil {
		return err
	}
	if nc.EvidenceKind == EvidenceFile {
		if !evidenceFileTypes[nc.FileType] {
			return core.NewValidationError(nil, core.FieldError{Field: "file_type", Error: "unsupported evidence file type"})
		}
		if nc.FileSize <= 0 || nc.FileSize > conf.Evidence.MaxFileSize {
			return core.NewValidationError(nil, core.FieldError{Field: "file_size", Error: "evidence file size out of bounds"})
		}
	}
	return nil
}

// UpdateCertificate defines the pre-approval fields that may be modified.
// Editing a rejected certificate resubmits it (status returns to pending).
type UpdateCertificate struct {
	Name         string       `json:"name"`
	Organization string       `json:"organization"`
	IssueMonth   int          `json:"issue_month" validate:"omitempty,min=1,max=12"`
	IssueYear    int          `json:"issue_year" validate:"omitempty,min=1980"`
	Expires      *bool        `json:"expires"`
	ExpiryDate   time.Time    `json:"expiry_date"`
	Category     Category     `json:"category" validate:"omitempty,certcategory"`
	Level        Level        `json:"level" validate:"omitempty,certlevel"`
	EvidenceKind EvidenceKind `json:"evidence_kind" validate:"omitempty,evidencekind"`
	EvidenceURL  string       `json:"evidence_url" validate:"omitempty,url"`

	FileName string `json:"file_name"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

func (uc *UpdateCertificate) Validate(validate *validator.Validate, conf *core.Config) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Organization = core.CleanString(uc.Organization)

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.EvidenceKind == EvidenceFile || uc.FileName != "" {
		if !evidenceFileTypes[uc.FileType] {
			return core.NewValidationError(nil, core.FieldError{Field: "file_type", Error: "unsupported evidence file type"})
		}
		if uc.FileSize <= 0 || uc.FileSize > conf.Evidence.MaxFileSize {
			return core.NewValidationError(nil, core.FieldError{Field: "file_size", Error: "evidence file size out of bounds"})
		}
	}
	return nil
}

// ReviewInput carries the reviewer's decision details.
type ReviewInput struct {
	Points  int    `json:"points" validate:"omitempty,min=0"`
	Comment string `json:"comment"`
}

func (ri *ReviewInput) Validate(validate *validator.Validate) error {
	ri.Comment = core.CleanString(ri.Comment)
	return validate.Struct(ri)
}
