package pgrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/certificate"
)

type certificateRepository struct {
	exec core.DBExecutor
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(exec core.DBExecutor) *certificateRepository {
	return &certificateRepository{exec: exec}
}

// certificateRow mirrors the certificate table. Review comments are a jsonb
// document; they are append-only and never queried on their own.
type certificateRow struct {
	ID           string      `db:"id"`
	OwnerID      string      `db:"owner_id"`
	Name         string      `db:"name"`
	Organization string      `db:"organization"`
	IssueMonth   int         `db:"issue_month"`
	IssueYear    int         `db:"issue_year"`
	Expires      bool        `db:"expires"`
	ExpiryDate   null.Time   `db:"expiry_date"`
	Category     string      `db:"category"`
	Level        string      `db:"level"`
	EvidenceKind string      `db:"evidence_kind"`
	EvidenceRef  null.String `db:"evidence_ref"`
	ContentHash  null.String `db:"content_hash"`
	Status       string      `db:"status"`
	Points       int         `db:"points"`
	Comments     null.JSON   `db:"comments"`
	EventID      null.String `db:"event_id"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
}

func (repo certificateRepository) row(cert certificate.Certificate) (certificateRow, error) {
	row := certificateRow{
		ID:           cert.ID,
		OwnerID:      cert.OwnerID,
		Name:         cert.Name,
		Organization: cert.Organization,
		IssueMonth:   cert.IssueMonth,
		IssueYear:    cert.IssueYear,
		Expires:      cert.Expires,
		ExpiryDate:   null.NewTime(cert.ExpiryDate.UTC(), !cert.ExpiryDate.IsZero()),
		Category:     string(cert.Category),
		Level:        string(cert.Level),
		EvidenceKind: string(cert.EvidenceKind),
		EvidenceRef:  null.NewString(cert.EvidenceRef, cert.EvidenceRef != ""),
		ContentHash:  null.NewString(cert.ContentHash, cert.ContentHash != ""),
		Status:       string(cert.Status),
		Points:       cert.Points,
		EventID:      null.NewString(cert.EventID, cert.EventID != ""),
		CreatedAt:    null.NewTime(cert.CreatedAt.UTC(), !cert.CreatedAt.IsZero()),
		UpdatedAt:    null.NewTime(cert.UpdatedAt.UTC(), !cert.UpdatedAt.IsZero()),
	}
	if len(cert.Comments) > 0 {
		raw, err := json.Marshal(cert.Comments)
		if err != nil {
			return certificateRow{}, errors.Wrap(err, "encoding review comments")
		}
		row.Comments = null.JSONFrom(raw)
	}
	return row, nil
}

func (repo certificateRepository) unrow(row certificateRow) (certificate.Certificate, error) {
	cert := certificate.Certificate{
		ID:           row.ID,
		OwnerID:      row.OwnerID,
		Name:         row.Name,
		Organization: row.Organization,
		IssueMonth:   row.IssueMonth,
		IssueYear:    row.IssueYear,
		Expires:      row.Expires,
		ExpiryDate:   row.ExpiryDate.Time,
		Category:     certificate.Category(row.Category),
		Level:        certificate.Level(row.Level),
		EvidenceKind: certificate.EvidenceKind(row.EvidenceKind),
		EvidenceRef:  row.EvidenceRef.String,
		ContentHash:  row.ContentHash.String,
		Status:       certificate.Status(row.Status),
		Points:       row.Points,
		EventID:      row.EventID.String,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
	if row.Comments.Valid {
		if err := json.Unmarshal(row.Comments.JSON, &cert.Comments); err != nil {
			return certificate.Certificate{}, errors.Wrap(err, "decoding review comments")
		}
	}
	return cert, nil
}

func (repo certificateRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return certificate.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const certificateColumns = `id, owner_id, name, organization, issue_month, issue_year, expires, expiry_date,
	category, level, evidence_kind, evidence_ref, content_hash, status, points, comments, event_id,
	created_at, updated_at`

const certificateInsert = `INSERT INTO certificate (` + certificateColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

func (repo certificateRepository) insertArgs(row certificateRow) []interface{} {
	return []interface{}{
		row.ID, row.OwnerID, row.Name, row.Organization, row.IssueMonth, row.IssueYear,
		row.Expires, row.ExpiryDate, row.Category, row.Level, row.EvidenceKind, row.EvidenceRef,
		row.ContentHash, row.Status, row.Points, row.Comments, row.EventID, row.CreatedAt, row.UpdatedAt,
	}
}

func (repo certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	cert.ID = uuid.New().String()
	row, err := repo.row(cert)
	if err != nil {
		return certificate.Certificate{}, err
	}
	if _, err := repo.exec.ExecContext(ctx, certificateInsert, repo.insertArgs(row)...); err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return cert, nil
}

func (repo certificateRepository) CreateEventCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, bool, error) {
	cert.ID = uuid.New().String()
	row, err := repo.row(cert)
	if err != nil {
		return certificate.Certificate{}, false, err
	}

	// unique (event_id, owner_id): a lost insert means a prior run already
	// synthesized this certificate; fetch and return it unchanged
	q := certificateInsert + ` ON CONFLICT (event_id, owner_id) DO NOTHING`
	res, err := repo.exec.ExecContext(ctx, q, repo.insertArgs(row)...)
	if err != nil {
		return certificate.Certificate{}, false, errors.Wrap(err, "inserting event certificate")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt > 0 {
		return cert, true, nil
	}

	var existing certificateRow
	sel := `SELECT ` + certificateColumns + ` FROM certificate WHERE event_id = $1 AND owner_id = $2`
	if err := repo.exec.GetContext(ctx, &existing, sel, row.EventID, row.OwnerID); err != nil {
		return certificate.Certificate{}, false, repo.trapNoRowsErr(err, "finding event certificate")
	}
	c, err := repo.unrow(existing)
	return c, false, err
}

func (repo certificateRepository) GetCertificate(ctx context.Context, id string) (certificate.Certificate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	var row certificateRow
	q := `SELECT ` + certificateColumns + ` FROM certificate WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return certificate.Certificate{}, repo.trapNoRowsErr(err, "finding certificate")
	}
	return repo.unrow(row)
}

func (repo certificateRepository) QueryCertificatesByOwner(ctx context.Context, ownerID string) ([]certificate.Certificate, error) {
	var rows []certificateRow
	q := `SELECT ` + certificateColumns + ` FROM certificate WHERE owner_id = $1 ORDER BY created_at DESC`
	if err := repo.exec.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "querying certificates")
	}
	certs := make([]certificate.Certificate, 0, len(rows))
	for _, row := range rows {
		cert, err := repo.unrow(row)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func (repo certificateRepository) UpdateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	row, err := repo.row(cert)
	if err != nil {
		return certificate.Certificate{}, err
	}
	q := `UPDATE certificate SET
		name = $2, organization = $3, issue_month = $4, issue_year = $5, expires = $6, expiry_date = $7,
		category = $8, level = $9, evidence_kind = $10, evidence_ref = $11, content_hash = $12,
		status = $13, points = $14, comments = $15, updated_at = $16
		WHERE id = $1`
	res, err := repo.exec.ExecContext(ctx, q,
		row.ID, row.Name, row.Organization, row.IssueMonth, row.IssueYear, row.Expires, row.ExpiryDate,
		row.Category, row.Level, row.EvidenceKind, row.EvidenceRef, row.ContentHash,
		row.Status, row.Points, row.Comments, row.UpdatedAt)
	if err != nil {
		return certificate.Certificate{}, errors.Wrap(err, "updating certificate")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	return cert, nil
}

func (repo certificateRepository) DeleteCertificate(ctx context.Context, id string) error {
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM certificate WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting certificate")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return certificate.ErrNotFound
	}
	return nil
}
