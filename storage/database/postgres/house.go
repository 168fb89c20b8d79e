package pgrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/meridian-edu/meridian/core"
	"github.com/meridian-edu/meridian/core/house"
)

type houseRepository struct {
	exec core.DBExecutor
}

var _ house.Repository = (*houseRepository)(nil) // interface compliance check

func NewHouseRepository(exec core.DBExecutor) *houseRepository {
	return &houseRepository{exec: exec}
}

type houseRow struct {
	ID            string      `db:"id"`
	Name          string      `db:"name"`
	Color         string      `db:"color"`
	Description   null.String `db:"description"`
	ImageURL      null.String `db:"image_url"`
	CoordinatorID null.String `db:"coordinator_id"`
	Website       null.String `db:"website"`
	Instagram     null.String `db:"instagram"`
	Twitter       null.String `db:"twitter"`
	CreatedAt     null.Time   `db:"created_at"`
	UpdatedAt     null.Time   `db:"updated_at"`
}

func (repo houseRepository) row(h house.House) houseRow {
	return houseRow{
		ID:            h.ID,
		Name:          h.Name,
		Color:         h.Color,
		Description:   null.NewString(h.Description, h.Description != ""),
		ImageURL:      null.NewString(h.ImageURL, h.ImageURL != ""),
		CoordinatorID: null.NewString(h.CoordinatorID, h.CoordinatorID != ""),
		Website:       null.NewString(h.Social.Website, h.Social.Website != ""),
		Instagram:     null.NewString(h.Social.Instagram, h.Social.Instagram != ""),
		Twitter:       null.NewString(h.Social.Twitter, h.Social.Twitter != ""),
		CreatedAt:     null.NewTime(h.CreatedAt.UTC(), !h.CreatedAt.IsZero()),
		UpdatedAt:     null.NewTime(h.UpdatedAt.UTC(), !h.UpdatedAt.IsZero()),
	}
}

func (repo houseRepository) unrow(row houseRow) house.House {
	return house.House{
		ID:            row.ID,
		Name:          row.Name,
		Color:         row.Color,
		Description:   row.Description.String,
		ImageURL:      row.ImageURL.String,
		CoordinatorID: row.CoordinatorID.String,
		Social: house.SocialLinks{
			Website:   row.Website.String,
			Instagram: row.Instagram.String,
			Twitter:   row.Twitter.String,
		},
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

func (repo houseRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return house.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err is a psql unique constraint violation,
// optionally on a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

const houseColumns = `id, name, color, description, image_url, coordinator_id, website, instagram, twitter, created_at, updated_at`

func (repo houseRepository) CreateHouse(ctx context.Context, h house.House) (house.House, error) {
	h.ID = uuid.New().String()
	row := repo.row(h)
	q := `INSERT INTO house (` + houseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.exec.ExecContext(ctx, q,
		row.ID, row.Name, row.Color, row.Description, row.ImageURL, row.CoordinatorID,
		row.Website, row.Instagram, row.Twitter, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "house_name_key") {
			return house.House{}, house.ErrNameExists
		}
		return house.House{}, errors.Wrap(err, "inserting house")
	}
	return h, nil
}

func (repo houseRepository) QueryHouses(ctx context.Context) ([]house.House, error) {
	var rows []houseRow
	q := `SELECT ` + houseColumns + ` FROM house ORDER BY name`
	if err := repo.exec.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying houses")
	}
	houses := make([]house.House, 0, len(rows))
	for _, row := range rows {
		houses = append(houses, repo.unrow(row))
	}
	return houses, nil
}

func (repo houseRepository) GetHouse(ctx context.Context, id string) (house.House, error) {
	if _, err := uuid.Parse(id); err != nil {
		return house.House{}, house.ErrNotFound
	}
	var row houseRow
	q := `SELECT ` + houseColumns + ` FROM house WHERE id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, id); err != nil {
		return house.House{}, repo.trapNoRowsErr(err, "finding house")
	}
	return repo.unrow(row), nil
}

func (repo houseRepository) GetHouseByCoordinator(ctx context.Context, coordinatorID string) (house.House, error) {
	var row houseRow
	q := `SELECT ` + houseColumns + ` FROM house WHERE coordinator_id = $1`
	if err := repo.exec.GetContext(ctx, &row, q, coordinatorID); err != nil {
		return house.House{}, repo.trapNoRowsErr(err, "finding house by coordinator")
	}
	return repo.unrow(row), nil
}

func (repo houseRepository) UpdateHouse(ctx context.Context, h house.House, coordinatorID *string) (house.House, error) {
	var sets []string
	var args []interface{}
	set := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	row := repo.row(h)
	if h.Name != "" {
		set("name", row.Name)
	}
	if h.Color != "" {
		set("color", row.Color)
	}
	if h.Description != "" {
		set("description", row.Description)
	}
	if h.ImageURL != "" {
		set("image_url", row.ImageURL)
	}
	if h.Social != (house.SocialLinks{}) {
		set("website", row.Website)
		set("instagram", row.Instagram)
		set("twitter", row.Twitter)
	}
	if !h.UpdatedAt.IsZero() {
		set("updated_at", row.UpdatedAt)
	}
	if coordinatorID != nil {
		set("coordinator_id", null.NewString(*coordinatorID, *coordinatorID != ""))
	}
	if len(sets) == 0 {
		return repo.GetHouse(ctx, h.ID)
	}

	args = append(args, h.ID)
	q := fmt.Sprintf(`UPDATE house SET %s WHERE id = $%d RETURNING `+houseColumns,
		strings.Join(sets, ", "), len(args))

	var updated houseRow
	if err := repo.exec.GetContext(ctx, &updated, q, args...); err != nil {
		return house.House{}, repo.trapNoRowsErr(err, "updating house")
	}
	return repo.unrow(updated), nil
}

func (repo houseRepository) DeleteHousesByID(ctx context.Context, ids []string) (int, error) {
	res, err := repo.exec.ExecContext(ctx, `DELETE FROM house WHERE id = ANY($1)`, pq.StringArray(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting houses")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting houses")
	}
	return int(cnt), nil
}

func (repo houseRepository) AppendLedgerEntry(ctx context.Context, entry house.LedgerEntry) (house.LedgerEntry, error) {
	entry.ID = uuid.New().String()
	q := `INSERT INTO house_ledger (id, house_id, certificate_id, user_id, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := repo.exec.ExecContext(ctx, q,
		entry.ID, entry.HouseID, entry.CertificateID, entry.UserID, entry.Points, entry.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err, "house_ledger_certificate_id_key") {
			return house.LedgerEntry{}, house.ErrDuplicateEntry
		}
		return house.LedgerEntry{}, errors.Wrap(err, "appending ledger entry")
	}
	return entry, nil
}

func (repo houseRepository) QueryLedger(ctx context.Context, filter house.LedgerFilter) ([]house.LedgerView, error) {
	// LEFT JOIN: entries outlive their certificate
	q := `SELECT l.id, l.house_id, l.certificate_id, l.user_id, l.points, l.created_at,
		COALESCE(c.category, '') AS category,
		COALESCE(c.issue_year, 0) AS issue_year,
		COALESCE(c.issue_month, 0) AS issue_month
		FROM house_ledger l LEFT JOIN certificate c ON c.id = l.certificate_id`

	var conds []string
	var args []interface{}
	if filter.HouseID != "" {
		args = append(args, filter.HouseID)
		conds = append(conds, fmt.Sprintf("l.house_id = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("l.user_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY l.created_at"

	var views []house.LedgerView
	if err := repo.exec.SelectContext(ctx, &views, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying ledger")
	}
	return views, nil
}
