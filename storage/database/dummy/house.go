package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-edu/meridian/core/house"
)

type houseRepository struct {
	db     *houseTable
	ledger *ledgerTable
	certs  *certificateTable
}

var _ house.Repository = (*houseRepository)(nil) // interface compliance check

func NewHouseRepository(db *DB) house.Repository {
	return &houseRepository{db: db.house, ledger: db.ledger, certs: db.certificate}
}

func (repo *houseRepository) CreateHouse(ctx context.Context, h house.House) (house.House, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.Name == h.Name {
			return house.House{}, house.ErrNameExists
		}
	}
	h.ID = uuid.New().String()
	repo.db.table[h.ID] = &h
	return h, nil
}

func (repo *houseRepository) QueryHouses(ctx context.Context) ([]house.House, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	houses := make([]house.House, 0, len(repo.db.table))
	for _, h := range repo.db.table {
		houses = append(houses, *h)
	}
	return houses, nil
}

func (repo *houseRepository) GetHouse(ctx context.Context, id string) (house.House, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if h, ok := repo.db.table[id]; ok {
		return *h, nil
	}
	return house.House{}, house.ErrNotFound
}

func (repo *houseRepository) GetHouseByCoordinator(ctx context.Context, coordinatorID string) (house.House, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, h := range repo.db.table {
		if h.CoordinatorID == coordinatorID {
			return *h, nil
		}
	}
	return house.House{}, house.ErrNotFound
}

func (repo *houseRepository) UpdateHouse(ctx context.Context, h house.House, coordinatorID *string) (house.House, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[h.ID]
	if !ok {
		return house.House{}, house.ErrNotFound
	}

	if h.Name != "" {
		orig.Name = h.Name
	}
	if h.Color != "" {
		orig.Color = h.Color
	}
	if h.Description != "" {
		orig.Description = h.Description
	}
	if h.ImageURL != "" {
		orig.ImageURL = h.ImageURL
	}
	if h.Social != (house.SocialLinks{}) {
		orig.Social = h.Social
	}
	if !h.UpdatedAt.IsZero() {
		orig.UpdatedAt = h.UpdatedAt
	}
	if coordinatorID != nil {
		orig.CoordinatorID = *coordinatorID
	}
	return *orig, nil
}

func (repo *houseRepository) DeleteHousesByID(ctx context.Context, ids []string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *houseRepository) AppendLedgerEntry(ctx context.Context, entry house.LedgerEntry) (house.LedgerEntry, error) {
	repo.ledger.Lock()
	defer repo.ledger.Unlock()

	if repo.ledger.byCert[entry.CertificateID] {
		return house.LedgerEntry{}, house.ErrDuplicateEntry
	}
	entry.ID = uuid.New().String()
	repo.ledger.entries = append(repo.ledger.entries, entry)
	repo.ledger.byCert[entry.CertificateID] = true
	return entry, nil
}

func (repo *houseRepository) QueryLedger(ctx context.Context, filter house.LedgerFilter) ([]house.LedgerView, error) {
	repo.ledger.RLock()
	defer repo.ledger.RUnlock()
	repo.certs.RLock()
	defer repo.certs.RUnlock()

	res := make([]house.LedgerView, 0, len(repo.ledger.entries))
	for _, entry := range repo.ledger.entries {
		if filter.HouseID != "" && entry.HouseID != filter.HouseID {
			continue
		}
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		view := house.LedgerView{LedgerEntry: entry}
		if cert, ok := repo.certs.table[entry.CertificateID]; ok {
			view.Category = string(cert.Category)
			view.IssueYear = cert.IssueYear
			view.IssueMonth = cert.IssueMonth
		}
		res = append(res, view)
	}
	return res, nil
}
