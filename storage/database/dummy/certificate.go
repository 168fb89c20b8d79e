package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/meridian-edu/meridian/core/certificate"
)

type certificateRepository struct {
	db *certificateTable
}

var _ certificate.Repository = (*certificateRepository)(nil) // interface compliance check

func NewCertificateRepository(db *DB) certificate.Repository {
	return &certificateRepository{db: db.certificate}
}

func (repo *certificateRepository) CreateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cert.ID = uuid.New().String()
	repo.db.table[cert.ID] = &cert
	return cert, nil
}

func (repo *certificateRepository) CreateEventCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	// unique (event, owner): a retry returns the existing record unchanged
	for _, c := range repo.db.table {
		if c.EventID == cert.EventID && c.OwnerID == cert.OwnerID {
			return *c, false, nil
		}
	}
	cert.ID = uuid.New().String()
	repo.db.table[cert.ID] = &cert
	return cert, true, nil
}

func (repo *certificateRepository) GetCertificate(ctx context.Context, id string) (certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if cert, ok := repo.db.table[id]; ok {
		return *cert, nil
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (repo *certificateRepository) QueryCertificatesByOwner(ctx context.Context, ownerID string) ([]certificate.Certificate, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]certificate.Certificate, 0)
	for _, cert := range repo.db.table {
		if cert.OwnerID == ownerID {
			res = append(res, *cert)
		}
	}
	return res, nil
}

func (repo *certificateRepository) UpdateCertificate(ctx context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[cert.ID]; !ok {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	repo.db.table[cert.ID] = &cert
	return cert, nil
}

func (repo *certificateRepository) DeleteCertificate(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return certificate.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
