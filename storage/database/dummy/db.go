// Package dummydb provides in-memory repositories with the same
// semantics as the postgres ones (uniqueness checks, conditional
// writes). It backs tests and local development.
package dummydb

import (
	"sync"

	"github.com/meridian-edu/meridian/core/certificate"
	"github.com/meridian-edu/meridian/core/event"
	"github.com/meridian-edu/meridian/core/house"
	"github.com/meridian-edu/meridian/core/user"
)

type (
	DB struct {
		user         *userTable
		certificate  *certificateTable
		house        *houseTable
		ledger       *ledgerTable
		event        *eventTable
		registration *registrationTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	certificateTable struct {
		sync.RWMutex
		table map[string]*certificate.Certificate
	}

	houseTable struct {
		sync.RWMutex
		table map[string]*house.House
	}

	ledgerTable struct {
		sync.RWMutex
		entries []house.LedgerEntry
		byCert  map[string]bool
	}

	eventTable struct {
		sync.RWMutex
		table map[string]*event.Event
	}

	registrationTable struct {
		sync.RWMutex
		rows []event.Registration
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		certificate:  &certificateTable{table: make(map[string]*certificate.Certificate)},
		house:        &houseTable{table: make(map[string]*house.House)},
		ledger:       &ledgerTable{byCert: make(map[string]bool)},
		event:        &eventTable{table: make(map[string]*event.Event)},
		registration: &registrationTable{},
	}
	return db, nil
}
