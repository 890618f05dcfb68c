package db

import (
	"errors"
	"sync/atomic"
)

var ErrNoDatabase = errors.New("database is not configured")

// Provider returns the database repositories should use right now.
type Provider interface {
	Current() Database
}

// Manager holds the active database.
type Manager struct {
	current atomic.Pointer[databaseHolder]
}

type databaseHolder struct {
	db Database
}

// NewManager creates a Manager serving database.
func NewManager(database Database) *Manager {
	m := &Manager{}
	m.current.Store(&databaseHolder{db: database})
	return m
}

// Current returns the active database instance.
func (m *Manager) Current() Database {
	if m == nil {
		return nil
	}
	holder := m.current.Load()
	if holder == nil {
		return nil
	}
	return holder.db
}

// CurrentDatabase fetches the current database instance from provider.
func CurrentDatabase(provider Provider) (Database, error) {
	if provider == nil {
		return nil, ErrNoDatabase
	}
	database := provider.Current()
	if database == nil {
		return nil, ErrNoDatabase
	}
	return database, nil
}
