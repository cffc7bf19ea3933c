package storage

import "github.com/avendel/supportbot/internal/models"

// Persister is the durability boundary for the whole store aggregate.
// Every mutation rewrites the full document; Load never fails on a
// corrupt or missing document, it recovers to a fresh store instead.
type Persister interface {
	Load() (*models.Store, error)
	Persist(store *models.Store) error
	Close() error
}
