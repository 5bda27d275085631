package store

import (
	"context"

	"pact/internal/contract/models"
	id "pact/pkg/domain"
)

// Store persists contract aggregates. Load returns sentinel.ErrNotFound when
// the id is unknown. Save performs an optimistic concurrency check against
// the aggregate's Version and returns sentinel.ErrConflict when another
// writer got there first; on success the aggregate's Version is bumped in
// place.
type Store interface {
	Create(ctx context.Context, contract *models.Contract) error
	Load(ctx context.Context, contractID id.ContractID) (*models.Contract, error)
	Save(ctx context.Context, contract *models.Contract) error
	List(ctx context.Context) ([]*models.Contract, error)
}
