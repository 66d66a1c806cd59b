package storage

import (
	"context"

	"github.com/hperssn/cadence/internal/domain"
)

// Repository is the durable collection of finished sessions. Unknown ids
// yield domain.ErrNotFound, invalid payloads a *domain.ValidationError and
// storage failures a *domain.PersistenceError.
type Repository interface {
	Create(ctx context.Context, in domain.SessionInput) (domain.SessionRecord, error)

	ReadAll(ctx context.Context) ([]domain.SessionRecord, error)

	ReadByID(ctx context.Context, id string) (domain.SessionRecord, error)

	Update(ctx context.Context, id string, patch domain.SessionPatch) (domain.SessionRecord, error)

	Delete(ctx context.Context, id string) (domain.SessionRecord, error)

	Close() error
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
