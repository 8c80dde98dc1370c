package storage

import (
	"context"
	"errors"

	"clipbind/internal/models"
)

// ErrBindingNotFound is returned when no binding exists for a content record.
var ErrBindingNotFound = errors.New("binding not found")

// Repository exposes the datastore operations required by the API handlers
// and the binding manager. Implementations must be safe for concurrent use.
type Repository interface {
	Ping(ctx context.Context) error

	// InsertBindingIfAbsent stores the binding unless the content record
	// already has one. The returned binding reflects what is durably stored,
	// and created reports whether this call performed the insert.
	InsertBindingIfAbsent(ctx context.Context, binding models.ContentVideoBinding) (models.ContentVideoBinding, bool, error)
	GetBinding(ctx context.Context, contentID int64) (models.ContentVideoBinding, error)
	// ReplaceBinding overwrites any existing binding for the content record.
	ReplaceBinding(ctx context.Context, binding models.ContentVideoBinding) (models.ContentVideoBinding, error)
	DeleteBinding(ctx context.Context, contentID int64) error
	// ListBindings returns every stored binding ordered by content record id.
	ListBindings(ctx context.Context) ([]models.ContentVideoBinding, error)

	Close(ctx context.Context) error
}
