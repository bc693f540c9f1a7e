package product

import "context"

// Repository persists product metadata.
type Repository interface {
	// List returns all products, newest first.
	List(ctx context.Context) ([]Product, error)
	// GetByID returns ErrNotFound for unknown or malformed ids.
	GetByID(ctx context.Context, id string) (*Product, error)
	// Create stores p and fills in ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, p *Product) error
	// Update overwrites the stored record and refreshes UpdatedAt.
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
}
