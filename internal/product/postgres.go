package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const productColumns = `id, name, price, description, category, image_url, image_key, image_storage, created_at, updated_at`

// PostgresRepository stores products in the products table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository with the given connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.Category,
		&p.ImageURL, &p.ImageKey, &p.ImageStorage, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// List returns all products ordered by creation time, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// GetByID fetches a product by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	p, err := scanProduct(r.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// Create inserts p and fills in the generated columns.
func (r *PostgresRepository) Create(ctx context.Context, p *Product) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO products (name, price, description, category, image_url, image_key, image_storage)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		p.Name, p.Price, p.Description, p.Category, p.ImageURL, p.ImageKey, p.ImageStorage,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of p.
func (r *PostgresRepository) Update(ctx context.Context, p *Product) error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return ErrNotFound
	}

	err := r.db.QueryRow(ctx,
		`UPDATE products
		 SET name = $2, price = $3, description = $4, category = $5,
		     image_url = $6, image_key = $7, image_storage = $8, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		p.ID, p.Name, p.Price, p.Description, p.Category, p.ImageURL, p.ImageKey, p.ImageStorage,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// Delete removes the product row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
