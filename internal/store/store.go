// Package store provides catalog persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/shopframes/internal/domain"
)

var (
	// ErrNotFound is returned when a store, product or transaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key (e.g. a transaction hash) already exists.
	ErrDuplicate = errors.New("duplicate")
)

// Repository defines the interface for persisting catalog data.
type Repository interface {
	// GetStore retrieves a store by ID.
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)

	// ListStores returns all stores ordered by name.
	ListStores(ctx context.Context) ([]*domain.Store, error)

	// UpsertStore creates or updates a store record.
	UpsertStore(ctx context.Context, s *domain.Store) error

	// GetProduct retrieves a product by ID.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)

	// ListProducts returns a store's products in display order.
	ListProducts(ctx context.Context, storeID string) ([]*domain.Product, error)

	// UpsertProduct creates or updates a product record.
	UpsertProduct(ctx context.Context, p *domain.Product) error

	// SearchProducts returns up to limit active products of a store matching query.
	SearchProducts(ctx context.Context, storeID, query string, limit int) ([]*domain.Product, error)

	// CreateTransaction records a purchase. Returns ErrDuplicate if the tx hash is known.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error

	// ListTransactions returns a product's transactions, newest first.
	ListTransactions(ctx context.Context, productID string) ([]*domain.Transaction, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
