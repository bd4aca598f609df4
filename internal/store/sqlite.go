package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database tuned for concurrent readers.
// The returned handle is shared by the catalog and the session cache.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the sweeper and request handlers interleave without SQLITE_BUSY storms.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewSQLite creates a catalog repository on an open database handle.
func NewSQLite(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS stores (
		store_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		shop_domain TEXT NOT NULL DEFAULT '',
		owner_email TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		product_id TEXT PRIMARY KEY,
		store_id TEXT NOT NULL REFERENCES stores(store_id) ON DELETE CASCADE,
		position INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_cents INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'USD',
		image_url TEXT NOT NULL DEFAULT '',
		wallet_address TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		shopify_variant_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_products_store ON products(store_id, position);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		tx_hash TEXT NOT NULL UNIQUE,
		buyer_fid INTEGER NOT NULL DEFAULT 0,
		buyer_email TEXT NOT NULL DEFAULT '',
		amount_wei TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_product ON transactions(product_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const storeColumns = `store_id, name, image_url, shop_domain, owner_email, created_at, updated_at`

func scanStore(row interface{ Scan(...any) error }) (*domain.Store, error) {
	var st domain.Store
	var createdAt, updatedAt int64
	if err := row.Scan(&st.ID, &st.Name, &st.ImageURL, &st.ShopDomain, &st.OwnerEmail, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st.CreatedAt = time.Unix(createdAt, 0)
	st.UpdatedAt = time.Unix(updatedAt, 0)
	return &st, nil
}

// GetStore retrieves a store by ID.
func (s *SQLiteStore) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storeColumns+` FROM stores WHERE store_id = ?`, storeID)
	st, err := scanStore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store %s: %w", storeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan store row: %w", err)
	}
	return st, nil
}

// ListStores returns all stores ordered by name.
func (s *SQLiteStore) ListStores(ctx context.Context) ([]*domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores ORDER BY name, store_id`)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer closeRows(rows, "stores")

	var stores []*domain.Store
	for rows.Next() {
		st, err := scanStore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan store row: %w", err)
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stores: %w", err)
	}
	return stores, nil
}

// UpsertStore creates or updates a store record.
func (s *SQLiteStore) UpsertStore(ctx context.Context, st *domain.Store) error {
	query := `
	INSERT INTO stores (store_id, name, image_url, shop_domain, owner_email, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(store_id) DO UPDATE SET
		name = excluded.name,
		image_url = excluded.image_url,
		shop_domain = excluded.shop_domain,
		owner_email = excluded.owner_email,
		updated_at = excluded.updated_at`

	now := time.Now()
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, query,
		st.ID, st.Name, st.ImageURL, st.ShopDomain, st.OwnerEmail,
		st.CreatedAt.Unix(), st.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert store: %w", err)
	}
	return nil
}

const productColumns = `product_id, store_id, position, title, description, price_cents, currency,
	image_url, wallet_address, contact_email, status, shopify_variant_id, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var createdAt, updatedAt int64
	err := row.Scan(
		&p.ID, &p.StoreID, &p.Position, &p.Title, &p.Description, &p.PriceCents, &p.Currency,
		&p.ImageURL, &p.WalletAddress, &p.ContactEmail, &p.Status, &p.ShopifyVariantID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

// GetProduct retrieves a product by ID.
func (s *SQLiteStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE product_id = ?`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan product row: %w", err)
	}
	return p, nil
}

// ListProducts returns a store's products in display order.
func (s *SQLiteStore) ListProducts(ctx context.Context, storeID string) ([]*domain.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE store_id = ? ORDER BY position, product_id`,
		storeID)
}

// SearchProducts returns up to limit active products of a store whose title or
// description contains every whitespace-separated term of query.
func (s *SQLiteStore) SearchProducts(ctx context.Context, storeID, query string, limit int) ([]*domain.Product, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + productColumns + ` FROM products WHERE store_id = ? AND status = 'active'`)
	args := []any{storeID}
	for _, term := range terms {
		b.WriteString(` AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(term) + "%"
		args = append(args, pattern, pattern)
	}
	b.WriteString(` ORDER BY position, product_id LIMIT ?`)
	args = append(args, limit)

	return s.queryProducts(ctx, b.String(), args...)
}

func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

func (s *SQLiteStore) queryProducts(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer closeRows(rows, "products")

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

// UpsertProduct creates or updates a product record.
func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *domain.Product) error {
	query := `
	INSERT INTO products (` + productColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(product_id) DO UPDATE SET
		store_id = excluded.store_id,
		position = excluded.position,
		title = excluded.title,
		description = excluded.description,
		price_cents = excluded.price_cents,
		currency = excluded.currency,
		image_url = excluded.image_url,
		wallet_address = excluded.wallet_address,
		contact_email = excluded.contact_email,
		status = excluded.status,
		shopify_variant_id = excluded.shopify_variant_id,
		updated_at = excluded.updated_at`

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.Status == "" {
		p.Status = domain.ProductActive
	}

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.StoreID, p.Position, p.Title, p.Description, p.PriceCents, p.Currency,
		p.ImageURL, p.WalletAddress, p.ContactEmail, p.Status, p.ShopifyVariantID,
		p.CreatedAt.Unix(), p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// CreateTransaction records a purchase.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	query := `
	INSERT INTO transactions (transaction_id, product_id, store_id, tx_hash, buyer_fid, buyer_email, amount_wei, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		tx.ID, tx.ProductID, tx.StoreID, tx.TxHash, tx.BuyerFID, tx.BuyerEmail, tx.AmountWei,
		tx.CreatedAt.Unix(),
	)
	if shared.IsSQLiteUniqueError(err) {
		return fmt.Errorf("transaction %s: %w", tx.TxHash, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// ListTransactions returns a product's transactions, newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, productID string) ([]*domain.Transaction, error) {
	query := `
		SELECT transaction_id, product_id, store_id, tx_hash, buyer_fid, buyer_email, amount_wei, created_at
		FROM transactions WHERE product_id = ? ORDER BY created_at DESC, transaction_id`

	rows, err := s.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer closeRows(rows, "transactions")

	var txs []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var createdAt int64
		if err := rows.Scan(
			&tx.ID, &tx.ProductID, &tx.StoreID, &tx.TxHash, &tx.BuyerFID,
			&tx.BuyerEmail, &tx.AmountWei, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		tx.CreatedAt = time.Unix(createdAt, 0)
		txs = append(txs, &tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "table", what, "error", err)
	}
}
