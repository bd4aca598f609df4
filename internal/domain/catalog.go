// Package domain contains core domain types for the shopframes catalog.
package domain

import (
	"strings"
	"time"
)

// Product statuses.
const (
	ProductActive   = "active"
	ProductDraft    = "draft"
	ProductSoldOut  = "sold_out"
	ProductArchived = "archived"
)

// Store is a merchant storefront with an ordered product list.
type Store struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"image_url,omitempty"`
	ShopDomain string    `json:"shop_domain,omitempty"` // Shopify domain used for cart permalinks.
	OwnerEmail string    `json:"owner_email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Product is a single purchasable listing.
type Product struct {
	ID               string    `json:"id"`
	StoreID          string    `json:"store_id"`
	Position         int       `json:"position"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	PriceCents       int64     `json:"price_cents"`
	Currency         string    `json:"currency"`
	ImageURL         string    `json:"image_url,omitempty"`
	WalletAddress    string    `json:"wallet_address,omitempty"`
	ContactEmail     string    `json:"contact_email,omitempty"`
	Status           string    `json:"status"`
	ShopifyVariantID string    `json:"shopify_variant_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsPurchasable returns true if the product can receive an onchain payment.
func (p *Product) IsPurchasable() bool {
	return p.Status == ProductActive && strings.TrimSpace(p.WalletAddress) != "" && p.PriceCents > 0
}

// Transaction records a completed marketplace purchase.
type Transaction struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	StoreID    string    `json:"store_id"`
	TxHash     string    `json:"tx_hash"`
	BuyerFID   int64     `json:"buyer_fid,omitempty"`
	BuyerEmail string    `json:"buyer_email"`
	AmountWei  string    `json:"amount_wei,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
