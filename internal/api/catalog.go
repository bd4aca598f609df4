package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/store"
)

const maxCatalogBody = 256 << 10

// CatalogHandler serves the merchant catalog REST API.
type CatalogHandler struct {
	*Handler
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(base *Handler) *CatalogHandler {
	return &CatalogHandler{Handler: base}
}

// RegisterRoutes registers catalog routes.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/stores", h.ListStores)
		r.Post("/stores", h.PutStore)
		r.Get("/stores/{storeID}", h.GetStore)
		r.Get("/stores/{storeID}/products", h.ListProducts)
		r.Post("/stores/{storeID}/products", h.PutProduct)
		r.Get("/products/{productID}", h.GetProduct)
		r.Get("/products/{productID}/transactions", h.ListTransactions)
	})
}

// ListStores returns every store.
func (h *CatalogHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.repo.ListStores(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	if stores == nil {
		stores = []*domain.Store{}
	}
	JSON(w, http.StatusOK, stores)
}

// GetStore returns one store.
func (h *CatalogHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.GetStore(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

// PutStore creates or updates a store.
func (h *CatalogHandler) PutStore(w http.ResponseWriter, r *http.Request) {
	var s domain.Store
	if err := decodeJSON(w, r, maxCatalogBody, &s); err != nil {
		Error(w, http.StatusBadRequest, "invalid_body")
		return
	}
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	if s.ID == "" || s.Name == "" {
		Error(w, http.StatusBadRequest, "id and name are required")
		return
	}
	if err := h.repo.UpsertStore(r.Context(), &s); err != nil {
		h.storeError(w, err)
		return
	}
	h.logger.Info("Store saved", "store_id", s.ID)
	JSON(w, http.StatusOK, s)
}

// ListProducts returns a store's products in display order.
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	if _, err := h.repo.GetStore(r.Context(), storeID); err != nil {
		h.storeError(w, err)
		return
	}
	products, err := h.repo.ListProducts(r.Context(), storeID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}
	JSON(w, http.StatusOK, products)
}

// PutProduct creates or updates a product of a store.
func (h *CatalogHandler) PutProduct(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	if _, err := h.repo.GetStore(r.Context(), storeID); err != nil {
		h.storeError(w, err)
		return
	}

	var p domain.Product
	if err := decodeJSON(w, r, maxCatalogBody, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid_body")
		return
	}
	p.StoreID = storeID
	if msg := validateProduct(&p); msg != "" {
		Error(w, http.StatusBadRequest, msg)
		return
	}
	if err := h.repo.UpsertProduct(r.Context(), &p); err != nil {
		h.storeError(w, err)
		return
	}
	h.logger.Info("Product saved", "store_id", storeID, "product_id", p.ID)
	JSON(w, http.StatusOK, p)
}

func validateProduct(p *domain.Product) string {
	p.ID = strings.TrimSpace(p.ID)
	p.Title = strings.TrimSpace(p.Title)
	switch {
	case p.ID == "" || p.Title == "":
		return "id and title are required"
	case p.PriceCents < 0:
		return "price_cents must be >= 0"
	case p.WalletAddress != "" && !frame.IsAddress(p.WalletAddress):
		return "wallet_address must be a 0x address"
	}
	switch p.Status {
	case "", domain.ProductActive, domain.ProductDraft, domain.ProductSoldOut, domain.ProductArchived:
		return ""
	default:
		return "unknown status " + p.Status
	}
}

// GetProduct returns one product.
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

// ListTransactions returns a product's purchases, newest first.
func (h *CatalogHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if _, err := h.repo.GetProduct(r.Context(), productID); err != nil {
		h.storeError(w, err)
		return
	}
	txs, err := h.repo.ListTransactions(r.Context(), productID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if txs == nil {
		txs = []*domain.Transaction{}
	}
	JSON(w, http.StatusOK, txs)
}

func (h *CatalogHandler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		Error(w, http.StatusNotFound, "not_found")
		return
	}
	h.logger.Error("Catalog request failed", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
