package cart

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/shopframes/internal/activity"
	"github.com/ashureev/shopframes/internal/assets"
	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/session"
	"github.com/ashureev/shopframes/internal/store"
	"github.com/ashureev/shopframes/internal/wizard"
)

const sid = "0192f3a4-5b6c-7d8e-9f01-23456789abcd"

type fakeCatalog struct {
	store    *domain.Store
	products []*domain.Product
}

func (c *fakeCatalog) GetStore(_ context.Context, id string) (*domain.Store, error) {
	if c.store == nil || id != c.store.ID {
		return nil, store.ErrNotFound
	}
	return c.store, nil
}

func (c *fakeCatalog) ListProducts(_ context.Context, _ string) ([]*domain.Product, error) {
	return c.products, nil
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		store: &domain.Store{ID: "s1", ShopDomain: "corner.myshopify.com"},
		products: []*domain.Product{
			{ID: "p1", Title: "Mug", PriceCents: 1200, Status: domain.ProductActive, ShopifyVariantID: "101"},
			{ID: "p2", Title: "Hat", PriceCents: 2500, Status: domain.ProductDraft, ShopifyVariantID: "102"},
			{ID: "p3", Title: "Tee", PriceCents: 2000, Status: domain.ProductActive, ShopifyVariantID: "103"},
		},
	}
}

func newRunner(t *testing.T, catalog *fakeCatalog) (*wizard.Runner[*Record], *activity.Hub) {
	t.Helper()
	set, err := assets.Load("https://cdn.example", "")
	require.NoError(t, err)
	hub := activity.NewHub(10)
	r := wizard.NewRunner[*Record](New(catalog, set, hub, nil), wizard.RunnerConfig{
		Store:   session.NewMemoryStore(nil),
		IDs:     wizard.NewFixedGenerator(sid),
		BaseURL: "https://api.example",
	})
	return r, hub
}

func at(step, index string) url.Values {
	q := url.Values{"step": {step}, "sessionId": {sid}}
	if index != "" {
		q.Set("index", index)
	}
	return q
}

func TestCart_Checkout(t *testing.T) {
	ctx := context.Background()
	r, hub := newRunner(t, newCatalog())

	doc, err := r.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Mug ($12.00)", doc.Title)

	// Drafts are skipped, so next from the mug lands on the tee.
	doc, err = r.Advance(ctx, "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 2})
	require.NoError(t, err)
	assert.Equal(t, "Tee ($20.00)", doc.Title)

	for i := 0; i < 2; i++ {
		doc, err = r.Advance(ctx, "s1", at("1", "1"), wizard.Input{Button: 3})
		require.NoError(t, err)
	}
	assert.Equal(t, "View cart (2)", doc.Buttons[3].Label)
	_, err = r.Advance(ctx, "s1", at("1", ""), wizard.Input{Button: 3})
	require.NoError(t, err)

	doc, err = r.Advance(ctx, "s1", at("1", "1"), wizard.Input{Button: 4})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "step=2")
	assert.Equal(t, "Cart: 3 items, $52.00", doc.Title)
	require.Len(t, doc.Buttons, 3)
	assert.Equal(t, frame.ActionLink, doc.Buttons[2].Action)
	assert.Equal(t, "https://corner.myshopify.com/cart/103:2,101:1", doc.Buttons[2].Target)

	// Back keeps the carousel where it was.
	doc, err = r.Advance(ctx, "s1", at("2", "1"), wizard.Input{Button: 1})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "index=1")
	assert.Contains(t, doc.PostURL, "step=1")

	events := hub.Since("s1", 0)
	require.Len(t, events, 3)
	assert.Equal(t, activity.TypeCartAdd, events[0].Type)
	assert.Equal(t, "p3", events[0].ProductID)
	assert.Equal(t, "3", events[2].Data["units"])
}

func TestCart_EmptyCart(t *testing.T) {
	ctx := context.Background()
	r, _ := newRunner(t, newCatalog())

	_, err := r.Advance(ctx, "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 3})
	require.NoError(t, err)
	doc, err := r.Advance(ctx, "s1", at("2", ""), wizard.Input{Button: 2})
	require.NoError(t, err)
	assert.Equal(t, "Your cart is empty", doc.Title)
	require.Len(t, doc.Buttons, 1)
	assert.Equal(t, "Keep shopping", doc.Buttons[0].Label)

	doc, err = r.Advance(ctx, "s1", at("2", ""), wizard.Input{Button: 1})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "step=1")
}

func TestCart_UnresolvableCheckout(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog()
	catalog.store.ShopDomain = ""
	r, _ := newRunner(t, catalog)

	_, err := r.Advance(ctx, "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 3})
	require.NoError(t, err)
	doc, err := r.Advance(ctx, "s1", at("1", ""), wizard.Input{Button: 4})
	require.NoError(t, err)
	assert.Equal(t, "Checkout is unavailable", doc.Title)
	assert.Equal(t, "https://cdn.example/cart/failure.svg", doc.Image)
	require.Len(t, doc.Buttons, 1)
	assert.Equal(t, "Try again", doc.Buttons[0].Label)
}

func TestCart_NoProducts(t *testing.T) {
	catalog := newCatalog()
	catalog.products = nil
	r, hub := newRunner(t, catalog)

	doc, err := r.Advance(context.Background(), "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 3})
	require.NoError(t, err)
	assert.Equal(t, "Nothing for sale yet", doc.Title)
	assert.Empty(t, hub.Since("s1", 0))
}

func TestPermalink(t *testing.T) {
	s := &domain.Store{ID: "s1", ShopDomain: "https://corner.myshopify.com/"}
	products := []*domain.Product{
		{ID: "p1", PriceCents: 100, ShopifyVariantID: "101"},
		{ID: "p2", PriceCents: 250},
	}

	link, total, err := Permalink(s, products, []Line{{ProductID: "p1", Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, "https://corner.myshopify.com/cart/101:3", link)
	assert.Equal(t, int64(300), total)

	_, _, err = Permalink(s, products, []Line{{ProductID: "p2", Quantity: 1}})
	assert.ErrorIs(t, err, errNoCheckout)

	_, _, err = Permalink(s, products, []Line{{ProductID: "gone", Quantity: 1}})
	assert.ErrorIs(t, err, errNoCheckout)
}

func TestRecord(t *testing.T) {
	r := &Record{}
	require.NoError(t, r.Set("add", "p1"))
	r.Add("p1")
	r.Add("p2")
	assert.Equal(t, []Line{{"p1", 2}, {"p2", 1}}, r.Lines)
	assert.Equal(t, 3, r.Count())
	assert.Error(t, r.Set("remove", "p1"))

	c := r.Clone()
	c.Lines[0].Quantity = 9
	assert.Equal(t, 2, r.Lines[0].Quantity)
}
