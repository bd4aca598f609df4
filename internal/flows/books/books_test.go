package books

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/shopframes/internal/assets"
	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/session"
	"github.com/ashureev/shopframes/internal/store"
	"github.com/ashureev/shopframes/internal/wizard"
)

const sid = "0192f3a4-5b6c-7d8e-9f01-23456789abcd"

type fakeCatalog struct {
	products []*domain.Product
	queries  []string
}

func newCatalog(n int) *fakeCatalog {
	c := &fakeCatalog{}
	for i := 0; i < n; i++ {
		c.products = append(c.products, &domain.Product{
			ID:         fmt.Sprintf("p%d", i),
			StoreID:    "s1",
			Title:      fmt.Sprintf("Space Exploration Vol. %d", i+1),
			PriceCents: 1500,
			Status:     domain.ProductActive,
		})
	}
	return c
}

func (c *fakeCatalog) GetStore(_ context.Context, id string) (*domain.Store, error) {
	if id != "s1" {
		return nil, store.ErrNotFound
	}
	return &domain.Store{ID: id}, nil
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	for _, p := range c.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (c *fakeCatalog) SearchProducts(_ context.Context, _, query string, limit int) ([]*domain.Product, error) {
	c.queries = append(c.queries, query)
	var out []*domain.Product
	for _, p := range c.products {
		if strings.Contains(strings.ToLower(p.Title), strings.ToLower(query)) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func newRunner(t *testing.T, catalog *fakeCatalog) *wizard.Runner[*Record] {
	t.Helper()
	set, err := assets.Load("https://cdn.example", "")
	require.NoError(t, err)
	return wizard.NewRunner[*Record](New(catalog, set, "https://shop.example", nil), wizard.RunnerConfig{
		Store:   session.NewMemoryStore(nil),
		IDs:     wizard.NewFixedGenerator(sid),
		BaseURL: "https://api.example",
	})
}

func results(index string) url.Values {
	q := url.Values{"step": {"2"}, "sessionId": {sid}}
	if index != "" {
		q.Set("index", index)
	}
	return q
}

func TestBooks_Pagination(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog(12)
	r := newRunner(t, catalog)

	doc, err := r.Advance(ctx, "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 1, Text: "space exploration"})
	require.NoError(t, err)
	assert.Equal(t, []string{"space exploration"}, catalog.queries)
	assert.Equal(t, "https://api.example/frames/books/s1?sessionId="+sid+"&step=2", doc.PostURL)
	assert.Equal(t, "Space Exploration Vol. 1 (1/10)", doc.Title)
	require.Len(t, doc.Buttons, 4)
	assert.Equal(t, "https://shop.example/products/p0", doc.Buttons[2].Target)

	doc, err = r.Advance(ctx, "s1", results(""), wizard.Input{Button: 2})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "index=1")
	assert.Equal(t, "Space Exploration Vol. 2 (2/10)", doc.Title)

	doc, err = r.Advance(ctx, "s1", results(""), wizard.Input{Button: 1})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "index=9")
	assert.Equal(t, "Space Exploration Vol. 10 (10/10)", doc.Title)

	doc, err = r.Advance(ctx, "s1", results("9"), wizard.Input{Button: 2})
	require.NoError(t, err)
	assert.NotContains(t, doc.PostURL, "index")

	doc, err = r.Advance(ctx, "s1", results("4"), wizard.Input{Button: 4})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example/frames/books/s1?sessionId="+sid+"&step=1", doc.PostURL)
}

func TestBooks_NoResults(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, newCatalog(3))

	doc, err := r.Advance(ctx, "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 1, Text: "cookbooks"})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "step=1")
	assert.Contains(t, doc.PostURL, "inputError=true")
	assert.Equal(t, "https://cdn.example/books/no-results.svg", doc.Image)
}

func TestBooks_EmptyQuery(t *testing.T) {
	catalog := newCatalog(3)
	r := newRunner(t, catalog)

	doc, err := r.Advance(context.Background(), "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 1})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "inputError=true")
	assert.Empty(t, catalog.queries)
}

func TestBooks_ExpiredHits(t *testing.T) {
	r := newRunner(t, newCatalog(3))

	// Unknown session at the results step renders the no-results view with
	// the same four controls.
	doc, err := r.Advance(context.Background(), "s1", results("2"), wizard.Input{Button: 2})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/books/no-results.svg", doc.Image)
	require.Len(t, doc.Buttons, 4)
	assert.Equal(t, "https://shop.example/stores/s1", doc.Buttons[2].Target)
}

func TestBooks_FAQ(t *testing.T) {
	ctx := context.Background()
	r := newRunner(t, newCatalog(3))

	doc, err := r.Advance(ctx, "s1", url.Values{"step": {"1"}}, wizard.Input{Button: 2})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "faq=true")
	assert.Equal(t, "https://cdn.example/books/faq-1.svg", doc.Image)

	faq := url.Values{"step": {"1"}, "sessionId": {sid}, "faq": {"true"}}
	doc, err = r.Advance(ctx, "s1", faq, wizard.Input{Button: 1})
	require.NoError(t, err)
	assert.Contains(t, doc.PostURL, "slide=2")
	assert.Equal(t, "https://cdn.example/books/faq-3.svg", doc.Image)

	doc, err = r.Advance(ctx, "s1", faq, wizard.Input{Button: 3})
	require.NoError(t, err)
	assert.NotContains(t, doc.PostURL, "faq")
	assert.Equal(t, []string{"Search", "FAQ"}, []string{doc.Buttons[0].Label, doc.Buttons[1].Label})
}

func TestRecord_CloneCopiesHits(t *testing.T) {
	r := &Record{Query: "q", Hits: []string{"a", "b"}}
	c := r.Clone()
	c.Hits[0] = "z"
	assert.Equal(t, "a", r.Hits[0])
	assert.Error(t, r.Set("hits", "x"))
}
