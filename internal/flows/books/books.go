// Package books is the Frame wizard that searches a store's catalog and pages
// through the hits.
package books

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ashureev/shopframes/internal/assets"
	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/flows"
	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/pricing"
	"github.com/ashureev/shopframes/internal/wizard"
)

// Name is the flow's route segment.
const Name = "books"

// EffectSearch runs the stored query against the catalog.
const EffectSearch wizard.Effect = "search"

// MaxHits caps a search.
const MaxHits = 10

// Steps.
const (
	StepSearch wizard.Step = iota + 1
	StepResults
)

// Record holds the last query and the ids it matched.
type Record struct {
	Query string   `json:"query,omitempty"`
	Hits  []string `json:"hits,omitempty"`
}

// Set implements wizard.Record. Only the query is settable.
func (r *Record) Set(field, value string) error {
	if field != "query" {
		return fmt.Errorf("books: unknown field %q", field)
	}
	r.Query = value
	return nil
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	c := *r
	c.Hits = append([]string(nil), r.Hits...)
	return &c
}

var table = wizard.Table[*Record]{
	{Step: StepSearch, Button: 1}: wizard.Emit(EffectSearch, wizard.Advance[*Record]("query", nil)),
	{Step: StepSearch, Button: 2}: wizard.OpenFAQ[*Record](),

	{Step: StepResults, Button: 1}: wizard.PrevItem[*Record](),
	{Step: StepResults, Button: 2}: wizard.NextItem[*Record](),
	{Step: StepResults, Button: 4}: wizard.Goto[*Record](StepSearch),
}

// Catalog is the part of the catalog the books flow reads.
type Catalog interface {
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	SearchProducts(ctx context.Context, storeID, query string, limit int) ([]*domain.Product, error)
}

// Flow searches one store. The resource id is the store id.
type Flow struct {
	catalog     Catalog
	assets      assets.Flow
	frontendURL string
	logger      *slog.Logger
}

// New creates the books flow. frontendURL hosts the product pages.
func New(catalog Catalog, set *assets.Set, frontendURL string, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{catalog: catalog, assets: set.Flow(Name), frontendURL: frontendURL, logger: logger}
}

// Name implements wizard.Flow.
func (f *Flow) Name() string { return Name }

// Table implements wizard.Flow.
func (f *Flow) Table() wizard.Table[*Record] { return table }

// Steps implements wizard.Flow.
func (f *Flow) Steps() wizard.Step { return StepResults }

// NewRecord implements wizard.Flow.
func (f *Flow) NewRecord() *Record { return &Record{} }

// Load checks the store exists and exposes the previous hits as the carousel.
func (f *Flow) Load(ctx context.Context, storeID string, rec *Record) (wizard.Env, error) {
	if _, err := f.catalog.GetStore(ctx, storeID); err != nil {
		return wizard.Env{}, flows.Missing(err, "store", storeID)
	}
	return wizard.Env{Items: rec.Hits, Slides: f.assets.Slides()}, nil
}

// Apply runs the search. No hits sends the requester back to the search step.
func (f *Flow) Apply(ctx context.Context, req wizard.Request[*Record], effect wizard.Effect) (wizard.Position, error) {
	if effect != EffectSearch {
		return req.Position, fmt.Errorf("books: unknown effect %q", effect)
	}
	products, err := f.catalog.SearchProducts(ctx, req.ResourceID, req.Record.Query, MaxHits)
	if err != nil {
		return req.Position, fmt.Errorf("search %q: %w", req.Record.Query, err)
	}

	req.Record.Hits = req.Record.Hits[:0]
	for _, p := range products {
		req.Record.Hits = append(req.Record.Hits, p.ID)
	}

	pos := req.Position
	pos.Index = 0
	if len(req.Record.Hits) == 0 {
		pos.Step = StepSearch
		pos.InputError = true
	}
	f.logger.Debug("book search", "store_id", req.ResourceID, "query", req.Record.Query, "hits", len(req.Record.Hits))
	return pos, nil
}

// Render implements wizard.Flow.
func (f *Flow) Render(ctx context.Context, req wizard.Request[*Record]) (frame.View, error) {
	pos := req.Position
	view := frame.View{Title: f.assets.Title, AspectRatio: f.assets.AspectRatio}

	if pos.FAQ {
		view.Image = f.assets.Slide(pos.Slide)
		view.Buttons = []frame.Button{{Label: "Prev"}, {Label: "Next"}, {Label: "Back"}}
		return view, nil
	}

	switch pos.Step {
	case StepSearch:
		view.Image = f.assets.StepImage(int(StepSearch), pos.InputError)
		view.Input = f.assets.Placeholder(int(StepSearch))
		view.Buttons = []frame.Button{{Label: "Search"}, {Label: "FAQ"}}
		return view, nil
	case StepResults:
		return f.renderHit(ctx, req, view)
	default:
		return frame.View{}, fmt.Errorf("books: no step %d", pos.Step)
	}
}

func (f *Flow) renderHit(ctx context.Context, req wizard.Request[*Record], view frame.View) (frame.View, error) {
	hits := req.Record.Hits
	browse := frame.Button{
		Label:  "Browse store",
		Action: frame.ActionLink,
		Target: f.frontendURL + "/stores/" + frame.EncodeComponent(req.ResourceID),
	}
	controls := func(link frame.Button) []frame.Button {
		return []frame.Button{{Label: "Prev"}, {Label: "Next"}, link, {Label: "New search"}}
	}

	// Hits are gone when the session expired between search and paging.
	if len(hits) == 0 {
		view.Image = f.assets.StepImage(int(StepSearch), true)
		view.Buttons = controls(browse)
		return view, nil
	}

	i := wizard.Wrap(req.Position.Index, len(hits))
	p, err := f.catalog.GetProduct(ctx, hits[i])
	if err != nil {
		f.logger.Warn("search hit unavailable", "product_id", hits[i], "error", err)
		view.Image = f.assets.Image("result")
		view.Buttons = controls(browse)
		return view, nil
	}

	price := pricing.FormatUSD(p.PriceCents)
	view.Title = p.Title + " (" + strconv.Itoa(i+1) + "/" + strconv.Itoa(len(hits)) + ")"
	view.Image = f.assets.Product(p.ImageURL, p.Title, price, "result")
	view.Buttons = controls(frame.Button{
		Label:  "View " + price,
		Action: frame.ActionLink,
		Target: f.frontendURL + "/products/" + frame.EncodeComponent(p.ID),
	})
	return view, nil
}
