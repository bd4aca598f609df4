// Package cart is the Frame wizard that browses a Shopify-backed store, fills
// a cart and hands off to the Shopify cart permalink.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/shopframes/internal/activity"
	"github.com/ashureev/shopframes/internal/assets"
	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/flows"
	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/pricing"
	"github.com/ashureev/shopframes/internal/wizard"
)

// Name is the flow's route segment.
const Name = "cart"

// EffectAdded is requested after a product lands in the cart.
const EffectAdded wizard.Effect = "added"

// Steps.
const (
	StepBrowse wizard.Step = iota + 1
	StepCart
)

// errNoCheckout means the cart cannot be turned into a Shopify permalink.
var errNoCheckout = errors.New("cart cannot be checked out")

// Line is one cart entry.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Record is the cart.
type Record struct {
	Lines []Line `json:"lines,omitempty"`
}

// Set implements wizard.Record. "add" bumps the quantity of a product.
func (r *Record) Set(field, value string) error {
	if field != "add" {
		return fmt.Errorf("cart: unknown field %q", field)
	}
	r.Add(value)
	return nil
}

// Add puts one more of productID in the cart.
func (r *Record) Add(productID string) {
	for i := range r.Lines {
		if r.Lines[i].ProductID == productID {
			r.Lines[i].Quantity++
			return
		}
	}
	r.Lines = append(r.Lines, Line{ProductID: productID, Quantity: 1})
}

// Count is the number of units in the cart.
func (r *Record) Count() int {
	n := 0
	for _, l := range r.Lines {
		n += l.Quantity
	}
	return n
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	return &Record{Lines: append([]Line(nil), r.Lines...)}
}

func addCurrent(pos wizard.Position, _ wizard.Input, rec *Record, env wizard.Env) (wizard.Position, wizard.Effect) {
	if len(env.Items) == 0 {
		return pos, wizard.NoEffect
	}
	rec.Add(env.Items[wizard.Wrap(pos.Index, len(env.Items))])
	return pos, EffectAdded
}

func viewCart(pos wizard.Position, _ wizard.Input, _ *Record, _ wizard.Env) (wizard.Position, wizard.Effect) {
	pos.Step = StepCart
	return pos, wizard.NoEffect
}

func emptyCart(pos wizard.Position, _ wizard.Input, rec *Record, _ wizard.Env) (wizard.Position, wizard.Effect) {
	rec.Lines = nil
	return pos, wizard.NoEffect
}

var table = wizard.Table[*Record]{
	{Step: StepBrowse, Button: 1}: wizard.PrevItem[*Record](),
	{Step: StepBrowse, Button: 2}: wizard.NextItem[*Record](),
	{Step: StepBrowse, Button: 3}: addCurrent,
	{Step: StepBrowse, Button: 4}: viewCart,

	{Step: StepCart, Button: 1}: wizard.Back[*Record](),
	{Step: StepCart, Button: 2}: emptyCart,
}

// Catalog is the part of the catalog the cart flow reads.
type Catalog interface {
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
	ListProducts(ctx context.Context, storeID string) ([]*domain.Product, error)
}

// Flow sells one store's products. The resource id is the store id.
type Flow struct {
	catalog Catalog
	assets  assets.Flow
	events  activity.Publisher
	logger  *slog.Logger
}

// New creates the cart flow.
func New(catalog Catalog, set *assets.Set, events activity.Publisher, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{catalog: catalog, assets: set.Flow(Name), events: events, logger: logger}
}

// Name implements wizard.Flow.
func (f *Flow) Name() string { return Name }

// Table implements wizard.Flow.
func (f *Flow) Table() wizard.Table[*Record] { return table }

// Steps implements wizard.Flow.
func (f *Flow) Steps() wizard.Step { return StepCart }

// NewRecord implements wizard.Flow.
func (f *Flow) NewRecord() *Record { return &Record{} }

// Load exposes the store's active products as the carousel.
func (f *Flow) Load(ctx context.Context, storeID string, _ *Record) (wizard.Env, error) {
	_, products, err := f.catalogue(ctx, storeID)
	if err != nil {
		return wizard.Env{}, err
	}
	env := wizard.Env{}
	for _, p := range products {
		env.Items = append(env.Items, p.ID)
	}
	return env, nil
}

// catalogue returns the store and its active products in display order.
func (f *Flow) catalogue(ctx context.Context, storeID string) (*domain.Store, []*domain.Product, error) {
	s, err := f.catalog.GetStore(ctx, storeID)
	if err != nil {
		return nil, nil, flows.Missing(err, "store", storeID)
	}
	all, err := f.catalog.ListProducts(ctx, storeID)
	if err != nil {
		return nil, nil, fmt.Errorf("list products of %s: %w", storeID, err)
	}
	var active []*domain.Product
	for _, p := range all {
		if p.Status == domain.ProductActive {
			active = append(active, p)
		}
	}
	return s, active, nil
}

// Apply publishes cart additions to the store's activity feed.
func (f *Flow) Apply(_ context.Context, req wizard.Request[*Record], effect wizard.Effect) (wizard.Position, error) {
	if effect != EffectAdded {
		return req.Position, fmt.Errorf("cart: unknown effect %q", effect)
	}
	productID := req.Env.Items[wizard.Wrap(req.Position.Index, len(req.Env.Items))]
	f.events.Publish(activity.Event{
		Type:      activity.TypeCartAdd,
		StoreID:   req.ResourceID,
		ProductID: productID,
		SessionID: req.Position.SessionID,
		Data:      map[string]string{"units": strconv.Itoa(req.Record.Count())},
	})
	return req.Position, nil
}

// Render implements wizard.Flow.
func (f *Flow) Render(ctx context.Context, req wizard.Request[*Record]) (frame.View, error) {
	s, products, err := f.catalogue(ctx, req.ResourceID)
	if err != nil {
		return frame.View{}, err
	}

	switch req.Position.Step {
	case StepBrowse:
		return f.renderBrowse(req, products), nil
	case StepCart:
		return f.renderCart(req, s, products), nil
	default:
		return frame.View{}, fmt.Errorf("cart: no step %d", req.Position.Step)
	}
}

func (f *Flow) view(title, image string, buttons ...frame.Button) frame.View {
	return frame.View{Title: title, Image: image, AspectRatio: f.assets.AspectRatio, Buttons: buttons}
}

func (f *Flow) renderBrowse(req wizard.Request[*Record], products []*domain.Product) frame.View {
	if len(products) == 0 {
		v := flows.Failure("Nothing for sale yet", f.assets.Image("empty"), "Refresh")
		v.AspectRatio = f.assets.AspectRatio
		return v
	}
	p := products[wizard.Wrap(req.Position.Index, len(products))]
	price := pricing.FormatUSD(p.PriceCents)
	viewLabel := "View cart"
	if n := req.Record.Count(); n > 0 {
		viewLabel += " (" + strconv.Itoa(n) + ")"
	}
	return f.view(p.Title+" ("+price+")", f.assets.Product(p.ImageURL, p.Title, price, "item"),
		frame.Button{Label: "<"},
		frame.Button{Label: ">"},
		frame.Button{Label: "Add to cart"},
		frame.Button{Label: viewLabel},
	)
}

func (f *Flow) renderCart(req wizard.Request[*Record], s *domain.Store, products []*domain.Product) frame.View {
	if len(req.Record.Lines) == 0 {
		v := flows.Failure("Your cart is empty", f.assets.Image("empty"), "Keep shopping")
		v.AspectRatio = f.assets.AspectRatio
		return v
	}

	checkout, total, err := Permalink(s, products, req.Record.Lines)
	if err != nil {
		f.logger.Warn("cart checkout unavailable", "store_id", s.ID, "error", err)
		v := flows.Failure("Checkout is unavailable", f.assets.Image("failure"), "Try again")
		v.AspectRatio = f.assets.AspectRatio
		return v
	}

	title := "Cart: " + strconv.Itoa(req.Record.Count()) + " items, " + pricing.FormatUSD(total)
	return f.view(title, f.assets.Image("2"),
		frame.Button{Label: "Back"},
		frame.Button{Label: "Empty cart"},
		frame.Button{Label: "Checkout", Action: frame.ActionLink, Target: checkout},
	)
}

// Permalink builds the Shopify cart permalink https://<shop>/cart/<variant>:<qty>,...
// and the cart total in cents.
func Permalink(s *domain.Store, products []*domain.Product, lines []Line) (string, int64, error) {
	shop := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(s.ShopDomain, "https://"), "http://"), "/")
	if shop == "" {
		return "", 0, fmt.Errorf("%w: store %s has no shop domain", errNoCheckout, s.ID)
	}

	byID := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	var (
		parts []string
		total int64
	)
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return "", 0, fmt.Errorf("%w: product %s is no longer for sale", errNoCheckout, l.ProductID)
		}
		if p.ShopifyVariantID == "" {
			return "", 0, fmt.Errorf("%w: product %s has no variant", errNoCheckout, p.ID)
		}
		parts = append(parts, frame.EncodeComponent(p.ShopifyVariantID)+":"+strconv.Itoa(l.Quantity))
		total += p.PriceCents * int64(l.Quantity)
	}
	return "https://" + shop + "/cart/" + strings.Join(parts, ","), total, nil
}
