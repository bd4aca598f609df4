// Package listing is the eight-step Frame wizard a merchant uses to draft a
// new listing before handing off to the upload page.
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ashureev/shopframes/internal/activity"
	"github.com/ashureev/shopframes/internal/assets"
	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/flows"
	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/pricing"
	"github.com/ashureev/shopframes/internal/wizard"
)

// Name is the flow's route segment.
const Name = "listing"

// EffectReview is requested when the draft is complete.
const EffectReview wizard.Effect = "review"

// Steps.
const (
	StepLocation wizard.Step = iota + 1
	StepTitle
	StepDescription
	StepPrice
	StepShipping
	StepWallet
	StepEmail
	StepReview
)

// Record is the draft accumulated across steps.
type Record struct {
	Location      string `json:"location,omitempty"`
	Title         string `json:"title,omitempty"`
	Description   string `json:"description,omitempty"`
	Price         string `json:"price,omitempty"`
	Shipping      string `json:"shipping,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Set assigns a draft field by its wire name.
func (r *Record) Set(field, value string) error {
	switch field {
	case "location":
		r.Location = value
	case "title":
		r.Title = value
	case "description":
		r.Description = value
	case "price":
		r.Price = value
	case "shipping":
		r.Shipping = value
	case "walletAddress":
		r.WalletAddress = value
	case "email":
		r.Email = value
	default:
		return fmt.Errorf("listing: unknown field %q", field)
	}
	return nil
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Fields returns the draft in upload-page order.
func (r *Record) Fields(storeID string) []frame.Field {
	return []frame.Field{
		{Key: "location", Value: r.Location},
		{Key: "title", Value: r.Title},
		{Key: "description", Value: r.Description},
		{Key: "price", Value: r.Price},
		{Key: "shipping", Value: r.Shipping},
		{Key: "walletAddress", Value: r.WalletAddress},
		{Key: "email", Value: r.Email},
		{Key: "storeId", Value: storeID},
	}
}

var table = wizard.Table[*Record]{
	{Step: StepLocation, Button: 1}: wizard.ShowExplain[*Record](),
	{Step: StepLocation, Button: 2}: wizard.Advance[*Record]("location", nil),

	{Step: StepTitle, Button: 1}: wizard.Back[*Record](),
	{Step: StepTitle, Button: 2}: wizard.Advance[*Record]("title", nil),

	{Step: StepDescription, Button: 1}: wizard.Back[*Record](),
	{Step: StepDescription, Button: 2}: wizard.Advance[*Record]("description", nil),

	{Step: StepPrice, Button: 1}: wizard.Back[*Record](),
	{Step: StepPrice, Button: 2}: wizard.Advance[*Record]("price", flows.IsPrice),

	{Step: StepShipping, Button: 1}: wizard.Back[*Record](),
	{Step: StepShipping, Button: 2}: wizard.Choose[*Record]("shipping", "true"),
	{Step: StepShipping, Button: 3}: wizard.Choose[*Record]("shipping", "false"),

	{Step: StepWallet, Button: 1}: wizard.Back[*Record](),
	{Step: StepWallet, Button: 2}: wizard.Advance[*Record]("walletAddress", flows.IsAddress),
	{Step: StepWallet, Button: 3}: wizard.PickAddress[*Record](0, "walletAddress"),
	{Step: StepWallet, Button: 4}: wizard.PickAddress[*Record](1, "walletAddress"),

	{Step: StepEmail, Button: 1}: wizard.Back[*Record](),
	{Step: StepEmail, Button: 2}: wizard.Emit(EffectReview, wizard.Advance[*Record]("email", flows.IsEmail)),

	{Step: StepReview, Button: 1}: wizard.Back[*Record](),
}

// Catalog is the part of the catalog the listing flow reads.
type Catalog interface {
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
}

// Flow drafts a listing for a store. The resource id is the store id.
type Flow struct {
	catalog     Catalog
	assets      assets.Flow
	events      activity.Publisher
	frontendURL string
	logger      *slog.Logger
}

// New creates the listing flow. frontendURL hosts the upload page.
func New(catalog Catalog, set *assets.Set, events activity.Publisher, frontendURL string, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		catalog:     catalog,
		assets:      set.Flow(Name),
		events:      events,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Name implements wizard.Flow.
func (f *Flow) Name() string { return Name }

// Table implements wizard.Flow.
func (f *Flow) Table() wizard.Table[*Record] { return table }

// Steps implements wizard.Flow.
func (f *Flow) Steps() wizard.Step { return StepReview }

// NewRecord implements wizard.Flow.
func (f *Flow) NewRecord() *Record { return &Record{} }

// Load checks the store exists.
func (f *Flow) Load(ctx context.Context, storeID string, _ *Record) (wizard.Env, error) {
	if _, err := f.catalog.GetStore(ctx, storeID); err != nil {
		return wizard.Env{}, flows.Missing(err, "store", storeID)
	}
	return wizard.Env{}, nil
}

// Apply publishes the finished draft to the store's activity feed.
func (f *Flow) Apply(_ context.Context, req wizard.Request[*Record], effect wizard.Effect) (wizard.Position, error) {
	if effect != EffectReview {
		return req.Position, fmt.Errorf("listing: unknown effect %q", effect)
	}
	f.events.Publish(activity.Event{
		Type:      activity.TypeDraftReady,
		StoreID:   req.ResourceID,
		SessionID: req.Position.SessionID,
		Data: map[string]string{
			"title": req.Record.Title,
			"price": req.Record.Price,
		},
	})
	f.logger.Info("listing draft ready", "store_id", req.ResourceID, "session_id", req.Position.SessionID)
	return req.Position, nil
}

// Render implements wizard.Flow.
func (f *Flow) Render(_ context.Context, req wizard.Request[*Record]) (frame.View, error) {
	pos := req.Position
	view := frame.View{
		Title:       f.assets.Title,
		AspectRatio: f.assets.AspectRatio,
		Image:       f.assets.StepImage(int(pos.Step), pos.InputError),
		Input:       f.assets.Placeholder(int(pos.Step)),
	}

	if pos.Explain {
		view.Image = f.assets.Image("explain")
		view.Input = ""
		view.Buttons = []frame.Button{{Label: "Back"}}
		return view, nil
	}

	back := frame.Button{Label: "Back"}
	next := frame.Button{Label: "Continue"}

	switch pos.Step {
	case StepLocation:
		view.Buttons = []frame.Button{{Label: "What is this?"}, next}
	case StepTitle, StepDescription, StepPrice:
		view.Buttons = []frame.Button{back, next}
	case StepShipping:
		view.Buttons = []frame.Button{back, {Label: "Ships"}, {Label: "Local pickup"}}
	case StepWallet:
		view.Buttons = []frame.Button{back, next}
		for i, addr := range req.Input.Addresses {
			if i == 2 {
				break
			}
			view.Buttons = append(view.Buttons, frame.Button{Label: "Use " + flows.ShortAddress(addr)})
		}
	case StepEmail:
		view.Buttons = []frame.Button{back, {Label: "Review"}}
	case StepReview:
		view.Title = reviewTitle(req.Record)
		view.Buttons = []frame.Button{back, {
			Label:  "Upload listing",
			Action: frame.ActionLink,
			Target: f.frontendURL + "/listings/new?" + frame.EncodeFields(req.Record.Fields(req.ResourceID)),
		}}
	default:
		return frame.View{}, fmt.Errorf("listing: no step %d", pos.Step)
	}
	return view, nil
}

func reviewTitle(r *Record) string {
	title := "Review: " + r.Title
	if cents, err := pricing.ParseUSD(r.Price); err == nil {
		title += " (" + pricing.FormatUSD(cents) + ")"
	}
	if shipping, err := strconv.ParseBool(r.Shipping); err == nil && !shipping {
		title += ", local pickup"
	}
	return title
}
