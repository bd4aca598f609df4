// Package market is the Frame wizard that sells one product for an onchain
// payment and collects the buyer's email.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/shopframes/internal/activity"
	"github.com/ashureev/shopframes/internal/assets"
	"github.com/ashureev/shopframes/internal/domain"
	"github.com/ashureev/shopframes/internal/flows"
	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/mail"
	"github.com/ashureev/shopframes/internal/pricing"
	"github.com/ashureev/shopframes/internal/session"
	"github.com/ashureev/shopframes/internal/store"
	"github.com/ashureev/shopframes/internal/wizard"
)

// Name is the flow's route segment.
const Name = "market"

// EffectPurchase records the payment once the buyer left an email.
const EffectPurchase wizard.Effect = "purchase"

// Steps.
const (
	StepProduct wizard.Step = iota + 1
	StepEmail
	StepDone
)

// Record holds the buyer's transaction and email.
type Record struct {
	TxHash string `json:"txHash,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Set implements wizard.Record.
func (r *Record) Set(field, value string) error {
	switch field {
	case "txHash":
		r.TxHash = value
	case "email":
		r.Email = value
	default:
		return fmt.Errorf("market: unknown field %q", field)
	}
	return nil
}

// Clone returns a copy of r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

var table = wizard.Table[*Record]{
	{Step: StepProduct, Button: 1}: wizard.AdvanceTx[*Record]("txHash"),
	{Step: StepProduct, Button: 2}: wizard.ShowExplain[*Record](),

	{Step: StepEmail, Button: 1}: submitEmail,
}

var purchase = wizard.Emit(EffectPurchase, wizard.Advance[*Record]("email", flows.IsEmail))

// submitEmail completes the purchase. A record without a transaction hash
// (no session, or an expired one) goes back to the pay button instead.
func submitEmail(pos wizard.Position, in wizard.Input, rec *Record, env wizard.Env) (wizard.Position, wizard.Effect) {
	if rec.TxHash == "" {
		return missingTx(pos), wizard.NoEffect
	}
	return purchase(pos, in, rec, env)
}

func missingTx(pos wizard.Position) wizard.Position {
	return wizard.Position{Step: StepProduct, SessionID: pos.SessionID, InputError: true}
}

// Catalog is the part of the catalog the market flow uses.
type Catalog interface {
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
}

// Marker suppresses repeated purchase effects for one transaction.
type Marker interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Config holds the market flow's collaborators and chain settings.
type Config struct {
	Catalog     Catalog
	Markers     Marker
	Oracle      pricing.Oracle
	Mail        mail.Sender
	Events      activity.Publisher
	IDs         wizard.IDGenerator
	ChainID     string
	ExplorerURL string
	MarkerTTL   time.Duration
	Logger      *slog.Logger
}

// Flow sells one product. The resource id is the product id.
type Flow struct {
	cfg    Config
	assets assets.Flow
	logger *slog.Logger
	now    func() time.Time
}

// New creates the market flow.
func New(cfg Config, set *assets.Set) *Flow {
	if cfg.IDs == nil {
		cfg.IDs = wizard.UUIDv7Generator{}
	}
	if cfg.MarkerTTL <= 0 {
		cfg.MarkerTTL = 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Flow{cfg: cfg, assets: set.Flow(Name), logger: cfg.Logger, now: time.Now}
}

// Name implements wizard.Flow.
func (f *Flow) Name() string { return Name }

// Table implements wizard.Flow.
func (f *Flow) Table() wizard.Table[*Record] { return table }

// Steps implements wizard.Flow.
func (f *Flow) Steps() wizard.Step { return StepDone }

// NewRecord implements wizard.Flow.
func (f *Flow) NewRecord() *Record { return &Record{} }

// Load checks the product exists.
func (f *Flow) Load(ctx context.Context, productID string, _ *Record) (wizard.Env, error) {
	if _, err := f.product(ctx, productID); err != nil {
		return wizard.Env{}, err
	}
	return wizard.Env{}, nil
}

func (f *Flow) product(ctx context.Context, productID string) (*domain.Product, error) {
	p, err := f.cfg.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, flows.Missing(err, "product", productID)
	}
	return p, nil
}

// PaymentIntent prices the product in wei and addresses it to the seller's
// wallet. Products that cannot take payment return frame.ErrNoDestination.
func (f *Flow) PaymentIntent(ctx context.Context, productID string) (frame.PaymentIntent, error) {
	p, err := f.product(ctx, productID)
	if err != nil {
		return frame.PaymentIntent{}, err
	}
	if !p.IsPurchasable() {
		return frame.PaymentIntent{}, fmt.Errorf("%w: product %s is not for sale", frame.ErrNoDestination, p.ID)
	}
	wei, err := f.cfg.Oracle.WeiForCents(ctx, p.PriceCents)
	if err != nil {
		return frame.PaymentIntent{}, fmt.Errorf("price product %s: %w", p.ID, err)
	}
	return frame.NewPaymentIntent(f.cfg.ChainID, p.WalletAddress, wei)
}

// Apply records the purchase the first time a transaction hash completes the
// flow. Replays of the same hash are acknowledged without side effects.
func (f *Flow) Apply(ctx context.Context, req wizard.Request[*Record], effect wizard.Effect) (wizard.Position, error) {
	if effect != EffectPurchase {
		return req.Position, fmt.Errorf("market: unknown effect %q", effect)
	}
	rec := req.Record
	if rec.TxHash == "" {
		return missingTx(req.Position), nil
	}
	logger := f.logger.With("product_id", req.ResourceID, "tx_hash", rec.TxHash)

	first, err := f.cfg.Markers.MarkOnce(ctx, session.Key("purchase", rec.TxHash), f.cfg.MarkerTTL)
	if err != nil {
		return req.Position, fmt.Errorf("mark purchase: %w", err)
	}
	if !first {
		logger.Info("purchase already recorded")
		return req.Position, nil
	}

	p, err := f.product(ctx, req.ResourceID)
	if err != nil {
		return req.Position, err
	}

	tx := &domain.Transaction{
		ID:         f.cfg.IDs.Generate(),
		ProductID:  p.ID,
		StoreID:    p.StoreID,
		TxHash:     rec.TxHash,
		BuyerFID:   req.Input.FID,
		BuyerEmail: rec.Email,
		CreatedAt:  f.now().UTC(),
	}
	if wei, err := f.cfg.Oracle.WeiForCents(ctx, p.PriceCents); err == nil {
		tx.AmountWei = wei.String()
	} else {
		logger.Warn("purchase amount unavailable", "error", err)
	}

	if err := f.cfg.Catalog.CreateTransaction(ctx, tx); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			logger.Info("purchase already recorded")
			return req.Position, nil
		}
		return req.Position, fmt.Errorf("record purchase: %w", err)
	}

	f.notifySeller(ctx, p, tx, logger)
	f.cfg.Events.Publish(activity.Event{
		Type:      activity.TypePurchase,
		StoreID:   p.StoreID,
		ProductID: p.ID,
		SessionID: req.Position.SessionID,
		Data:      map[string]string{"tx_hash": tx.TxHash, "price": pricing.FormatUSD(p.PriceCents)},
	})
	logger.Info("purchase recorded", "transaction_id", tx.ID)
	return req.Position, nil
}

// notifySeller mails the seller. A send failure does not undo the purchase.
func (f *Flow) notifySeller(ctx context.Context, p *domain.Product, tx *domain.Transaction, logger *slog.Logger) {
	to := p.ContactEmail
	if to == "" {
		if s, err := f.cfg.Catalog.GetStore(ctx, p.StoreID); err == nil {
			to = s.OwnerEmail
		}
	}
	if to == "" {
		logger.Warn("no seller email for purchase")
		return
	}

	msg := mail.Message{
		To:      to,
		Subject: "New order: " + p.Title,
		Body: fmt.Sprintf("%s was purchased for %s.\n\nBuyer email: %s\nTransaction: %s\n",
			p.Title, pricing.FormatUSD(p.PriceCents), tx.BuyerEmail, f.explorerLink(tx.TxHash)),
	}
	if err := f.cfg.Mail.Send(ctx, msg); err != nil {
		logger.Error("seller notification failed", "error", err)
	}
}

func (f *Flow) explorerLink(hash string) string {
	return f.cfg.ExplorerURL + "/tx/" + frame.EncodeComponent(hash)
}

// Render implements wizard.Flow.
func (f *Flow) Render(ctx context.Context, req wizard.Request[*Record]) (frame.View, error) {
	p, err := f.product(ctx, req.ResourceID)
	if err != nil {
		return frame.View{}, err
	}
	pos := req.Position
	price := pricing.FormatUSD(p.PriceCents)
	view := frame.View{Title: p.Title + " (" + price + ")", AspectRatio: f.assets.AspectRatio}

	switch pos.Step {
	case StepProduct:
		if !p.IsPurchasable() {
			v := flows.Failure(p.Title+" is not available", f.assets.Image("failure"), "Try again")
			v.AspectRatio = f.assets.AspectRatio
			return v, nil
		}

		// The tx post-back returns to step 1 and carries the hash.
		pay := frame.Button{
			Label:   "Buy " + price,
			Action:  frame.ActionTx,
			Target:  req.Links.Path("/frames/market/" + frame.EncodeComponent(p.ID) + "/tx"),
			PostURL: req.Links.Callback(wizard.Position{Step: StepProduct, SessionID: pos.SessionID}),
		}
		switch {
		case pos.Explain:
			view.Title = p.Description
			if view.Title == "" {
				view.Title = p.Title
			}
			view.Image = f.assets.Image("explain")
			view.Buttons = []frame.Button{{Label: "Back"}}
		case pos.InputError:
			view.Image = f.assets.StepImage(int(StepProduct), true)
			pay.Label = "Try again"
			view.Buttons = []frame.Button{pay}
		default:
			view.Image = f.assets.Product(p.ImageURL, p.Title, price, "product")
			view.Buttons = []frame.Button{pay, {Label: "Details"}}
		}
	case StepEmail:
		view.Image = f.assets.StepImage(int(StepEmail), pos.InputError)
		view.Input = f.assets.Placeholder(int(StepEmail))
		view.Buttons = []frame.Button{{Label: "Submit"}}
	case StepDone:
		view.Title = "Thanks for buying " + p.Title
		view.Image = f.assets.Image("3")
		if req.Record.TxHash != "" {
			view.Buttons = []frame.Button{{Label: "View transaction", Action: frame.ActionLink, Target: f.explorerLink(req.Record.TxHash)}}
		} else {
			view.Buttons = []frame.Button{{Label: "Done"}}
		}
	default:
		return frame.View{}, fmt.Errorf("market: no step %d", pos.Step)
	}
	return view, nil
}
