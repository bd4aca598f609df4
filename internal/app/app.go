// Package app wires the shopframes components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/shopframes/internal/activity"
	"github.com/ashureev/shopframes/internal/api"
	"github.com/ashureev/shopframes/internal/assets"
	"github.com/ashureev/shopframes/internal/config"
	"github.com/ashureev/shopframes/internal/flows/books"
	"github.com/ashureev/shopframes/internal/flows/cart"
	"github.com/ashureev/shopframes/internal/flows/listing"
	"github.com/ashureev/shopframes/internal/flows/market"
	"github.com/ashureev/shopframes/internal/interaction"
	"github.com/ashureev/shopframes/internal/mail"
	"github.com/ashureev/shopframes/internal/middleware"
	"github.com/ashureev/shopframes/internal/pricing"
	"github.com/ashureev/shopframes/internal/session"
	"github.com/ashureev/shopframes/internal/store"
	"github.com/ashureev/shopframes/internal/wizard"
)

// activityHistory is how many events per store the activity feed replays.
const activityHistory = 200

// App holds the wired components.
type App struct {
	Config   *config.Config
	Catalog  *store.SQLiteStore
	Sessions *session.SQLiteStore
	Hub      *activity.Hub
	Limiter  *middleware.RateLimiter
	Market   *market.Flow
	Source   interaction.Source

	flows   map[string]wizard.Handler
	order   []string
	closers []func()
	logger  *slog.Logger
}

// New opens the database and builds every flow.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, logger: logger, flows: make(map[string]wizard.Handler)}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.Catalog, err = store.NewSQLite(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := a.Catalog.Close(); err != nil {
			logger.Error("Failed to close repository", "error", err)
		}
	})

	a.Sessions, err = session.NewSQLiteStore(db)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Source, err = a.newSource()
	if err != nil {
		a.Close()
		return nil, err
	}

	oracle, err := a.newOracle()
	if err != nil {
		a.Close()
		return nil, err
	}

	assetBase := cfg.Images.AssetBaseURL
	if assetBase == "" {
		assetBase = cfg.PublicURL + "/assets"
	}
	set, err := assets.Load(assetBase, cfg.Images.ImageServiceURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Hub = activity.NewHub(activityHistory)
	a.Limiter = middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	a.Market = market.New(market.Config{
		Catalog:     a.Catalog,
		Markers:     a.Sessions,
		Oracle:      oracle,
		Mail:        a.newMailer(),
		Events:      a.Hub,
		ChainID:     cfg.Payments.ChainID,
		ExplorerURL: cfg.Payments.ExplorerURL,
		MarkerTTL:   cfg.Session.MarkerTTL,
		Logger:      logger,
	}, set)

	rc := wizard.RunnerConfig{
		Store:   a.Sessions,
		BaseURL: cfg.PublicURL,
		TTL:     cfg.Session.TTL,
		Logger:  logger,
	}
	a.register(wizard.NewRunner[*listing.Record](listing.New(a.Catalog, set, a.Hub, cfg.FrontendURL, logger), rc))
	a.register(wizard.NewRunner[*books.Record](books.New(a.Catalog, set, cfg.FrontendURL, logger), rc))
	a.register(wizard.NewRunner[*cart.Record](cart.New(a.Catalog, set, a.Hub, logger), rc))
	a.register(wizard.NewRunner[*market.Record](a.Market, rc))

	return a, nil
}

func (a *App) register(h wizard.Handler) {
	a.flows[h.Name()] = h
	a.order = append(a.order, h.Name())
}

// Flow returns the named flow.
func (a *App) Flow(name string) (wizard.Handler, bool) {
	h, ok := a.flows[name]
	return h, ok
}

// Flows returns every flow in registration order.
func (a *App) Flows() []wizard.Handler {
	out := make([]wizard.Handler, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.flows[name])
	}
	return out
}

func (a *App) newSource() (interaction.Source, error) {
	t := a.Config.Trust
	switch t.Mode {
	case config.TrustAttested:
		a.logger.Info("Validating interactions through attestation API", "url", t.NeynarAPIURL)
		return interaction.NewAttestedSource(t.NeynarAPIURL, t.NeynarAPIKey, t.ValidationTimeout, a.logger), nil
	case config.TrustHub:
		hcfg := interaction.DefaultHubConfig(t.HubAddr)
		hcfg.RequestTimeout = t.ValidationTimeout
		src, err := interaction.NewHubSource(hcfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect to hub: %w", err)
		}
		a.closers = append(a.closers, src.Close)
		a.logger.Info("Validating interactions through hub", "address", t.HubAddr)
		return src, nil
	case config.TrustTrusted:
		a.logger.Warn("Interactions are NOT validated (FRAME_TRUST=trusted)")
		return interaction.TrustedSource{}, nil
	default:
		return nil, fmt.Errorf("unknown trust mode %q", t.Mode)
	}
}

func (a *App) newOracle() (pricing.Oracle, error) {
	p := a.Config.Payments
	if p.FixedETHUSD != "" {
		a.logger.Warn("Using fixed ETH price", "usd_per_eth", p.FixedETHUSD)
		return pricing.NewFixedOracle(p.FixedETHUSD)
	}
	return pricing.NewSpotOracle(pricing.SpotConfig{
		URL:        p.PriceAPIURL,
		CacheTTL:   p.PriceCacheTTL,
		MaxRetries: 3,
	}, a.logger), nil
}

func (a *App) newMailer() mail.Sender {
	m := a.Config.Mail
	if m.SendGridAPIKey == "" {
		a.logger.Info("SENDGRID_API_KEY not set, seller notifications are logged only")
		return mail.LogSender{Logger: a.logger}
	}
	return mail.NewSendGridSender(m.SendGridAPIURL, m.SendGridAPIKey, m.From)
}

// Router builds the HTTP routes.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(a.Config.CORSOrigins))

	api.NewHealthHandler(a.Catalog, 5*time.Second).RegisterHealth(r)
	api.NewCatalogHandler(api.NewHandler(a.Catalog, a.logger)).RegisterRoutes(r)
	api.NewFramesHandler(a.Source, a.Market, a.logger, a.Flows()...).RegisterRoutes(r, a.Limiter.Middleware)

	r.Handle("/ws/activity/{storeID}", activity.NewWebSocketHandler(a.Hub, a.Config.CORSOrigins))
	r.Handle("/assets/*", http.StripPrefix("/assets", assets.Handler()))

	return r
}

// StartWorkers runs the session sweeper and rate limiter eviction until ctx ends.
func (a *App) StartWorkers(ctx context.Context) {
	session.StartSweeper(ctx, a.Sessions, a.Config.Session.SweepInterval)
	a.Limiter.StartEviction(ctx, time.Minute)
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
