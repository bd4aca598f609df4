package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/session"
)

// ErrNotFound is returned by a flow when its resource does not exist.
var ErrNotFound = errors.New("flow resource not found")

// Links builds absolute URLs for a flow's resource.
type Links struct {
	baseURL    string
	flow       string
	resourceID string
}

// NewLinks creates Links rooted at baseURL.
func NewLinks(baseURL, flow, resourceID string) Links {
	return Links{baseURL: baseURL, flow: flow, resourceID: resourceID}
}

// Callback is the post URL for pos.
func (l Links) Callback(pos Position) string {
	return l.baseURL + "/frames/" + l.flow + "/" + url.PathEscape(l.resourceID) + "?" + pos.Query().Encode()
}

// Path joins p onto the base URL.
func (l Links) Path(p string) string {
	return l.baseURL + p
}

// Request is everything a flow sees when applying an effect or rendering.
type Request[R Record[R]] struct {
	ResourceID string
	Position   Position
	Input      Input
	Record     R
	Env        Env
	Links      Links
}

// Flow is one wizard. Implementations hold no per-request state.
type Flow[R Record[R]] interface {
	Name() string
	Table() Table[R]
	NewRecord() R

	// Steps is the flow's last step. Positions past it are rejected.
	Steps() Step

	// Load checks the resource exists (ErrNotFound otherwise) and gathers the
	// facts the transition needs.
	Load(ctx context.Context, resourceID string, rec R) (Env, error)

	// Apply performs effect and may redirect the conversation, e.g. back to
	// the step with InputError set when a search finds nothing.
	Apply(ctx context.Context, req Request[R], effect Effect) (Position, error)

	Render(ctx context.Context, req Request[R]) (frame.View, error)
}

// Handler is a type-erased Runner, so the router can hold every flow in one map.
type Handler interface {
	Name() string
	Start(ctx context.Context, resourceID string) (frame.Document, error)
	Advance(ctx context.Context, resourceID string, q url.Values, in Input) (frame.Document, error)
}

// Runner wires a Flow to the session store.
type Runner[R Record[R]] struct {
	flow    Flow[R]
	table   Table[R]
	store   session.Store
	ids     IDGenerator
	baseURL string
	ttl     time.Duration
	logger  *slog.Logger
}

// RunnerConfig holds the Runner's collaborators.
type RunnerConfig struct {
	Store   session.Store
	IDs     IDGenerator
	BaseURL string
	TTL     time.Duration
	Logger  *slog.Logger
}

// NewRunner creates a Runner for flow.
func NewRunner[R Record[R]](flow Flow[R], cfg RunnerConfig) *Runner[R] {
	if cfg.IDs == nil {
		cfg.IDs = UUIDv7Generator{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = session.DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Runner[R]{
		flow:    flow,
		table:   flow.Table(),
		store:   cfg.Store,
		ids:     cfg.IDs,
		baseURL: cfg.BaseURL,
		ttl:     cfg.TTL,
		logger:  cfg.Logger.With("flow", flow.Name()),
	}
}

// Name returns the flow name.
func (r *Runner[R]) Name() string { return r.flow.Name() }

// Start renders the first document of a fresh conversation. No session is
// created until the first interaction.
func (r *Runner[R]) Start(ctx context.Context, resourceID string) (frame.Document, error) {
	rec := r.flow.NewRecord()
	env, err := r.flow.Load(ctx, resourceID, rec)
	if err != nil {
		return frame.Document{}, fmt.Errorf("load %s: %w", resourceID, err)
	}
	return r.render(ctx, Request[R]{
		ResourceID: resourceID,
		Position:   Start(),
		Record:     rec,
		Env:        env,
		Links:      NewLinks(r.baseURL, r.flow.Name(), resourceID),
	})
}

// Advance applies one interaction at the position encoded in q.
func (r *Runner[R]) Advance(ctx context.Context, resourceID string, q url.Values, in Input) (frame.Document, error) {
	pos, err := ParsePosition(q)
	if err != nil {
		return frame.Document{}, err
	}
	if last := r.flow.Steps(); pos.Step > last {
		return frame.Document{}, fmt.Errorf("%w: step %d past last step %d", ErrBadPosition, pos.Step, last)
	}

	rec, err := r.loadRecord(ctx, &pos)
	if err != nil {
		return frame.Document{}, err
	}

	env, err := r.flow.Load(ctx, resourceID, rec)
	if err != nil {
		return frame.Document{}, fmt.Errorf("load %s: %w", resourceID, err)
	}

	res := r.table.Transition(pos, in, rec, env)
	req := Request[R]{
		ResourceID: resourceID,
		Position:   res.Next,
		Input:      in,
		Record:     res.Record,
		Env:        env,
		Links:      NewLinks(r.baseURL, r.flow.Name(), resourceID),
	}

	logger := r.logger.With("resource_id", resourceID, "session_id", pos.SessionID)
	if res.Effect != NoEffect {
		next, err := r.flow.Apply(ctx, req, res.Effect)
		if err != nil {
			return frame.Document{}, fmt.Errorf("apply %s: %w", res.Effect, err)
		}
		req.Position = next
		logger.Info("wizard effect applied", "effect", res.Effect, "step", next.Step)
	}

	if err := session.Save(ctx, r.store, session.Key(r.flow.Name(), pos.SessionID), req.Record, r.ttl); err != nil {
		return frame.Document{}, err
	}

	logger.Debug("wizard transition",
		"from_step", pos.Step,
		"button", in.Button,
		"step", req.Position.Step,
		"input_error", req.Position.InputError)

	return r.render(ctx, req)
}

// loadRecord fetches the session named by pos, minting a new session id when
// there is none or the old one has expired.
func (r *Runner[R]) loadRecord(ctx context.Context, pos *Position) (R, error) {
	rec := r.flow.NewRecord()
	if pos.SessionID == "" {
		pos.SessionID = r.ids.Generate()
		return rec, nil
	}

	ok, err := session.Load(ctx, r.store, session.Key(r.flow.Name(), pos.SessionID), &rec)
	switch {
	case errors.Is(err, session.ErrCorrupt):
		r.logger.Warn("discarding corrupt session", "session_id", pos.SessionID, "error", err)
		rec = r.flow.NewRecord()
	case err != nil:
		var zero R
		return zero, err
	case !ok:
		old := pos.SessionID
		pos.SessionID = r.ids.Generate()
		r.logger.Debug("session expired, minted new id", "old_session_id", old, "session_id", pos.SessionID)
		rec = r.flow.NewRecord()
	}
	return rec, nil
}

func (r *Runner[R]) render(ctx context.Context, req Request[R]) (frame.Document, error) {
	view, err := r.flow.Render(ctx, req)
	if err != nil {
		return frame.Document{}, fmt.Errorf("render step %d: %w", req.Position.Step, err)
	}
	doc := frame.Document{View: view, PostURL: req.Links.Callback(req.Position)}
	if err := doc.Validate(); err != nil {
		return frame.Document{}, err
	}
	return doc, nil
}
