package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/interaction"
	"github.com/ashureev/shopframes/internal/wizard"
)

// MaxPayloadBytes bounds a Frame POST body.
const MaxPayloadBytes = 64 << 10

// attestationRetryAfter is the Retry-After, in seconds, sent when the
// attestation service is unreachable.
const attestationRetryAfter = 5

// PaymentIntents prices a product for a tx button.
type PaymentIntents interface {
	PaymentIntent(ctx context.Context, productID string) (frame.PaymentIntent, error)
}

// FramesHandler routes Frame requests to their wizard.
type FramesHandler struct {
	flows    map[string]wizard.Handler
	source   interaction.Source
	payments PaymentIntents
	logger   *slog.Logger
}

// NewFramesHandler creates a FramesHandler serving flows. payments may be nil
// when no flow sells onchain.
func NewFramesHandler(source interaction.Source, payments PaymentIntents, logger *slog.Logger, flows ...wizard.Handler) *FramesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &FramesHandler{
		flows:    make(map[string]wizard.Handler, len(flows)),
		source:   source,
		payments: payments,
		logger:   logger,
	}
	for _, f := range flows {
		h.flows[f.Name()] = f
	}
	return h
}

// RegisterRoutes registers Frame routes. limit, when set, throttles the POST
// endpoints.
func (h *FramesHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Route("/frames", func(r chi.Router) {
		r.Get("/{flow}/{resourceID}", h.Start)
		r.Group(func(r chi.Router) {
			if limit != nil {
				r.Use(limit)
			}
			r.Post("/{flow}/{resourceID}", h.Advance)
			if h.payments != nil {
				r.Post("/market/{productID}/tx", h.PaymentIntent)
			}
		})
	})
}

// Start renders the first document of a flow.
func (h *FramesHandler) Start(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flows[chi.URLParam(r, "flow")]
	if !ok {
		Error(w, http.StatusNotFound, "unknown_flow")
		return
	}
	doc, err := flow.Start(r.Context(), chi.URLParam(r, "resourceID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeDocument(w, r, doc)
}

// Advance validates the posted interaction and renders the next document.
func (h *FramesHandler) Advance(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flows[chi.URLParam(r, "flow")]
	if !ok {
		Error(w, http.StatusNotFound, "unknown_flow")
		return
	}

	in, err := h.interaction(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	doc, err := flow.Advance(r.Context(), chi.URLParam(r, "resourceID"), r.URL.Query(), wizard.Input{
		Button:    in.ButtonIndex,
		Text:      in.InputText,
		Addresses: in.VerifiedAddresses,
		TxHash:    in.TransactionHash,
		FID:       in.FID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeDocument(w, r, doc)
}

// PaymentIntent answers a tx button with the transaction to sign.
func (h *FramesHandler) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	if _, err := h.interaction(w, r); err != nil {
		h.fail(w, r, err)
		return
	}
	intent, err := h.payments.PaymentIntent(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, intent)
}

func (h *FramesHandler) interaction(w http.ResponseWriter, r *http.Request) (interaction.Interaction, error) {
	payload, err := interaction.DecodePayload(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
	if err != nil {
		return interaction.Interaction{}, err
	}
	return h.source.Interaction(r.Context(), payload)
}

func (h *FramesHandler) writeDocument(w http.ResponseWriter, r *http.Request, doc frame.Document) {
	var buf bytes.Buffer
	if err := frame.Render(&buf, doc); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Debug("write frame document", "error", err)
	}
}

// fail maps err to an HTTP response.
func (h *FramesHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	logger := h.logger.With("path", r.URL.Path)

	switch {
	case errors.As(err, &tooLarge):
		Error(w, http.StatusRequestEntityTooLarge, "payload_too_large")
	case interaction.IsTemporary(err):
		logger.Warn("attestation unavailable", "error", err)
		w.Header().Set("Retry-After", strconv.Itoa(attestationRetryAfter))
		Error(w, http.StatusServiceUnavailable, "attestation_unavailable")
	case errors.Is(err, interaction.ErrValidationFailed):
		logger.Info("rejected interaction", "error", err)
		Error(w, http.StatusBadRequest, "untrusted_interaction")
	case errors.Is(err, wizard.ErrBadPosition):
		Error(w, http.StatusBadRequest, "bad_position")
	case errors.Is(err, frame.ErrNoDestination):
		Error(w, http.StatusBadRequest, "payment_unavailable")
	case errors.Is(err, wizard.ErrNotFound):
		Error(w, http.StatusNotFound, "not_found")
	default:
		logger.Error("frame request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
