package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/interaction"
	"github.com/ashureev/shopframes/internal/wizard"
)

type fakeFlow struct {
	err  error
	last wizard.Input
	q    url.Values
}

func (f *fakeFlow) Name() string { return "echo" }

func (f *fakeFlow) doc() frame.Document {
	return frame.Document{
		View: frame.View{
			Title:   "Echo",
			Image:   "https://cdn.example/echo.svg",
			Buttons: []frame.Button{{Label: "Again"}},
		},
		PostURL: "https://api.example/frames/echo/r1?step=1",
	}
}

func (f *fakeFlow) Start(_ context.Context, _ string) (frame.Document, error) {
	if f.err != nil {
		return frame.Document{}, f.err
	}
	return f.doc(), nil
}

func (f *fakeFlow) Advance(_ context.Context, _ string, q url.Values, in wizard.Input) (frame.Document, error) {
	f.last, f.q = in, q
	if f.err != nil {
		return frame.Document{}, f.err
	}
	return f.doc(), nil
}

type stubSource struct {
	err error
}

func (s stubSource) Interaction(ctx context.Context, p interaction.Payload) (interaction.Interaction, error) {
	if s.err != nil {
		return interaction.Interaction{}, s.err
	}
	return interaction.TrustedSource{}.Interaction(ctx, p)
}

type stubPayments struct {
	err error
}

func (s stubPayments) PaymentIntent(_ context.Context, productID string) (frame.PaymentIntent, error) {
	if s.err != nil {
		return frame.PaymentIntent{}, s.err
	}
	return frame.PaymentIntent{ChainID: "eip155:8453", Method: frame.MethodSendTransaction,
		Params: frame.PaymentParams{ABI: []any{}, To: productID, Value: "1"}}, nil
}

func newFramesRouter(flow *fakeFlow, src interaction.Source, pay PaymentIntents) http.Handler {
	r := chi.NewRouter()
	NewFramesHandler(src, pay, nil, flow).RegisterRoutes(r, nil)
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestFrames_Advance(t *testing.T) {
	flow := &fakeFlow{}
	h := newFramesRouter(flow, stubSource{}, nil)

	rr := serve(h, http.MethodPost, "/frames/echo/r1?step=3&sessionId=abc",
		`{"untrustedData":{"fid":9,"buttonIndex":2,"inputText":"hi","transactionId":"0xabc","verified_addresses":["0x1"]}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Body.String(), `<meta property="fc:frame" content="vNext">`)
	assert.Equal(t, wizard.Input{Button: 2, Text: "hi", Addresses: []string{"0x1"}, TxHash: "0xabc", FID: 9}, flow.last)
	assert.Equal(t, "3", flow.q.Get("step"))
}

func TestFrames_ErrorMapping(t *testing.T) {
	valid := `{"untrustedData":{"buttonIndex":1}}`

	tests := []struct {
		name    string
		flowErr error
		srcErr  error
		body    string
		status  int
		want    string
	}{
		{"malformed", nil, nil, `{"untrustedData":`, http.StatusBadRequest, "untrusted_interaction"},
		{"rejected", nil, &interaction.ValidationError{Reason: "bad signature"}, valid, http.StatusBadRequest, "untrusted_interaction"},
		{"unavailable", nil, &interaction.ValidationError{Reason: "down", Temporary: true}, valid, http.StatusServiceUnavailable, "attestation_unavailable"},
		{"position", fmt.Errorf("%w: step", wizard.ErrBadPosition), nil, valid, http.StatusBadRequest, "bad_position"},
		{"missing", fmt.Errorf("load: %w", wizard.ErrNotFound), nil, valid, http.StatusNotFound, "not_found"},
		{"internal", errors.New("disk on fire"), nil, valid, http.StatusInternalServerError, "internal error"},
		{"too large", nil, nil, `{"untrustedData":{"inputText":"` + strings.Repeat("x", MaxPayloadBytes) + `"}}`,
			http.StatusRequestEntityTooLarge, "payload_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFramesRouter(&fakeFlow{err: tt.flowErr}, stubSource{err: tt.srcErr}, nil)
			rr := serve(h, http.MethodPost, "/frames/echo/r1?step=1", tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "5", rr.Header().Get("Retry-After"))
			}
		})
	}
}

func TestFrames_Start(t *testing.T) {
	h := newFramesRouter(&fakeFlow{}, stubSource{}, nil)

	rr := serve(h, http.MethodGet, "/frames/echo/r1", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "https://api.example/frames/echo/r1?step=1")

	rr = serve(h, http.MethodGet, "/frames/nope/r1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(newFramesRouter(&fakeFlow{err: wizard.ErrNotFound}, stubSource{}, nil), http.MethodGet, "/frames/echo/r1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFrames_PaymentIntent(t *testing.T) {
	body := `{"untrustedData":{"buttonIndex":1}}`

	rr := serve(newFramesRouter(&fakeFlow{}, stubSource{}, stubPayments{}), http.MethodPost, "/frames/market/p1/tx", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"chainId":"eip155:8453","method":"eth_sendTransaction","params":{"abi":[],"to":"p1","value":"1"}}`, rr.Body.String())

	rr = serve(newFramesRouter(&fakeFlow{}, stubSource{}, stubPayments{err: frame.ErrNoDestination}), http.MethodPost, "/frames/market/p1/tx", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "payment_unavailable")

	rr = serve(newFramesRouter(&fakeFlow{}, stubSource{}, stubPayments{}), http.MethodPost, "/frames/market/p1/tx", `nope`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
