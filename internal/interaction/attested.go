package interaction

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// AttestedSource validates signed messages against a Neynar-compatible
// frame validation endpoint.
type AttestedSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAttestedSource creates a source calling baseURL/v2/farcaster/frame/validate.
func NewAttestedSource(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *AttestedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttestedSource{
		endpoint: baseURL + "/v2/farcaster/frame/validate",
		apiKey:   apiKey,
		client:   &http.Client{},
		timeout:  timeout,
		logger:   logger,
	}
}

type validateRequest struct {
	MessageBytesInHex string `json:"message_bytes_in_hex"`
}

type validateResponse struct {
	Valid  bool `json:"valid"`
	Action struct {
		URL        string `json:"url"`
		Address    string `json:"address"`
		Interactor struct {
			FID               int64 `json:"fid"`
			VerifiedAddresses struct {
				EthAddresses []string `json:"eth_addresses"`
			} `json:"verified_addresses"`
		} `json:"interactor"`
		TappedButton struct {
			Index int `json:"index"`
		} `json:"tapped_button"`
		Input struct {
			Text string `json:"text"`
		} `json:"input"`
		Transaction struct {
			Hash string `json:"hash"`
		} `json:"transaction"`
	} `json:"action"`
}

// Interaction implements Source.
func (s *AttestedSource) Interaction(ctx context.Context, p Payload) (Interaction, error) {
	msg, err := messageBytes(p)
	if err != nil {
		return Interaction{}, err
	}

	body, err := json.Marshal(validateRequest{MessageBytesInHex: hex.EncodeToString(msg)})
	if err != nil {
		return Interaction{}, fmt.Errorf("encode validate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return Interaction{}, fmt.Errorf("build validate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api_key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("frame validation call failed", "error", err)
		return Interaction{}, unavailable("attestation service unreachable", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Debug("failed to close validation response body", "error", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Interaction{}, unavailable(fmt.Sprintf("attestation service returned %d", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return Interaction{}, reject(fmt.Sprintf("attestation service returned %d", resp.StatusCode), nil)
	}

	var vr validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&vr); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Interaction{}, unavailable("attestation response timed out", err)
		}
		return Interaction{}, reject("unreadable attestation response", err)
	}
	if !vr.Valid {
		return Interaction{}, reject("message rejected by attestation service", nil)
	}

	a := vr.Action
	return checkButton(Interaction{
		ButtonIndex:       a.TappedButton.Index,
		InputText:         a.Input.Text,
		FID:               a.Interactor.FID,
		VerifiedAddresses: a.Interactor.VerifiedAddresses.EthAddresses,
		TransactionHash:   a.Transaction.Hash,
		Address:           a.Address,
		URL:               a.URL,
	})
}
