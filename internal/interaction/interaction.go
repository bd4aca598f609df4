// Package interaction authenticates inbound Frame interactions and extracts
// what the requester did: which button, what text, which addresses.
package interaction

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxButtons is the number of controls a Frame document can carry.
const MaxButtons = 4

// ErrValidationFailed is the base of every rejected or unverifiable interaction.
var ErrValidationFailed = errors.New("interaction validation failed")

// ValidationError describes why an interaction could not be trusted.
// Temporary is set when the attestation service could not be reached and the
// same payload may succeed on retry.
type ValidationError struct {
	Reason    string
	Temporary bool
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrValidationFailed, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is reports true for ErrValidationFailed.
func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

func reject(reason string, err error) error {
	return &ValidationError{Reason: reason, Err: err}
}

func unavailable(reason string, err error) error {
	return &ValidationError{Reason: reason, Temporary: true, Err: err}
}

// IsTemporary reports whether err is a validation failure worth retrying.
func IsTemporary(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Temporary
}

// Payload is the JSON body a Frame client posts to a callback URL.
type Payload struct {
	UntrustedData UntrustedData `json:"untrustedData"`
	TrustedData   *TrustedData  `json:"trustedData,omitempty"`
}

// UntrustedData is the client's unsigned description of the interaction.
type UntrustedData struct {
	FID               int64    `json:"fid"`
	URL               string   `json:"url,omitempty"`
	MessageHash       string   `json:"messageHash,omitempty"`
	Timestamp         int64    `json:"timestamp,omitempty"`
	ButtonIndex       int      `json:"buttonIndex"`
	InputText         string   `json:"inputText,omitempty"`
	TransactionID     string   `json:"transactionId,omitempty"`
	Address           string   `json:"address,omitempty"`
	VerifiedAddresses []string `json:"verified_addresses,omitempty"`
}

// TrustedData carries the signed message, hex encoded.
type TrustedData struct {
	MessageBytes string `json:"messageBytes"`
}

// Interaction is the validated, per-request view of what the requester did.
type Interaction struct {
	ButtonIndex       int
	InputText         string
	FID               int64
	VerifiedAddresses []string
	TransactionHash   string
	Address           string
	URL               string
}

// Source turns a posted payload into a trusted Interaction.
type Source interface {
	Interaction(ctx context.Context, p Payload) (Interaction, error)
}

// DecodePayload reads a JSON payload. Malformed bodies are validation failures.
func DecodePayload(r io.Reader) (Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Payload{}, reject("malformed payload", err)
	}
	return p, nil
}

// messageBytes returns the signed message bytes of p.
func messageBytes(p Payload) ([]byte, error) {
	if p.TrustedData == nil || strings.TrimSpace(p.TrustedData.MessageBytes) == "" {
		return nil, reject("missing trusted payload", nil)
	}
	raw := strings.TrimPrefix(strings.TrimSpace(p.TrustedData.MessageBytes), "0x")
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil, reject("message bytes are not hex", err)
	}
	if len(b) == 0 {
		return nil, reject("empty message bytes", nil)
	}
	return b, nil
}

func checkButton(in Interaction) (Interaction, error) {
	if in.ButtonIndex < 1 || in.ButtonIndex > MaxButtons {
		return Interaction{}, reject(fmt.Sprintf("button index %d out of range", in.ButtonIndex), nil)
	}
	return in, nil
}

// TrustedSource accepts untrustedData as-is. It must only be wired in development.
type TrustedSource struct{}

// Interaction implements Source.
func (TrustedSource) Interaction(_ context.Context, p Payload) (Interaction, error) {
	u := p.UntrustedData
	return checkButton(Interaction{
		ButtonIndex:       u.ButtonIndex,
		InputText:         u.InputText,
		FID:               u.FID,
		VerifiedAddresses: u.VerifiedAddresses,
		TransactionHash:   u.TransactionID,
		Address:           u.Address,
		URL:               u.URL,
	})
}
