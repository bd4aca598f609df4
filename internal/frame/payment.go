package frame

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
)

// MethodSendTransaction is the only transaction method wired.
const MethodSendTransaction = "eth_sendTransaction"

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ErrNoDestination is returned when a payment has no valid receiving address.
var ErrNoDestination = errors.New("payment destination missing")

// IsAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// PaymentIntent is the body a tx button's target returns.
type PaymentIntent struct {
	ChainID string        `json:"chainId"`
	Method  string        `json:"method"`
	Params  PaymentParams `json:"params"`
}

// PaymentParams are the transaction parameters of a PaymentIntent.
type PaymentParams struct {
	ABI   []any  `json:"abi"`
	To    string `json:"to"`
	Value string `json:"value"`
	Data  string `json:"data,omitempty"`
}

// NewPaymentIntent builds a plain value transfer of wei to the address to.
func NewPaymentIntent(chainID, to string, wei *big.Int) (PaymentIntent, error) {
	if !IsAddress(to) {
		return PaymentIntent{}, fmt.Errorf("%w: %q", ErrNoDestination, to)
	}
	if wei == nil || wei.Sign() <= 0 {
		return PaymentIntent{}, fmt.Errorf("payment value must be positive")
	}
	return PaymentIntent{
		ChainID: chainID,
		Method:  MethodSendTransaction,
		Params: PaymentParams{
			ABI:   []any{},
			To:    to,
			Value: wei.String(),
		},
	}, nil
}
