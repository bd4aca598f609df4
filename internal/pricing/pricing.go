// Package pricing converts catalog prices into onchain payment amounts.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var weiPerETH = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Oracle converts USD cents to wei.
type Oracle interface {
	WeiForCents(ctx context.Context, cents int64) (*big.Int, error)
}

// ConvertCents converts cents to wei at usdPerETH, rounding down.
func ConvertCents(cents int64, usdPerETH *big.Rat) (*big.Int, error) {
	if cents <= 0 {
		return nil, fmt.Errorf("price must be positive, got %d cents", cents)
	}
	if usdPerETH == nil || usdPerETH.Sign() <= 0 {
		return nil, fmt.Errorf("invalid ETH price")
	}
	r := new(big.Rat).SetFrac64(cents, 100)
	r.Quo(r, usdPerETH)
	r.Mul(r, new(big.Rat).SetInt(weiPerETH))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

func parsePrice(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(s))
	if !ok || r.Sign() <= 0 {
		return nil, fmt.Errorf("invalid ETH price %q", s)
	}
	return r, nil
}

// FixedOracle converts at a constant ETH price.
type FixedOracle struct {
	usdPerETH *big.Rat
}

// NewFixedOracle creates a FixedOracle from a decimal USD price such as "3000.50".
func NewFixedOracle(usdPerETH string) (*FixedOracle, error) {
	r, err := parsePrice(usdPerETH)
	if err != nil {
		return nil, err
	}
	return &FixedOracle{usdPerETH: r}, nil
}

// WeiForCents implements Oracle.
func (o *FixedOracle) WeiForCents(_ context.Context, cents int64) (*big.Int, error) {
	return ConvertCents(cents, o.usdPerETH)
}

// SpotConfig holds SpotOracle settings.
type SpotConfig struct {
	URL        string
	CacheTTL   time.Duration
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// SpotOracle fetches the ETH-USD spot price from a Coinbase-compatible API
// and caches it.
type SpotOracle struct {
	cfg        SpotConfig
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	price     *big.Rat
	fetchedAt time.Time
	now       func() time.Time
}

// NewSpotOracle creates a SpotOracle.
func NewSpotOracle(cfg SpotConfig, logger *slog.Logger) *SpotOracle {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	return &SpotOracle{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// WeiForCents implements Oracle.
func (o *SpotOracle) WeiForCents(ctx context.Context, cents int64) (*big.Int, error) {
	price, err := o.Price(ctx)
	if err != nil {
		return nil, err
	}
	return ConvertCents(cents, price)
}

// Price returns the cached spot price, refreshing it once CacheTTL has passed.
func (o *SpotOracle) Price(ctx context.Context) (*big.Rat, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.price != nil && o.now().Sub(o.fetchedAt) < o.cfg.CacheTTL {
		return o.price, nil
	}
	price, err := o.fetch(ctx)
	if err != nil {
		return nil, err
	}
	o.price = price
	o.fetchedAt = o.now()
	return price, nil
}

type spotResponse struct {
	Data struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"data"`
}

// fetch requests the spot price, retrying network and 5xx failures with
// exponential backoff.
func (o *SpotOracle) fetch(ctx context.Context) (*big.Rat, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.RetryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("build price request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := o.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("price request failed: %w", err)
			o.logger.Warn("price request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if closeErr := resp.Body.Close(); closeErr != nil {
			o.logger.Debug("failed to close price response body", "error", closeErr)
		}
		if err != nil {
			lastErr = fmt.Errorf("read price response: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("price server error (status %d)", resp.StatusCode)
			o.logger.Warn("price server error, retrying", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("price client error (status %d)", resp.StatusCode)
		}

		var sr spotResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return nil, fmt.Errorf("decode price response: %w", err)
		}
		return parsePrice(sr.Data.Amount)
	}
	return nil, fmt.Errorf("price request failed after %d retries: %w", o.cfg.MaxRetries, lastErr)
}

var usd = message.NewPrinter(language.English)

// FormatUSD renders cents as a dollar amount with thousands separators, e.g. "$1,250.00".
func FormatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + "$" + usd.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)
}

// ParseUSD parses a decimal dollar amount such as "25", "25.5" or "1,250.00"
// into cents. It rejects more than two decimal places.
func ParseUSD(s string) (int64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	s = strings.ReplaceAll(s, ",", "")
	r, ok := new(big.Rat).SetString(s)
	if !ok || strings.ContainsAny(s, "eE/") {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	r.Mul(r, big.NewRat(100, 1))
	if !r.IsInt() {
		return 0, fmt.Errorf("amount %q has more than two decimals", s)
	}
	if !r.Num().IsInt64() {
		return 0, fmt.Errorf("amount %q out of range", s)
	}
	return r.Num().Int64(), nil
}
