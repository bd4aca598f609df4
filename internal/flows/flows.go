// Package flows holds helpers shared by the Frame wizards in its subpackages.
package flows

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ashureev/shopframes/internal/frame"
	"github.com/ashureev/shopframes/internal/pricing"
	"github.com/ashureev/shopframes/internal/store"
	"github.com/ashureev/shopframes/internal/wizard"
)

// IsEmail reports whether s is a bare email address.
func IsEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

// IsPrice reports whether s is a positive dollar amount.
func IsPrice(s string) bool {
	cents, err := pricing.ParseUSD(s)
	return err == nil && cents > 0
}

// IsAddress reports whether s is a 0x wallet address.
func IsAddress(s string) bool {
	return frame.IsAddress(s)
}

// ShortAddress abbreviates a wallet address for a button label.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// Missing maps a catalog miss to wizard.ErrNotFound.
func Missing(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", wizard.ErrNotFound, kind, id)
	}
	return fmt.Errorf("get %s %s: %w", kind, id, err)
}

// Failure is a view with one control, shown when a hand-off cannot be built.
func Failure(title, image, label string) frame.View {
	return frame.View{
		Title:   title,
		Image:   image,
		Buttons: []frame.Button{{Label: label}},
	}
}
