package frame

import (
	"net/url"
	"strings"
)

// componentUnescaper undoes the parts of url.QueryEscape that
// encodeURIComponent leaves alone.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeComponent percent-encodes s the way encodeURIComponent does: spaces
// become %20, and !'()* stay literal.
func EncodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// Field is one key/value pair of a hand-off URL.
type Field struct {
	Key   string
	Value string
}

// EncodeFields joins fields into a query string, keeping their order.
func EncodeFields(fields []Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(EncodeComponent(f.Key))
		b.WriteByte('=')
		b.WriteString(EncodeComponent(f.Value))
	}
	return b.String()
}
