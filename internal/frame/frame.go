// Package frame renders Frame documents: HTML pages whose meta tags tell a
// Frame client which image, buttons, input and callback to show.
package frame

import (
	"bufio"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
)

// Button actions understood by Frame clients.
const (
	ActionPost         = "post"
	ActionLink         = "link"
	ActionTx           = "tx"
	ActionPostRedirect = "post_redirect"
)

// Image aspect ratios.
const (
	AspectWide   = "1.91:1"
	AspectSquare = "1:1"
)

// MaxButtons is the most controls a document may carry.
const MaxButtons = 4

// ErrInvalidDocument is returned by Validate and Render for malformed documents.
var ErrInvalidDocument = errors.New("invalid frame document")

// Button is one control. An empty Action means post.
type Button struct {
	Label   string
	Action  string
	Target  string
	PostURL string
}

// View is what a flow wants shown for a position.
type View struct {
	Title       string
	Image       string
	AspectRatio string
	Input       string // text input placeholder; empty hides the input
	Buttons     []Button
}

// Document is a View bound to the callback URL of its position.
type Document struct {
	View
	PostURL string
}

// Validate checks the document against the limits Frame clients enforce.
func (d Document) Validate() error {
	if d.Image == "" {
		return fmt.Errorf("%w: missing image", ErrInvalidDocument)
	}
	if d.PostURL == "" {
		return fmt.Errorf("%w: missing post url", ErrInvalidDocument)
	}
	if n := len(d.Buttons); n < 1 || n > MaxButtons {
		return fmt.Errorf("%w: %d buttons", ErrInvalidDocument, n)
	}
	for i, b := range d.Buttons {
		if b.Label == "" {
			return fmt.Errorf("%w: button %d has no label", ErrInvalidDocument, i+1)
		}
		switch b.Action {
		case "", ActionPost, ActionPostRedirect:
		case ActionLink, ActionTx:
			if b.Target == "" {
				return fmt.Errorf("%w: %s button %d has no target", ErrInvalidDocument, b.Action, i+1)
			}
		default:
			return fmt.Errorf("%w: button %d has unknown action %q", ErrInvalidDocument, i+1, b.Action)
		}
	}
	return nil
}

// Render writes d as an HTML document. Every interpolated value is escaped.
func Render(w io.Writer, d Document) error {
	if err := d.Validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	bw.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	bw.WriteString("<title>" + html.EscapeString(d.Title) + "</title>\n")

	meta := func(property, content string) {
		bw.WriteString(`<meta property="` + property + `" content="` + html.EscapeString(content) + "\">\n")
	}
	meta("og:title", d.Title)
	meta("og:image", d.Image)
	meta("fc:frame", "vNext")
	meta("fc:frame:image", d.Image)
	if d.AspectRatio != "" {
		meta("fc:frame:image:aspect_ratio", d.AspectRatio)
	}
	if d.Input != "" {
		meta("fc:frame:input:text", d.Input)
	}
	meta("fc:frame:post_url", d.PostURL)

	for i, b := range d.Buttons {
		key := "fc:frame:button:" + strconv.Itoa(i+1)
		action := b.Action
		if action == "" {
			action = ActionPost
		}
		meta(key, b.Label)
		meta(key+":action", action)
		if b.Target != "" {
			meta(key+":target", b.Target)
		}
		if b.PostURL != "" {
			meta(key+":post_url", b.PostURL)
		}
	}

	bw.WriteString("</head>\n<body>\n")
	bw.WriteString(`<img src="` + html.EscapeString(d.Image) + `" alt="` + html.EscapeString(d.Title) + "\">\n")
	bw.WriteString("</body>\n</html>\n")
	return bw.Flush()
}
