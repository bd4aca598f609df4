// Package wizard drives multi-step Frame flows: a position threaded through
// callback URLs, a per-flow transition table, and a runner that persists each
// flow's record between requests.
package wizard

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

// ErrBadPosition is returned for malformed position query parameters.
var ErrBadPosition = errors.New("bad wizard position")

// Step is a 1-based primary state of a flow.
type Step int

// Query parameter names.
const (
	paramStep       = "step"
	paramSessionID  = "sessionId"
	paramInputError = "inputError"
	paramExplain    = "explain"
	paramFAQ        = "faq"
	paramSlide      = "slide"
	paramIndex      = "index"
)

// Position is where a conversation stands. It lives in the callback URL, not
// in the session record.
type Position struct {
	Step       Step
	SessionID  string
	InputError bool
	Explain    bool
	FAQ        bool
	Slide      int // FAQ slide
	Index      int // carousel item
}

// Start is the position of a fresh conversation.
func Start() Position {
	return Position{Step: 1}
}

// ParsePosition reads a Position from query parameters. A missing step means
// step 1.
func ParsePosition(q url.Values) (Position, error) {
	pos := Start()

	if v := q.Get(paramStep); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Position{}, fmt.Errorf("%w: step %q", ErrBadPosition, v)
		}
		pos.Step = Step(n)
	}

	if v := q.Get(paramSessionID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return Position{}, fmt.Errorf("%w: session id %q", ErrBadPosition, v)
		}
		pos.SessionID = id.String()
	}

	var err error
	if pos.InputError, err = parseFlag(q, paramInputError); err != nil {
		return Position{}, err
	}
	if pos.Explain, err = parseFlag(q, paramExplain); err != nil {
		return Position{}, err
	}
	if pos.FAQ, err = parseFlag(q, paramFAQ); err != nil {
		return Position{}, err
	}
	if pos.Slide, err = parseIndex(q, paramSlide); err != nil {
		return Position{}, err
	}
	if pos.Index, err = parseIndex(q, paramIndex); err != nil {
		return Position{}, err
	}
	return pos, nil
}

func parseFlag(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s %q", ErrBadPosition, name, v)
	}
	return b, nil
}

func parseIndex(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrBadPosition, name, v)
	}
	return n, nil
}

// Query encodes p. Only set flags and non-zero indexes are emitted.
func (p Position) Query() url.Values {
	q := url.Values{}
	q.Set(paramStep, strconv.Itoa(int(p.Step)))
	if p.SessionID != "" {
		q.Set(paramSessionID, p.SessionID)
	}
	if p.InputError {
		q.Set(paramInputError, "true")
	}
	if p.Explain {
		q.Set(paramExplain, "true")
	}
	if p.FAQ {
		q.Set(paramFAQ, "true")
	}
	if p.Slide > 0 {
		q.Set(paramSlide, strconv.Itoa(p.Slide))
	}
	if p.Index > 0 {
		q.Set(paramIndex, strconv.Itoa(p.Index))
	}
	return q
}

// settled returns p on the same step with every overlay flag cleared.
func (p Position) settled() Position {
	return Position{Step: p.Step, SessionID: p.SessionID, Index: p.Index}
}
