package wizard

import "strings"

// Effect names a side effect a transition asks the flow to perform.
type Effect string

// NoEffect is the zero Effect.
const NoEffect Effect = ""

// Record is a flow's session record. Set rejects unknown field names.
// Clone must return a deep copy.
type Record[R any] interface {
	Set(field, value string) error
	Clone() R
}

// Input is what the requester did on this request.
type Input struct {
	Button    int
	Text      string
	Addresses []string
	TxHash    string
	FID       int64
}

// Env holds read-only facts a flow loads before a transition, so the
// transition itself stays pure.
type Env struct {
	Items  []string // carousel members, in display order
	Slides int      // FAQ length
}

// Action computes the next position. rec is already a private copy and may be
// mutated.
type Action[R Record[R]] func(pos Position, in Input, rec R, env Env) (Position, Effect)

// Key addresses one control of one step.
type Key struct {
	Step   Step
	Button int
}

// Table is a flow's transition table. Controls with no entry keep the
// conversation where it is.
type Table[R Record[R]] map[Key]Action[R]

// Result is the outcome of a transition.
type Result[R Record[R]] struct {
	Next   Position
	Record R
	Effect Effect
}

// Transition applies the control in to pos. It never mutates rec.
//
// Overlays take precedence over the table: from an explain overlay any control
// returns to the step; inside the FAQ, 1 and 2 page through env.Slides and 3
// returns to the step and carousel index the FAQ was opened from.
func (t Table[R]) Transition(pos Position, in Input, rec R, env Env) Result[R] {
	next := rec.Clone()

	switch {
	case pos.Explain:
		return Result[R]{Next: pos.settled(), Record: next}
	case pos.FAQ:
		np := pos
		np.InputError = false
		np.Explain = false
		switch in.Button {
		case 1:
			np.Slide = PrevIndex(pos.Slide, env.Slides)
		case 2:
			np.Slide = NextIndex(pos.Slide, env.Slides)
		case 3:
			np = pos.settled()
		}
		return Result[R]{Next: np, Record: next}
	}

	action, ok := t[Key{Step: pos.Step, Button: in.Button}]
	if !ok {
		return Result[R]{Next: pos.settled(), Record: next}
	}
	np, effect := action(pos.settled(), in, next, env)
	return Result[R]{Next: np, Record: next, Effect: effect}
}

// Wrap reduces i modulo n into [0, n). It returns 0 when n <= 0.
func Wrap(i, n int) int {
	if n <= 0 {
		return 0
	}
	return ((i % n) + n) % n
}

// NextIndex is (i+1) mod n.
func NextIndex(i, n int) int { return Wrap(i+1, n) }

// PrevIndex is (i-1+n) mod n.
func PrevIndex(i, n int) int { return Wrap(i-1, n) }

func advance[R Record[R]](field string, value func(Input) string, check func(string) bool) Action[R] {
	return func(pos Position, in Input, rec R, _ Env) (Position, Effect) {
		v := strings.TrimSpace(value(in))
		if v == "" || (check != nil && !check(v)) {
			pos.InputError = true
			return pos, NoEffect
		}
		if err := rec.Set(field, v); err != nil {
			pos.InputError = true
			return pos, NoEffect
		}
		pos.Step++
		pos.Index = 0
		return pos, NoEffect
	}
}

// Advance stores the trimmed input text under field and moves one step
// forward. Empty or rejected text stays on the step with InputError set.
func Advance[R Record[R]](field string, check func(string) bool) Action[R] {
	return advance[R](field, func(in Input) string { return in.Text }, check)
}

// AdvanceTx stores the transaction hash the client posted back under field
// and moves one step forward. A missing hash sets InputError.
func AdvanceTx[R Record[R]](field string) Action[R] {
	return advance[R](field, func(in Input) string { return in.TxHash }, nil)
}

// Choose stores a fixed value under field and moves one step forward.
func Choose[R Record[R]](field, value string) Action[R] {
	return func(pos Position, _ Input, rec R, _ Env) (Position, Effect) {
		if err := rec.Set(field, value); err != nil {
			pos.InputError = true
			return pos, NoEffect
		}
		pos.Step++
		pos.Index = 0
		return pos, NoEffect
	}
}

// PickAddress stores the requester's i-th verified address under field. When
// there is no such address the conversation stays on the step.
func PickAddress[R Record[R]](i int, field string) Action[R] {
	return func(pos Position, in Input, rec R, _ Env) (Position, Effect) {
		if i < 0 || i >= len(in.Addresses) {
			return pos, NoEffect
		}
		if err := rec.Set(field, in.Addresses[i]); err != nil {
			pos.InputError = true
			return pos, NoEffect
		}
		pos.Step++
		pos.Index = 0
		return pos, NoEffect
	}
}

// Back returns to the previous step without touching the record.
func Back[R Record[R]]() Action[R] {
	return func(pos Position, _ Input, _ R, _ Env) (Position, Effect) {
		if pos.Step > 1 {
			pos.Step--
		}
		return pos, NoEffect
	}
}

// Goto jumps to step, resetting the carousel.
func Goto[R Record[R]](step Step) Action[R] {
	return func(pos Position, _ Input, _ R, _ Env) (Position, Effect) {
		pos.Step = step
		pos.Index = 0
		return pos, NoEffect
	}
}

// ShowExplain opens the explain overlay on the current step.
func ShowExplain[R Record[R]]() Action[R] {
	return func(pos Position, _ Input, _ R, _ Env) (Position, Effect) {
		pos.Explain = true
		return pos, NoEffect
	}
}

// OpenFAQ opens the FAQ overlay at its first slide.
func OpenFAQ[R Record[R]]() Action[R] {
	return func(pos Position, _ Input, _ R, _ Env) (Position, Effect) {
		pos.FAQ = true
		pos.Slide = 0
		return pos, NoEffect
	}
}

// PrevItem moves the carousel back, wrapping at the start.
func PrevItem[R Record[R]]() Action[R] {
	return func(pos Position, _ Input, _ R, env Env) (Position, Effect) {
		pos.Index = PrevIndex(pos.Index, len(env.Items))
		return pos, NoEffect
	}
}

// NextItem moves the carousel forward, wrapping at the end.
func NextItem[R Record[R]]() Action[R] {
	return func(pos Position, _ Input, _ R, env Env) (Position, Effect) {
		pos.Index = NextIndex(pos.Index, len(env.Items))
		return pos, NoEffect
	}
}

// Emit runs action and, unless it flagged an input error, requests effect.
func Emit[R Record[R]](effect Effect, action Action[R]) Action[R] {
	return func(pos Position, in Input, rec R, env Env) (Position, Effect) {
		np, _ := action(pos, in, rec, env)
		if np.InputError {
			return np, NoEffect
		}
		return np, effect
	}
}
