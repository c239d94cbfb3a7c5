package expr

import (
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// Event is the algebraic event combinator language: sum / applicative /
// bind / shortcut / lift / signal, resolved incrementally by
// internal/event against an append-only log of signal occurrences.
type Event interface{ isEvent() }

// EvPure completes immediately with Value.
type EvPure struct{ Value value.Value }

// EvEmpty never completes.
type EvEmpty struct{}

// EvSignal is a single primitive signal leaf.
type EvSignal struct{ Key model.SignalKey }

// EvSum completes with whichever of Left/Right completes first (left-
// biased on a tie).
type EvSum struct{ Left, Right Event }

// EvApp requires both Left and Right to complete, then combines their
// results with Combine. (A generic Event<A->B> applied to Event<A> would
// require representing functions as values.Value; Combine over two
// concrete children is the equivalent "both must complete" applicative
// shape without that indirection.)
type EvApp struct {
	Left, Right Event
	Combine     func(a, b value.Value) value.Value
}

// EvBind resolves Sub; once Sub completes with v, Cont(v) is materialised
// and resolved under the BindR branch of the address (spec.md §9: "the
// new sub-expression must be resolved with the BindR-prefixed path so
// that no stale occurrence from a prior bind can accidentally bind").
type EvBind struct {
	Sub  Event
	Cont func(value.Value) Event
}

// EvLiftPure evaluates Sub via the pure evaluator; never pending.
type EvLiftPure struct{ Sub PureExpr }

// EvShortcut completes as soon as Pred over the children's current
// results (nil entries for still-pending children) returns true.
type EvShortcut struct {
	Children []Event
	Pred     func(results []*value.Value) bool
}

func (EvPure) isEvent()      {}
func (EvEmpty) isEvent()     {}
func (EvSignal) isEvent()    {}
func (EvSum) isEvent()       {}
func (EvApp) isEvent()       {}
func (EvBind) isEvent()      {}
func (EvLiftPure) isEvent()  {}
func (EvShortcut) isEvent()  {}
