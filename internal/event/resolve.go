package event

import (
	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// PureEvalFunc evaluates a PureExpr; injected rather than imported
// directly so this package never depends on the effect evaluator (which
// in turn depends on this package to resolve OnEvent bodies) — avoids an
// import cycle between internal/event and internal/eval.
type PureEvalFunc func(expr.PureExpr) (value.Value, error)

// Resolve is the resolver's entry point (spec.md §4.4's `resolve`). env
// is the event's current environment: occurrences already matched to
// sub-signals of this event, each carrying the address it was bound to.
func Resolve(ev expr.Event, env []model.SignalOccurrence, pureEval PureEvalFunc) (Todo[value.Value], error) {
	return resolveAt(ev, nil, env, pureEval)
}

func resolveAt(ev expr.Event, addr Address, env []model.SignalOccurrence, pureEval PureEvalFunc) (Todo[value.Value], error) {
	switch e := ev.(type) {
	case expr.EvPure:
		return Done(e.Value), nil

	case expr.EvEmpty:
		return Pending[value.Value](nil), nil

	case expr.EvSignal:
		for _, occ := range env {
			if occ.Address == nil {
				continue
			}
			if Address(occ.Address).Key() == addr.Key() && occ.Signal == e.Key {
				return Done(occ.Payload), nil
			}
		}
		return Pending[value.Value]([]PendingSignal{{Address: addr, Signal: e.Key}}), nil

	case expr.EvSum:
		left, err := resolveAt(e.Left, addr.Append(model.AddressTag{Kind: model.SumL}), env, pureEval)
		if err != nil {
			return Todo[value.Value]{}, err
		}
		if left.IsDone() {
			return left, nil
		}
		right, err := resolveAt(e.Right, addr.Append(model.AddressTag{Kind: model.SumR}), env, pureEval)
		if err != nil {
			return Todo[value.Value]{}, err
		}
		if right.IsDone() {
			return right, nil
		}
		return Pending[value.Value](append(append([]PendingSignal(nil), left.Pending()...), right.Pending()...)), nil

	case expr.EvApp:
		left, err := resolveAt(e.Left, addr.Append(model.AddressTag{Kind: model.AppL}), env, pureEval)
		if err != nil {
			return Todo[value.Value]{}, err
		}
		right, err := resolveAt(e.Right, addr.Append(model.AddressTag{Kind: model.AppR}), env, pureEval)
		if err != nil {
			return Todo[value.Value]{}, err
		}
		if left.IsDone() && right.IsDone() {
			return Done(e.Combine(left.Value(), right.Value())), nil
		}
		return Pending[value.Value](append(append([]PendingSignal(nil), left.Pending()...), right.Pending()...)), nil

	case expr.EvBind:
		left, err := resolveAt(e.Sub, addr.Append(model.AddressTag{Kind: model.BindL}), env, pureEval)
		if err != nil {
			return Todo[value.Value]{}, err
		}
		if !left.IsDone() {
			return Pending[value.Value](left.Pending()), nil
		}
		// The continuation is only materialised now that Sub has
		// completed, and always resolved under BindR so a stale
		// occurrence from a prior bind (a different Cont(v)) can never
		// accidentally bind to it (spec.md §9).
		next := e.Cont(left.Value())
		return resolveAt(next, addr.Append(model.AddressTag{Kind: model.BindR}), env, pureEval)

	case expr.EvLiftPure:
		v, err := pureEval(e.Sub)
		if err != nil {
			return Todo[value.Value]{}, err
		}
		return Done(v), nil

	case expr.EvShortcut:
		results := make([]*value.Value, len(e.Children))
		var pending []PendingSignal
		for i, child := range e.Children {
			res, err := resolveAt(child, addr.Append(model.AddressTag{Kind: model.ShortcutAt, Index: i}), env, pureEval)
			if err != nil {
				return Todo[value.Value]{}, err
			}
			if res.IsDone() {
				v := res.Value()
				results[i] = &v
			} else {
				pending = append(pending, res.Pending()...)
			}
		}
		if e.Pred(results) {
			return Done(EncodeSlots(results)), nil
		}
		return Pending[value.Value](pending), nil

	default:
		return Todo[value.Value]{}, errUnknownEvent{ev}
	}
}

// EncodeSlots packs a Shortcut's per-child results into a value.Value
// list that preserves position: present slots carry a one-element list
// wrapping the child's value, absent slots an empty list. A plain "drop
// the pending ones" encoding would lose which index was which, which
// callers that recompute a tally from the completed value (the Voting
// Module's handler) need. DecodeSlot reverses this.
func EncodeSlots(results []*value.Value) value.Value {
	out := make([]value.Value, len(results))
	for i, r := range results {
		if r == nil {
			out[i] = value.List(nil)
			continue
		}
		out[i] = value.List([]value.Value{*r})
	}
	return value.List(out)
}

// DecodeSlot reverses one slot of EncodeSlots' packing: ok is false if
// the slot was still pending when the Shortcut completed.
func DecodeSlot(slot value.Value) (v value.Value, ok bool) {
	if slot.Kind != value.KindList || len(slot.List) == 0 {
		return value.Value{}, false
	}
	return slot.List[0], true
}

type errUnknownEvent struct{ ev any }

func (e errUnknownEvent) Error() string { return "event: unresolvable event node" }
