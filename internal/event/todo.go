// Package event implements the event resolver: given an event expression
// and the environment of signal occurrences bound to it so far, either
// produce a final value or the set of signals still needed, addressed by
// a structural path through the combinator tree (spec.md §4.4).
package event

import (
	"strconv"
	"strings"

	"github.com/cdupont/Nomyx/internal/model"
)

// Address is a structural path of tags through an Event tree. Because a
// given signal reference occurs at exactly one address, the resolver
// never double-consumes an occurrence (spec.md §4.4 "Address
// uniqueness").
type Address []model.AddressTag

// Key turns an address into a comparable map key; Go slices aren't
// themselves comparable.
func (a Address) Key() string {
	var b strings.Builder
	for i, t := range a {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.Itoa(int(t.Kind)))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(t.Index))
	}
	return b.String()
}

func (a Address) Append(t model.AddressTag) Address {
	next := make(Address, len(a)+1)
	copy(next, a)
	next[len(a)] = t
	return next
}

// PendingSignal names one leaf signal still awaited, at its address.
type PendingSignal struct {
	Address Address
	Signal  model.SignalKey
}

// Todo is the resolver's result: either a final value, or the remaining
// signals needed to produce one. Pending is an expected steady state —
// not an error — so Todo is a plain tagged result, not something
// error-shaped.
type Todo[V any] struct {
	done    bool
	value   V
	pending []PendingSignal
}

func Done[V any](v V) Todo[V] { return Todo[V]{done: true, value: v} }

func Pending[V any](pending []PendingSignal) Todo[V] {
	return Todo[V]{pending: pending}
}

func (t Todo[V]) IsDone() bool { return t.done }

// Value panics if the Todo is pending; callers must check IsDone first.
func (t Todo[V]) Value() V {
	if !t.done {
		panic("event: Value called on a pending Todo")
	}
	return t.value
}

func (t Todo[V]) Pending() []PendingSignal { return t.pending }
