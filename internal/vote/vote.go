// Package vote builds and assesses polls: the Voting Module component.
// A vote is a single composite Event — a deadline timer raced against
// one input-radio signal per voter — whose handler is invoked exactly
// once, as soon as an AssessFunc stops returning "pending" (spec.md
// §4.6).
package vote

import (
	"github.com/cdupont/Nomyx/internal/event"
	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// VoteStats summarizes a poll's current tally.
type VoteStats struct {
	CountTrue    int
	CountFalse   int
	Participants int
	Finished     bool
}

// Voted is the number of voters who have cast a ballot either way.
func (s VoteStats) Voted() int { return s.CountTrue + s.CountFalse }

// Voters is the denominator an AssessFunc quota is measured against:
// once the poll is finished only the voters who actually answered count,
// otherwise every called voter still might.
func (s VoteStats) Voters() int {
	if s.Finished {
		return s.Voted()
	}
	return s.Participants
}

// AssessFunc decides a poll's outcome from its current stats, or
// defers by returning nil ("None").
type AssessFunc func(VoteStats) *bool

// VoteQuota decides Some(True) once q For votes are in, Some(False) once
// the remaining undecided voters can no longer reach q, else None.
func VoteQuota(q int, stats VoteStats) *bool {
	if stats.CountTrue >= q {
		return boolPtr(true)
	}
	if stats.CountFalse > stats.Voters()-q {
		return boolPtr(false)
	}
	return nil
}

func Unanimity(stats VoteStats) *bool {
	return VoteQuota(stats.Voters(), stats)
}

func Majority(stats VoteStats) *bool {
	return VoteQuota(stats.Voters()/2+1, stats)
}

// MajorityWith requires pct percent of voters (rounded down, plus one).
func MajorityWith(pct int) AssessFunc {
	return func(stats VoteStats) *bool {
		return VoteQuota(stats.Voters()*pct/100+1, stats)
	}
}

func NumberVotes(k int) AssessFunc {
	return func(stats VoteStats) *bool {
		return VoteQuota(k, stats)
	}
}

// WithQuorum only consults inner once at least min voters have answered;
// if the poll finishes before reaching quorum, it fails outright.
func WithQuorum(inner AssessFunc, min int) AssessFunc {
	return func(stats VoteStats) *bool {
		if stats.Voted() >= min {
			return inner(stats)
		}
		if stats.Finished {
			return boolPtr(false)
		}
		return nil
	}
}

func boolPtr(b bool) *bool { return &b }

func singleVoteSignal(pn model.PlayerNumber) model.SignalKey {
	return model.SignalKey{Kind: model.SigInputRadio, Player: pn, FieldName: "vote"}
}

func timerSignal(deadlineUnixMs int64) model.SignalKey {
	return model.SignalKey{Kind: model.SigTimer, Timer: deadlineUnixMs}
}

// tallySlots reads a Shortcut's per-child results — slot 0 is the
// deadline timer, slots 1..N are the voters in call order — into a
// VoteStats. Shared by the early-exit predicate (raw results mid
// resolution) and the completion handler (results decoded back out of
// the resolved value), so both see identical tallying logic.
func tallySlots(results []*value.Value, participants int) VoteStats {
	finished := results[0] != nil
	var countTrue, countFalse, answered int
	for _, r := range results[1:] {
		if r == nil {
			continue
		}
		answered++
		if r.Bool {
			countTrue++
		} else {
			countFalse++
		}
	}
	if answered == participants {
		finished = true
	}
	return VoteStats{CountTrue: countTrue, CountFalse: countFalse, Participants: participants, Finished: finished}
}

// CallVote builds the effect that registers a poll of voters, decided by
// assess, closing no later than deadlineUnixMs. A broadcast output showing
// each voter's current state is installed under title as soon as the poll
// is registered. Once decided, the poll's event is deleted and onResult
// is invoked with the assessed boolean (typically activating or
// rejecting the rule under vote).
func CallVote(voters []model.PlayerNumber, assess AssessFunc, deadlineUnixMs int64, title string, onResult func(result bool) expr.Expr) expr.Expr {
	children := make([]expr.Event, 0, len(voters)+1)
	children = append(children, expr.EvSignal{Key: timerSignal(deadlineUnixMs)})
	for _, pn := range voters {
		children = append(children, expr.EvSignal{Key: singleVoteSignal(pn)})
	}

	pred := func(results []*value.Value) bool {
		return assess(tallySlots(results, len(voters))) != nil
	}

	var self model.EventNumber
	handler := func(v value.Value) expr.Expr {
		if v.Kind != value.KindList || len(v.List) != len(children) {
			return expr.ThrowError{Message: "vote: malformed shortcut result"}
		}
		results := make([]*value.Value, len(v.List))
		for i, slot := range v.List {
			if dv, ok := event.DecodeSlot(slot); ok {
				results[i] = &dv
			}
		}
		b := assess(tallySlots(results, len(voters)))
		if b == nil {
			// Pred only returns true once assess decides; reaching here
			// would mean Pred and assess disagree.
			return expr.ThrowError{Message: "vote: assess undecided at poll completion"}
		}
		// Retire the poll's event before reporting, so a later broadcast
		// of its timer or vote signals cannot run this handler again.
		return expr.EffBind{
			Sub:  expr.DeleteEvent{Number: self},
			Cont: func(value.Value) expr.Expr { return onResult(*b) },
		}
	}

	onEvent := expr.OnEvent{
		Event:   expr.EvShortcut{Children: children, Pred: pred},
		Handler: handler,
	}

	return expr.EffBind{
		Sub: onEvent,
		Cont: func(v value.Value) expr.Expr {
			if v.Kind != value.KindInt {
				return expr.ThrowError{Message: "vote: OnEvent did not return an event number"}
			}
			n := model.EventNumber(v.Int)
			self = n
			return expr.CreateOutput{
				Target: nil,
				Producer: expr.MapPure{
					Sub: expr.EventVoteStates{Number: n, Voters: voters},
					Fn: func(states value.Value) value.Value {
						return value.Str(title + ": " + states.String)
					},
				},
			}
		},
	}
}
