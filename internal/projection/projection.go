// Package projection filters what a given viewer of a game is allowed
// to see: broadcast vs. targeted outputs, and log visibility, the way
// the teacher's package filters which narrative events reach a given
// player.
package projection

import (
	"github.com/cdupont/Nomyx/internal/eval"
	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// Viewer identifies who is looking: a specific player, or the
// omniscient admin view (every output and log entry, regardless of
// target).
type Viewer struct {
	Player  *model.PlayerNumber
	IsAdmin bool
}

// RenderedOutput is an output re-evaluated for display.
type RenderedOutput struct {
	Number     model.OutputNumber
	OwningRule model.RuleNumber
	Text       string
}

// VisibleOutputs re-evaluates and returns every Active output viewer may
// see: broadcast outputs (TargetPlayer nil) reach everyone, targeted
// outputs only their target (or the admin view).
func VisibleOutputs(g *model.Game, viewer Viewer) ([]RenderedOutput, error) {
	ev := eval.New(g)
	var out []RenderedOutput
	for _, o := range g.Outputs {
		if o.Status != model.OutputActive {
			continue
		}
		if !allowedOutput(o, viewer) {
			continue
		}
		producer, ok := o.Producer.(expr.PureExpr)
		if !ok {
			continue
		}
		v, err := ev.Pure(o.OwningRule, producer)
		if err != nil {
			return nil, err
		}
		out = append(out, RenderedOutput{Number: o.Number, OwningRule: o.OwningRule, Text: v.Render()})
	}
	return out, nil
}

func allowedOutput(o model.Output, viewer Viewer) bool {
	if viewer.IsAdmin {
		return true
	}
	if o.TargetPlayer == nil {
		return true
	}
	return viewer.Player != nil && *viewer.Player == *o.TargetPlayer
}

// VisibleLog returns the log entries viewer may see: entries with no
// Player attached are system-wide and visible to everyone, entries
// attached to a player are visible only to that player or the admin.
func VisibleLog(g *model.Game, viewer Viewer) []model.LogEntry {
	var out []model.LogEntry
	for _, l := range g.Log {
		if viewer.IsAdmin || l.Player == nil {
			out = append(out, l)
			continue
		}
		if viewer.Player != nil && *viewer.Player == *l.Player {
			out = append(out, l)
		}
	}
	return out
}

// VoteIntermediateDisplay renders the per-voter state of an in-progress
// poll: every voter sees the same aggregate text, since the Voting
// Module's display (spec.md §4.6) is never targeted.
func VoteIntermediateDisplay(g *model.Game, n model.EventNumber, voters []model.PlayerNumber, title string) (string, error) {
	info := g.FindEvent(n)
	if info == nil {
		return "", nil
	}
	ev := eval.New(g)
	v, err := ev.Pure(info.OwningRule, expr.EventVoteStates{Number: n, Voters: voters})
	if err != nil {
		return "", err
	}
	return title + ": " + renderString(v), nil
}

func renderString(v value.Value) string {
	if v.Kind == value.KindString {
		return v.String
	}
	return v.Render()
}
