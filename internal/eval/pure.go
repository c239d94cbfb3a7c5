// Package eval implements the Pure Evaluator and the Effect Evaluator:
// the two interpreters that walk internal/expr trees against a
// *model.Game. Evaluator is stateless beyond the Game it was built
// around, so a fresh one is cheap to build per command or per
// simulation clone.
package eval

import (
	"fmt"
	"strings"

	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// Evaluator interprets PureExpr and Expr trees against Game.
type Evaluator struct {
	Game *model.Game

	// Emitted collects messages raised by SendMessage during an effect
	// evaluation pass; the caller (internal/runtime) drains it after
	// each command or triggered handler and feeds it to trigger_message.
	Emitted []EmittedMessage

	// Lifecycle collects the lifecycle signals mutations raised during
	// an effect evaluation pass, for the same reason: internal/runtime
	// drains this and turns each into a trigger_lifecycle call once
	// Effect/RunEffect returns, rather than eval reaching into the
	// trigger pipeline itself.
	Lifecycle []LifecycleEvent
}

// EmittedMessage is one SendMessage call recorded for the caller to turn
// into a message signal occurrence.
type EmittedMessage struct {
	Name    string
	Payload value.Value
}

// New builds an Evaluator over g. g is never copied here; callers that
// need isolation (Simu) must pass a pre-cloned Game.
func New(g *model.Game) *Evaluator {
	return &Evaluator{Game: g}
}

// Pure evaluates a PureExpr under the given acting rule (needed only by
// SelfRuleNumber and RuleStatusOf-style introspection; pure evaluation
// never mutates so it is never gated).
func (ev *Evaluator) Pure(acting model.RuleNumber, e expr.PureExpr) (value.Value, error) {
	switch x := e.(type) {
	case expr.ReadVar:
		v := ev.Game.FindVariable(x.Name)
		if v == nil {
			return value.Value{}, fmt.Errorf("eval: unknown variable %q", x.Name)
		}
		return v.Value, nil

	case expr.ReadOutput:
		o := ev.Game.FindOutput(x.Number)
		if o == nil || o.Status != model.OutputActive {
			return value.Value{}, fmt.Errorf("eval: unknown output #%d", x.Number)
		}
		producer, ok := o.Producer.(expr.PureExpr)
		if !ok {
			return value.Value{}, fmt.Errorf("eval: output #%d has no producer", x.Number)
		}
		return ev.Pure(o.OwningRule, producer)

	case expr.ReadVictory:
		if ev.Game.Victory == nil {
			return value.List(nil), nil
		}
		playerList, ok := ev.Game.Victory.PlayerList.(expr.PureExpr)
		if !ok {
			return value.Value{}, fmt.Errorf("eval: victory has no player-list expression")
		}
		return ev.Pure(ev.Game.Victory.DeclaringRule, playerList)

	case expr.ListRules:
		out := make([]value.Value, len(ev.Game.Rules))
		for i, r := range ev.Game.Rules {
			out[i] = value.Rule(int(r.Number))
		}
		return value.List(out), nil

	case expr.ListPlayers:
		out := make([]value.Value, len(ev.Game.Players))
		for i, p := range ev.Game.Players {
			out[i] = value.Player(int(p.Number))
		}
		return value.List(out), nil

	case expr.ListEvents:
		var out []value.Value
		for _, e := range ev.Game.Events {
			if e.Status == model.EventActive {
				out = append(out, value.Int(int(e.Number)))
			}
		}
		return value.List(out), nil

	case expr.ListVariables:
		out := make([]value.Value, len(ev.Game.Variables))
		for i, v := range ev.Game.Variables {
			out[i] = value.Str(v.Name)
		}
		return value.List(out), nil

	case expr.ReadLog:
		out := make([]value.Value, len(ev.Game.Log))
		for i, l := range ev.Game.Log {
			out[i] = value.Str(l.Message)
		}
		return value.List(out), nil

	case expr.SelfRuleNumber:
		return value.Rule(int(acting)), nil

	case expr.CurrentTime:
		return value.Int(int(ev.Game.Now.Unix())), nil

	case expr.RuleStatusOf:
		r := ev.Game.FindRule(x.Rule)
		if r == nil {
			return value.Value{}, fmt.Errorf("eval: unknown rule #%d", x.Rule)
		}
		return value.Str(r.Status.String()), nil

	case expr.PlayerNameOf:
		p := ev.Game.FindPlayer(x.Player)
		if p == nil {
			return value.Value{}, fmt.Errorf("eval: unknown player #%d", x.Player)
		}
		return value.Str(p.Name), nil

	case expr.PureReturn:
		return x.Value, nil

	case expr.PureBind:
		v, err := ev.Pure(acting, x.Sub)
		if err != nil {
			return value.Value{}, err
		}
		return ev.Pure(acting, x.Cont(v))

	case expr.Simu:
		clone := ev.Game.Copy()
		cloneEval := New(clone)
		effect, ok := x.Effect.(expr.Expr)
		if !ok {
			return value.Value{}, fmt.Errorf("eval: Simu.Effect is not an Expr")
		}
		// A rule error thrown inside the simulated effect is swallowed
		// here: Simu previews an outcome, it does not propagate the
		// simulated rule's failure to the caller (spec.md §8
		// "Simulation purity" — only the predicate's verdict escapes).
		_, _ = cloneEval.RunEffect(acting, effect)
		return cloneEval.Pure(acting, x.Predicate)

	case expr.Add:
		a, b, err := ev.twoInts(acting, x.Left, x.Right)
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(a + b), nil

	case expr.Eq:
		l, err := ev.Pure(acting, x.Left)
		if err != nil {
			return value.Value{}, err
		}
		r, err := ev.Pure(acting, x.Right)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(l.Equal(r)), nil

	case expr.Lt:
		a, b, err := ev.twoInts(acting, x.Left, x.Right)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(a < b), nil

	case expr.And:
		a, b, err := ev.twoBools(acting, x.Left, x.Right)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(a && b), nil

	case expr.Or:
		a, b, err := ev.twoBools(acting, x.Left, x.Right)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(a || b), nil

	case expr.Not:
		v, err := ev.Pure(acting, x.Sub)
		if err != nil {
			return value.Value{}, err
		}
		b, err := asBool(v)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(!b), nil

	case expr.MapPure:
		v, err := ev.Pure(acting, x.Sub)
		if err != nil {
			return value.Value{}, err
		}
		return x.Fn(v), nil

	case expr.EventVoteStates:
		info := ev.Game.FindEvent(x.Number)
		if info == nil {
			return value.Value{}, fmt.Errorf("eval: unknown event #%d", x.Number)
		}
		parts := make([]string, len(x.Voters))
		for i, pn := range x.Voters {
			state := "Not Voted"
			for _, occ := range info.Env {
				if occ.Signal.Kind == model.SigInputRadio && occ.Signal.Player == pn && occ.Signal.FieldName == "vote" {
					if occ.Payload.Kind == value.KindBool {
						if occ.Payload.Bool {
							state = "For"
						} else {
							state = "Against"
						}
					}
					break
				}
			}
			parts[i] = fmt.Sprintf("player#%d: %s", pn, state)
		}
		return value.Str(strings.Join(parts, "; ")), nil

	case expr.Lift2:
		a, err := ev.Pure(acting, x.A)
		if err != nil {
			return value.Value{}, err
		}
		b, err := ev.Pure(acting, x.B)
		if err != nil {
			return value.Value{}, err
		}
		return x.Fn(a, b), nil

	default:
		return value.Value{}, fmt.Errorf("eval: unhandled PureExpr %T", e)
	}
}

func (ev *Evaluator) twoInts(acting model.RuleNumber, left, right expr.PureExpr) (int, int, error) {
	l, err := ev.Pure(acting, left)
	if err != nil {
		return 0, 0, err
	}
	r, err := ev.Pure(acting, right)
	if err != nil {
		return 0, 0, err
	}
	a, err := asInt(l)
	if err != nil {
		return 0, 0, err
	}
	b, err := asInt(r)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func (ev *Evaluator) twoBools(acting model.RuleNumber, left, right expr.PureExpr) (bool, bool, error) {
	l, err := ev.Pure(acting, left)
	if err != nil {
		return false, false, err
	}
	r, err := ev.Pure(acting, right)
	if err != nil {
		return false, false, err
	}
	a, err := asBool(l)
	if err != nil {
		return false, false, err
	}
	b, err := asBool(r)
	if err != nil {
		return false, false, err
	}
	return a, b, nil
}

func asInt(v value.Value) (int, error) {
	if v.Kind != value.KindInt {
		return 0, fmt.Errorf("eval: expected int, got %s", v.Kind)
	}
	return v.Int, nil
}

func asBool(v value.Value) (bool, error) {
	if v.Kind != value.KindBool {
		return false, fmt.Errorf("eval: expected bool, got %s", v.Kind)
	}
	return v.Bool, nil
}
