package eval

import (
	"fmt"

	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// ruleError is the panic payload ThrowError raises. Typing it as an
// unexported struct means recover() only ever intercepts an intentional
// rule-level throw, never an unrelated runtime panic (nil deref, index
// out of range, ...), which re-panics unchanged.
type ruleError struct{ message string }

// LifecycleKind names one of the lifecycle signals a mutation raises
// after it commits (spec.md §4.3: "after the mutation, so rules that
// observe their own or other rules' lifecycle see a consistent state").
type LifecycleKind int

const (
	LifecycleRuleProposed LifecycleKind = iota
	LifecycleRuleActivated
	LifecycleRuleRejected
	LifecycleRuleAdded
	LifecycleRuleModified
	LifecyclePlayerLeft
	LifecycleVictoryDeclared
)

// LifecycleEvent is one raised lifecycle signal, queued for the caller
// (internal/runtime) to turn into an actual SignalOccurrence and feed
// through the trigger pipeline once this Effect call returns — eval
// itself never imports internal/runtime or internal/event, to keep the
// evaluator and the pipeline that drives it decoupled.
type LifecycleEvent struct {
	Kind   LifecycleKind
	Rule   model.RuleNumber
	Player model.PlayerNumber
}

// RunEffect is the public entry point for running an Expr: it installs
// the outermost recover so a ThrowError that escapes every CatchError in
// the tree becomes a plain error instead of crashing the caller (spec.md
// §8 "Error isolation" — one rule's uncaught throw aborts only that
// rule's effect). Internal recursion uses the unexported effect dispatch
// directly, which does not recover, so CatchError nodes see the panic
// before this boundary does.
func (ev *Evaluator) RunEffect(acting model.RuleNumber, e expr.Expr) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			re, ok := r.(ruleError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("eval: uncaught rule error: %s", re.message)
		}
	}()
	return ev.Effect(acting, e)
}

// Effect dispatches one Expr node. Every state-mutating case is gated:
// acting must be the system rule or a currently Active rule, else the
// write is silently dropped (spec.md §4.3 "Rule-gated mutation") — not
// an error, so a rejected rule's still-pending continuations are simply
// inert rather than aborting whatever sequence they're part of.
func (ev *Evaluator) Effect(acting model.RuleNumber, e expr.Expr) (value.Value, error) {
	switch x := e.(type) {
	case expr.CreateVar:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		if ev.Game.FindVariable(x.Name) != nil {
			return value.Value{}, fmt.Errorf("eval: variable %q already exists", x.Name)
		}
		ev.Game.Variables = append(ev.Game.Variables, model.Variable{
			OwningRule: acting,
			Name:       x.Name,
			Value:      x.Init,
		})
		return value.Bool(true), nil

	case expr.DeleteVar:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		for i, v := range ev.Game.Variables {
			if v.Name == x.Name {
				ev.Game.Variables = append(ev.Game.Variables[:i], ev.Game.Variables[i+1:]...)
				return value.Bool(true), nil
			}
		}
		return value.Value{}, fmt.Errorf("eval: unknown variable %q", x.Name)

	case expr.WriteVar:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		v := ev.Game.FindVariable(x.Name)
		if v == nil {
			return value.Value{}, fmt.Errorf("eval: unknown variable %q", x.Name)
		}
		if !v.Value.SameType(x.Value) {
			return value.Value{}, fmt.Errorf("eval: variable %q is %s, cannot hold %s", x.Name, v.Value.Kind, x.Value.Kind)
		}
		v.Value = x.Value
		return value.Bool(true), nil

	case expr.ModifyVar:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		v := ev.Game.FindVariable(x.Name)
		if v == nil {
			return value.Value{}, fmt.Errorf("eval: unknown variable %q", x.Name)
		}
		next := x.Update(v.Value)
		if !v.Value.SameType(next) {
			return value.Value{}, fmt.Errorf("eval: modify of %q changed type from %s to %s", x.Name, v.Value.Kind, next.Kind)
		}
		v.Value = next
		return next, nil

	case expr.OnEvent:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		if _, ok := x.Event.(expr.Event); !ok {
			return value.Value{}, fmt.Errorf("eval: OnEvent.Event is not an Event")
		}
		if _, ok := x.Handler.(func(value.Value) expr.Expr); !ok {
			return value.Value{}, fmt.Errorf("eval: OnEvent.Handler is not func(value.Value) expr.Expr")
		}
		n := ev.Game.NextEventNumber()
		ev.Game.Events = append(ev.Game.Events, model.EventInfo{
			Number:     n,
			OwningRule: acting,
			Expr:       x.Event,
			Handler:    x.Handler,
			Status:     model.EventActive,
		})
		return value.Int(int(n)), nil

	case expr.DeleteEvent:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		info := ev.Game.FindEvent(x.Number)
		if info == nil || info.Status != model.EventActive {
			return value.Value{}, fmt.Errorf("eval: unknown event #%d", x.Number)
		}
		info.Status = model.EventDeleted
		info.Env = nil
		return value.Bool(true), nil

	case expr.CreateOutput:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		n := ev.Game.NextOutputNumber()
		ev.Game.Outputs = append(ev.Game.Outputs, model.Output{
			Number:       n,
			OwningRule:   acting,
			TargetPlayer: x.Target,
			Producer:     x.Producer,
			Status:       model.OutputActive,
		})
		return value.Int(int(n)), nil

	case expr.UpdateOutput:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		o := ev.Game.FindOutput(x.Number)
		if o == nil || o.Status != model.OutputActive {
			return value.Value{}, fmt.Errorf("eval: unknown output #%d", x.Number)
		}
		o.Producer = x.Producer
		return value.Bool(true), nil

	case expr.DeleteOutput:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		o := ev.Game.FindOutput(x.Number)
		if o == nil || o.Status != model.OutputActive {
			return value.Value{}, fmt.Errorf("eval: unknown output #%d", x.Number)
		}
		o.Status = model.OutputDeleted
		return value.Bool(true), nil

	case expr.ProposeRule:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		n := ev.nextRuleNumber()
		ev.Game.Rules = append(ev.Game.Rules, model.Rule{
			Number:      n,
			Name:        x.Name,
			Description: x.Description,
			Source:      x.Source,
			Body:        x.Body,
			ProposedBy:  x.Proposer,
			Status:      model.Proposed,
		})
		ev.Lifecycle = append(ev.Lifecycle, LifecycleEvent{Kind: LifecycleRuleProposed, Rule: n})
		return value.Rule(int(n)), nil

	case expr.ActivateRule:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		r := ev.Game.FindRule(x.Number)
		if r == nil || r.Status != model.Proposed {
			return value.Value{}, fmt.Errorf("eval: rule #%d is not Proposed", x.Number)
		}
		r.Status = model.Active
		r.AssessingRule = acting
		ev.Lifecycle = append(ev.Lifecycle, LifecycleEvent{Kind: LifecycleRuleActivated, Rule: x.Number})
		return value.Bool(true), nil

	case expr.RejectRule:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		r := ev.Game.FindRule(x.Number)
		if r == nil || (r.Status != model.Proposed && r.Status != model.Active) {
			return value.Value{}, fmt.Errorf("eval: rule #%d is neither Proposed nor Active", x.Number)
		}
		r.Status = model.Rejected
		r.AssessingRule = acting
		ev.Game.RejectRuleCascade(x.Number)
		ev.Lifecycle = append(ev.Lifecycle, LifecycleEvent{Kind: LifecycleRuleRejected, Rule: x.Number})
		return value.Bool(true), nil

	case expr.AddRule:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		n := ev.nextRuleNumber()
		ev.Game.Rules = append(ev.Game.Rules, model.Rule{
			Number:        n,
			Name:          x.Name,
			Description:   x.Description,
			Source:        x.Source,
			Body:          x.Body,
			ProposedBy:    x.Proposer,
			Status:        model.Active,
			AssessingRule: acting,
		})
		ev.Lifecycle = append(ev.Lifecycle, LifecycleEvent{Kind: LifecycleRuleAdded, Rule: n})
		return value.Rule(int(n)), nil

	case expr.ModifyRule:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		r := ev.Game.FindRule(x.Number)
		if r == nil {
			return value.Value{}, fmt.Errorf("eval: unknown rule #%d", x.Number)
		}
		if x.Name != nil {
			r.Name = *x.Name
		}
		if x.Description != nil {
			r.Description = *x.Description
		}
		ev.Lifecycle = append(ev.Lifecycle, LifecycleEvent{Kind: LifecycleRuleModified, Rule: x.Number})
		return value.Bool(true), nil

	case expr.RenamePlayer:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		p := ev.Game.FindPlayer(x.Number)
		if p == nil {
			return value.Value{}, fmt.Errorf("eval: unknown player #%d", x.Number)
		}
		p.Name = x.NewName
		return value.Bool(true), nil

	case expr.RemovePlayer:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		for i, p := range ev.Game.Players {
			if p.Number == x.Number {
				ev.Game.Players = append(ev.Game.Players[:i], ev.Game.Players[i+1:]...)
				ev.Lifecycle = append(ev.Lifecycle, LifecycleEvent{Kind: LifecyclePlayerLeft, Player: x.Number})
				return value.Bool(true), nil
			}
		}
		return value.Value{}, fmt.Errorf("eval: unknown player #%d", x.Number)

	case expr.DeclareVictory:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		if ev.Game.Victory != nil {
			return value.Value{}, fmt.Errorf("eval: victory already declared by rule #%d", ev.Game.Victory.DeclaringRule)
		}
		ev.Game.Victory = &model.Victory{DeclaringRule: acting, PlayerList: x.PlayerList}
		ev.Lifecycle = append(ev.Lifecycle, LifecycleEvent{Kind: LifecycleVictoryDeclared, Rule: acting})
		return value.Bool(true), nil

	case expr.SendMessage:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		ev.Emitted = append(ev.Emitted, EmittedMessage{Name: x.Name, Payload: x.Payload})
		return value.Bool(true), nil

	case expr.RandomRange:
		if !ev.Game.IsRuleActive(acting) {
			return value.Value{}, nil
		}
		if x.Hi <= x.Lo {
			return value.Value{}, fmt.Errorf("eval: RandomRange [%d,%d) is empty", x.Lo, x.Hi)
		}
		n := x.Lo + ev.Game.RNG.Intn(x.Hi-x.Lo)
		return value.Int(n), nil

	case expr.ThrowError:
		panic(ruleError{message: x.Message})

	case expr.CatchError:
		return ev.catch(acting, x)

	case expr.LiftPureEff:
		return ev.Pure(acting, x.Sub)

	case expr.EffReturn:
		return x.Value, nil

	case expr.EffBind:
		v, err := ev.Effect(acting, x.Sub)
		if err != nil {
			return value.Value{}, err
		}
		return ev.Effect(acting, x.Cont(v))

	case expr.Self:
		return value.Rule(int(acting)), nil

	case expr.LogMsg:
		ev.Game.AppendLog(nil, model.LogInfo, x.Message)
		return value.Bool(true), nil

	default:
		return value.Value{}, fmt.Errorf("eval: unhandled Expr %T", e)
	}
}

// catch installs a local recover around Body so a matching ruleError is
// handed to Handler and evaluation continues from there, instead of
// unwinding to RunEffect's outer boundary.
func (ev *Evaluator) catch(acting model.RuleNumber, x expr.CatchError) (result value.Value, err error) {
	caught := func() (v value.Value, e error, thrown *ruleError) {
		defer func() {
			if r := recover(); r != nil {
				re, ok := r.(ruleError)
				if !ok {
					panic(r)
				}
				thrown = &re
			}
		}()
		v, e = ev.Effect(acting, x.Body)
		return
	}
	v, e, thrown := caught()
	if thrown != nil {
		return ev.Effect(acting, x.Handler(thrown.message))
	}
	return v, e
}

func (ev *Evaluator) nextRuleNumber() model.RuleNumber {
	var max model.RuleNumber
	for _, r := range ev.Game.Rules {
		if r.Number > max {
			max = r.Number
		}
	}
	return max + 1
}
