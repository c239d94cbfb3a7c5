package eval

import (
	"testing"

	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

func TestCreateVarAndWriteVar(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)

	if _, err := ev.RunEffect(model.SystemRule, expr.CreateVar{Name: "x", Init: value.Int(1)}); err != nil {
		t.Fatalf("CreateVar failed: %v", err)
	}
	if v := g.FindVariable("x"); v == nil || v.Value.Int != 1 {
		t.Fatalf("expected variable x = 1, got %+v", v)
	}

	if _, err := ev.RunEffect(model.SystemRule, expr.WriteVar{Name: "x", Value: value.Int(5)}); err != nil {
		t.Fatalf("WriteVar failed: %v", err)
	}
	if v := g.FindVariable("x"); v.Value.Int != 5 {
		t.Fatalf("expected variable x = 5, got %d", v.Value.Int)
	}
}

func TestWriteVarRejectsTypeMismatch(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	_, _ = ev.RunEffect(model.SystemRule, expr.CreateVar{Name: "x", Init: value.Int(1)})
	if _, err := ev.RunEffect(model.SystemRule, expr.WriteVar{Name: "x", Value: value.Str("oops")}); err == nil {
		t.Fatalf("expected type mismatch error writing a string into an int variable")
	}
}

func TestCreateVarDuplicateNameFails(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	_, _ = ev.RunEffect(model.SystemRule, expr.CreateVar{Name: "x", Init: value.Int(1)})
	if _, err := ev.RunEffect(model.SystemRule, expr.CreateVar{Name: "x", Init: value.Int(2)}); err == nil {
		t.Fatalf("expected error creating a variable that already exists")
	}
}

func TestMutationGatedByInactiveRule(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	g.Rules = append(g.Rules, model.Rule{Number: 1, Status: model.Proposed})
	ev := New(g)

	if _, err := ev.RunEffect(model.RuleNumber(1), expr.CreateVar{Name: "x", Init: value.Int(1)}); err != nil {
		t.Fatalf("a gated write must not itself error, got %v", err)
	}
	if g.FindVariable("x") != nil {
		t.Fatalf("a write proposed by a non-Active rule must be silently dropped")
	}
}

func TestProposeActivateRejectLifecycle(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)

	result, err := ev.RunEffect(model.SystemRule, expr.ProposeRule{Name: "r", Body: expr.LogMsg{Message: "hi"}})
	if err != nil {
		t.Fatalf("ProposeRule failed: %v", err)
	}
	n := model.RuleNumber(result.Rule)
	r := g.FindRule(n)
	if r == nil || r.Status != model.Proposed {
		t.Fatalf("expected newly proposed rule, got %+v", r)
	}
	if len(ev.Lifecycle) != 1 || ev.Lifecycle[0].Kind != LifecycleRuleProposed {
		t.Fatalf("expected one RuleProposed lifecycle event, got %+v", ev.Lifecycle)
	}

	if _, err := ev.RunEffect(model.SystemRule, expr.ActivateRule{Number: n}); err != nil {
		t.Fatalf("ActivateRule failed: %v", err)
	}
	if g.FindRule(n).Status != model.Active {
		t.Fatalf("expected rule to become Active")
	}
}

func TestActivateRuleRejectsNonProposed(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	g.Rules = append(g.Rules, model.Rule{Number: 1, Status: model.Active})
	ev := New(g)
	if _, err := ev.RunEffect(model.SystemRule, expr.ActivateRule{Number: 1}); err == nil {
		t.Fatalf("expected error activating an already-Active rule")
	}
}

func TestRejectRuleTransitionsStatusAndCascades(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	result, _ := ev.RunEffect(model.SystemRule, expr.ProposeRule{Name: "r", Body: expr.LogMsg{}})
	n := model.RuleNumber(result.Rule)

	// A variable created directly against the model (bypassing gating,
	// the way a system migration or test fixture would) exercises the
	// cascade RejectRule triggers on the rule it's attached to.
	g.Variables = append(g.Variables, model.Variable{OwningRule: n, Name: "owned", Value: value.Int(1)})

	if _, err := ev.RunEffect(model.SystemRule, expr.RejectRule{Number: n}); err != nil {
		t.Fatalf("RejectRule failed: %v", err)
	}
	if g.FindRule(n).Status != model.Rejected {
		t.Fatalf("expected rule to become Rejected")
	}
	if g.FindVariable("owned") != nil {
		t.Fatalf("expected the rejected rule's owned variable to be purged")
	}
	if len(ev.Lifecycle) != 2 || ev.Lifecycle[1].Kind != LifecycleRuleRejected {
		t.Fatalf("expected a RuleProposed then RuleRejected lifecycle pair, got %+v", ev.Lifecycle)
	}
}

func TestThrowAndCatchError(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)

	caught := expr.CatchError{
		Body: expr.ThrowError{Message: "boom"},
		Handler: func(msg string) expr.Expr {
			return expr.EffReturn{Value: value.Str("recovered: " + msg)}
		},
	}
	v, err := ev.RunEffect(model.SystemRule, caught)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String != "recovered: boom" {
		t.Fatalf("expected handler result, got %q", v.String)
	}
}

func TestThrowEscapesToRunEffectAsError(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	_, err := ev.RunEffect(model.SystemRule, expr.ThrowError{Message: "uncaught"})
	if err == nil {
		t.Fatalf("expected an uncaught ThrowError to surface as a plain error")
	}
}

func TestEffBindSequencesEffects(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	bind := expr.EffBind{
		Sub: expr.CreateVar{Name: "x", Init: value.Int(1)},
		Cont: func(value.Value) expr.Expr {
			return expr.WriteVar{Name: "x", Value: value.Int(42)}
		},
	}
	if _, err := ev.RunEffect(model.SystemRule, bind); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.FindVariable("x").Value.Int != 42 {
		t.Fatalf("expected x = 42 after bind sequence")
	}
}

func TestSendMessageRecordsEmission(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	if _, err := ev.RunEffect(model.SystemRule, expr.SendMessage{Name: "hello", Payload: value.Str("hi")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.Emitted) != 1 || ev.Emitted[0].Name != "hello" {
		t.Fatalf("expected one emitted message, got %+v", ev.Emitted)
	}
}

func TestRandomRangeBounds(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	for i := 0; i < 50; i++ {
		v, err := ev.RunEffect(model.SystemRule, expr.RandomRange{Lo: 3, Hi: 7})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.Int < 3 || v.Int >= 7 {
			t.Fatalf("expected value in [3,7), got %d", v.Int)
		}
	}
}

func TestDeclareVictoryOnlyOnce(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	ev := New(g)
	list := expr.PureReturn{Value: value.List(nil)}
	if _, err := ev.RunEffect(model.SystemRule, expr.DeclareVictory{PlayerList: list}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ev.RunEffect(model.SystemRule, expr.DeclareVictory{PlayerList: list}); err == nil {
		t.Fatalf("expected second DeclareVictory to fail")
	}
}
