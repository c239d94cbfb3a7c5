package runtime

import (
	"testing"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

func newTestGame() *model.Game {
	return model.NewGame("g", "d", 1)
}

func TestRunEffectCommitsAndDrainsNoReactions(t *testing.T) {
	g := newTestGame()
	logger := zap.NewNop()
	v, err := RunEffect(g, model.SystemRule, expr.CreateVar{Name: "x", Init: value.Int(1)}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Bool {
		t.Fatalf("expected CreateVar to report success")
	}
	if g.FindVariable("x") == nil {
		t.Fatalf("expected variable x to exist")
	}
}

func TestTriggerMessageDeliversToWaitingEvent(t *testing.T) {
	g := newTestGame()
	logger := zap.NewNop()

	onEvent := expr.OnEvent{
		Event:   expr.EvSignal{Key: model.SignalKey{Kind: model.SigMessage, FieldName: "ping"}},
		Handler: func(v value.Value) expr.Expr { return expr.WriteVar{Name: "last", Value: v} },
	}
	if _, err := RunEffect(g, model.SystemRule, expr.CreateVar{Name: "last", Init: value.Str("")}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := RunEffect(g, model.SystemRule, onEvent, logger); err != nil {
		t.Fatalf("unexpected error registering event: %v", err)
	}

	if err := TriggerMessage(g, "ping", value.Str("pong"), logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := g.FindVariable("last").Value.String; got != "pong" {
		t.Fatalf("expected handler to write the message payload, got %q", got)
	}
}

func TestTriggerMessageIgnoresNonMatchingEvents(t *testing.T) {
	g := newTestGame()
	logger := zap.NewNop()
	onEvent := expr.OnEvent{
		Event:   expr.EvSignal{Key: model.SignalKey{Kind: model.SigMessage, FieldName: "other"}},
		Handler: func(v value.Value) expr.Expr { return expr.LogMsg{Message: "fired"} },
	}
	if _, err := RunEffect(g, model.SystemRule, onEvent, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := TriggerMessage(g, "ping", value.Bool(true), logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, l := range g.Log {
		if l.Message == "fired" {
			t.Fatalf("a non-matching message must not fire the event's handler")
		}
	}
}

func TestTriggerInputDeliversOnlyToAddressedEvent(t *testing.T) {
	g := newTestGame()
	logger := zap.NewNop()
	key := model.SignalKey{Kind: model.SigInputText, Player: 1, FieldName: "name"}
	onEvent := expr.OnEvent{
		Event:   expr.EvSignal{Key: key},
		Handler: func(v value.Value) expr.Expr { return expr.WriteVar{Name: "name", Value: v} },
	}
	if _, err := RunEffect(g, model.SystemRule, expr.CreateVar{Name: "name", Init: value.Str("")}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, err := RunEffect(g, model.SystemRule, onEvent, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventNum := model.EventNumber(result.Int)

	ok, err := TriggerInput(g, eventNum, "", key, value.Str("alice"), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok.Bool {
		t.Fatalf("expected TriggerInput to report success")
	}
	if got := g.FindVariable("name").Value.String; got != "alice" {
		t.Fatalf("expected handler to write the input payload, got %q", got)
	}
}

func TestTriggerInputRejectsWrongAddress(t *testing.T) {
	g := newTestGame()
	logger := zap.NewNop()
	key := model.SignalKey{Kind: model.SigInputText, Player: 1, FieldName: "name"}
	onEvent := expr.OnEvent{
		Event:   expr.EvSignal{Key: key},
		Handler: func(v value.Value) expr.Expr { return expr.LogMsg{Message: "unexpected"} },
	}
	result, err := RunEffect(g, model.SystemRule, onEvent, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eventNum := model.EventNumber(result.Int)

	ok, err := TriggerInput(g, eventNum, "wrong-address", key, value.Str("alice"), logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Bool {
		t.Fatalf("expected TriggerInput to report failure for a mismatched address")
	}
}

func TestDrainReactionsCascadesRuleLifecycleIntoWaitingEvent(t *testing.T) {
	g := newTestGame()
	logger := zap.NewNop()

	onEvent := expr.OnEvent{
		Event:   expr.EvSignal{Key: model.SignalKey{Kind: model.SigRuleLifecycle, RuleLife: model.RuleActivatedEvt}},
		Handler: func(v value.Value) expr.Expr { return expr.WriteVar{Name: "activated", Value: v} },
	}
	if _, err := RunEffect(g, model.SystemRule, expr.CreateVar{Name: "activated", Init: value.Rule(0)}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := RunEffect(g, model.SystemRule, onEvent, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proposed, err := RunEffect(g, model.SystemRule, expr.ProposeRule{Name: "r", Body: expr.LogMsg{}}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n := model.RuleNumber(proposed.Rule)

	// Activating the rule raises a RuleActivated lifecycle signal that
	// RunEffect must drain straight into the waiting event above.
	if _, err := RunEffect(g, model.SystemRule, expr.ActivateRule{Number: n}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.FindVariable("activated").Value.Rule != int(n) {
		t.Fatalf("expected rule-activation lifecycle to reach the waiting event, got %+v", g.FindVariable("activated").Value)
	}
}

func TestBroadcastDeliversInOwningRuleOrder(t *testing.T) {
	g := newTestGame()
	logger := zap.NewNop()
	if _, err := RunEffect(g, model.SystemRule, expr.CreateVar{Name: "order", Init: value.List(nil)}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := func(tag string) expr.Expr {
		return expr.ModifyVar{Name: "order", Update: func(v value.Value) value.Value {
			return value.List(append(append([]value.Value(nil), v.List...), value.Str(tag)))
		}}
	}

	msgKey := model.SignalKey{Kind: model.SigMessage, FieldName: "go"}
	highRule, err := RunEffect(g, model.SystemRule, expr.AddRule{Name: "high", Body: expr.LogMsg{}}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lowRule, err := RunEffect(g, model.SystemRule, expr.AddRule{Name: "low", Body: expr.LogMsg{}}, logger)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := RunEffect(g, model.RuleNumber(highRule.Rule), expr.OnEvent{
		Event:   expr.EvSignal{Key: msgKey},
		Handler: func(value.Value) expr.Expr { return record("high") },
	}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := RunEffect(g, model.RuleNumber(lowRule.Rule), expr.OnEvent{
		Event:   expr.EvSignal{Key: msgKey},
		Handler: func(value.Value) expr.Expr { return record("low") },
	}, logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := TriggerMessage(g, "go", value.Bool(true), logger); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := g.FindVariable("order").Value.List
	if len(order) != 2 {
		t.Fatalf("expected both handlers to fire, got %+v", order)
	}
	wantFirst := "high"
	if int(lowRule.Rule) < int(highRule.Rule) {
		wantFirst = "low"
	}
	if order[0].String != wantFirst {
		t.Fatalf("expected delivery in ascending owning-rule order, got %+v", order)
	}
}
