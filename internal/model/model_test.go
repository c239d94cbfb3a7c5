package model

import (
	"testing"

	"github.com/cdupont/Nomyx/internal/value"
)

func TestNewGameIsSeededDeterministically(t *testing.T) {
	a := NewGame("g", "d", 42)
	b := NewGame("g", "d", 42)
	if a.RNG.Int63() != b.RNG.Int63() {
		t.Fatalf("two games seeded with the same value should draw identical sequences")
	}
}

func TestIsRuleActive(t *testing.T) {
	g := NewGame("g", "d", 1)
	g.Rules = append(g.Rules, Rule{Number: 1, Status: Proposed})
	g.Rules = append(g.Rules, Rule{Number: 2, Status: Active})

	if !g.IsRuleActive(SystemRule) {
		t.Errorf("the system rule must always be considered active")
	}
	if g.IsRuleActive(1) {
		t.Errorf("a Proposed rule must not be considered active")
	}
	if !g.IsRuleActive(2) {
		t.Errorf("an Active rule must be considered active")
	}
	if g.IsRuleActive(99) {
		t.Errorf("a nonexistent rule must not be considered active")
	}
}

func TestNextEventNumberStartsAtOne(t *testing.T) {
	g := NewGame("g", "d", 1)
	if n := g.NextEventNumber(); n != 1 {
		t.Fatalf("expected first event number 1, got %d", n)
	}
	g.Events = append(g.Events, EventInfo{Number: 1})
	g.Events = append(g.Events, EventInfo{Number: 5})
	if n := g.NextEventNumber(); n != 6 {
		t.Fatalf("expected next event number 6, got %d", n)
	}
}

func TestNextOutputNumberStartsAtOne(t *testing.T) {
	g := NewGame("g", "d", 1)
	if n := g.NextOutputNumber(); n != 1 {
		t.Fatalf("expected first output number 1, got %d", n)
	}
}

func TestFindHelpers(t *testing.T) {
	g := NewGame("g", "d", 1)
	g.Rules = append(g.Rules, Rule{Number: 3, Name: "r"})
	g.Players = append(g.Players, Player{Number: 1, Name: "alice"})
	g.Variables = append(g.Variables, Variable{Name: "score"})
	g.Events = append(g.Events, EventInfo{Number: 2})
	g.Outputs = append(g.Outputs, Output{Number: 4})

	if r := g.FindRule(3); r == nil || r.Name != "r" {
		t.Errorf("FindRule(3) failed")
	}
	if g.FindRule(99) != nil {
		t.Errorf("FindRule should return nil for a missing rule")
	}
	if p := g.FindPlayer(1); p == nil || p.Name != "alice" {
		t.Errorf("FindPlayer(1) failed")
	}
	if v := g.FindVariable("score"); v == nil {
		t.Errorf("FindVariable(score) failed")
	}
	if e := g.FindEvent(2); e == nil {
		t.Errorf("FindEvent(2) failed")
	}
	if o := g.FindOutput(4); o == nil {
		t.Errorf("FindOutput(4) failed")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	g := NewGame("g", "d", 1)
	g.Rules = append(g.Rules, Rule{Number: 1, Name: "original"})
	g.Variables = append(g.Variables, Variable{Name: "v", Value: value.Int(1)})

	cp := g.Copy()
	cp.Rules[0].Name = "mutated"
	cp.Variables[0].Value = value.Int(99)

	if g.Rules[0].Name != "original" {
		t.Errorf("mutating the copy's rules must not affect the original")
	}
	if g.Variables[0].Value.Int != 1 {
		t.Errorf("mutating the copy's variables must not affect the original")
	}
}

func TestCopyPreservesRNGState(t *testing.T) {
	g := NewGame("g", "d", 7)
	g.RNG.Int63() // advance the original's RNG past its seed
	cp := g.Copy()
	if cp.RNG.Int63() != g.RNG.Int63() {
		t.Errorf("Copy must preserve RNG stream position, not just reseed from scratch")
	}
}

func TestRejectRuleCascadePurgesOwnedState(t *testing.T) {
	g := NewGame("g", "d", 1)
	g.Variables = append(g.Variables, Variable{OwningRule: 1, Name: "a"}, Variable{OwningRule: 2, Name: "b"})
	g.Events = append(g.Events, EventInfo{Number: 1, OwningRule: 1, Status: EventActive})
	g.Outputs = append(g.Outputs, Output{Number: 1, OwningRule: 1}, Output{Number: 2, OwningRule: 2})
	g.Victory = &Victory{DeclaringRule: 1}

	g.RejectRuleCascade(1)

	if len(g.Variables) != 1 || g.Variables[0].Name != "b" {
		t.Errorf("expected only rule 2's variable to survive, got %+v", g.Variables)
	}
	if g.Events[0].Status != EventDeleted {
		t.Errorf("expected rule 1's event to be tombstoned")
	}
	if len(g.Outputs) != 1 || g.Outputs[0].Number != 2 {
		t.Errorf("expected only rule 2's output to survive, got %+v", g.Outputs)
	}
	if g.Victory != nil {
		t.Errorf("expected victory declared by rejected rule to be cleared")
	}
}

func TestRejectRuleCascadeKeepsUnrelatedVictory(t *testing.T) {
	g := NewGame("g", "d", 1)
	g.Victory = &Victory{DeclaringRule: 2}
	g.RejectRuleCascade(1)
	if g.Victory == nil {
		t.Errorf("victory declared by a different rule must survive")
	}
}
