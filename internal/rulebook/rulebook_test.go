package rulebook

import (
	"testing"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/event"
	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/runtime"
	"github.com/cdupont/Nomyx/internal/value"
)

func TestCatalogCompileKnownAndUnknownSource(t *testing.T) {
	c := NewCatalog()
	body, err := c.Compile(CoreRuleZero)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, ok := body.(expr.Expr); !ok {
		t.Fatalf("expected a compiled expr.Expr, got %T", body)
	}
	if _, err := c.Compile("no.such.source"); err == nil {
		t.Fatalf("expected an error compiling an unknown source")
	}
}

func TestBootstrapSeedsStarterRulesOnAFreshGame(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	catalog := NewCatalog()
	Bootstrap(catalog)(g)

	if len(g.Rules) != 4 {
		t.Fatalf("expected the 4 starter rules to be seeded, got %d", len(g.Rules))
	}
	for _, r := range g.Rules {
		if r.Status != model.Active {
			t.Fatalf("expected every starter rule to be pre-activated, got %+v", r)
		}
		if r.Body == nil {
			t.Fatalf("expected every starter rule to have a compiled body attached, got %+v", r)
		}
	}
	if g.FindVariable("scores") == nil {
		t.Fatalf("expected the Score Keeper rule's body to have run, creating the scores variable")
	}
}

func TestBootstrapReattachesBodiesOnARehydratedGame(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	g.Rules = append(g.Rules, model.Rule{Number: 1, Name: "Constitution", Source: CoreRuleZero, Status: model.Active})

	catalog := NewCatalog()
	Bootstrap(catalog)(g)

	if len(g.Rules) != 1 {
		t.Fatalf("expected no new starter rules to be seeded on a non-empty rule set, got %d", len(g.Rules))
	}
	if g.Rules[0].Body == nil {
		t.Fatalf("expected the existing rule's body to be re-attached from its Source")
	}
}

// findShortcutEvent locates the one Active event majorityActivates
// registered for a proposal's vote (as opposed to its own standing
// listener, which waits on a plain EvSignal and never itself becomes a
// shortcut).
func findShortcutEvent(g *model.Game) *model.EventInfo {
	for i := range g.Events {
		if _, ok := g.Events[i].Expr.(expr.EvShortcut); ok {
			return &g.Events[i]
		}
	}
	return nil
}

func countShortcutEvents(g *model.Game) int {
	n := 0
	for _, e := range g.Events {
		if _, ok := e.Expr.(expr.EvShortcut); ok {
			n++
		}
	}
	return n
}

func voteInputAddr(childIndex int) string {
	return event.Address{{Kind: model.ShortcutAt, Index: childIndex}}.Key()
}

func TestMajorityActivatesCallsAVoteAndActivatesOnMajority(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	catalog := NewCatalog()
	Bootstrap(catalog)(g)
	g.Players = append(g.Players, model.Player{Number: 1}, model.Player{Number: 2}, model.Player{Number: 3})

	logger := zap.NewNop()
	result, err := runtime.RunEffect(g, model.SystemRule, expr.ProposeRule{
		Name: "Extra Turn", Description: "d", Source: WelcomeMessage, Body: nil, Proposer: 1,
	}, logger)
	if err != nil {
		t.Fatalf("ProposeRule failed: %v", err)
	}
	proposed := model.RuleNumber(result.Rule)
	if r := g.FindRule(proposed); r == nil || r.Status != model.Proposed {
		t.Fatalf("expected the new rule to start Proposed, got %+v", r)
	}

	voteEvent := findShortcutEvent(g)
	if voteEvent == nil {
		t.Fatalf("expected the proposal to arm a vote shortcut event")
	}
	voteNum := voteEvent.Number

	// voters[0]=player 1 at child index 1, voters[1]=player 2 at child
	// index 2 (child 0 is the deadline timer) — two of three is a
	// majority of three seated players (quota 2).
	for i, pn := range []model.PlayerNumber{1, 2} {
		signal := model.SignalKey{Kind: model.SigInputRadio, Player: pn, FieldName: "vote"}
		if _, err := runtime.TriggerInput(g, voteNum, voteInputAddr(i+1), signal, value.Bool(true), logger); err != nil {
			t.Fatalf("TriggerInput for player %d failed: %v", pn, err)
		}
	}

	r := g.FindRule(proposed)
	if r == nil || r.Status != model.Active {
		t.Fatalf("expected a 2-of-3 majority to activate the proposal, got %+v", r)
	}
}

func TestMajorityActivatesRearmsForTheNextProposal(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	catalog := NewCatalog()
	Bootstrap(catalog)(g)
	g.Players = append(g.Players, model.Player{Number: 1})

	logger := zap.NewNop()
	if _, err := runtime.RunEffect(g, model.SystemRule, expr.ProposeRule{
		Name: "First", Description: "d", Source: WelcomeMessage, Body: nil, Proposer: 1,
	}, logger); err != nil {
		t.Fatalf("first ProposeRule failed: %v", err)
	}

	// Still exactly one standing rule-proposed listener after handling the
	// first proposal, not zero (consumed) and not two (duplicated).
	listeners := 0
	for _, e := range g.Events {
		if sig, ok := e.Expr.(expr.EvSignal); ok && sig.Key.Kind == model.SigRuleLifecycle && sig.Key.RuleLife == model.RuleProposedEvt {
			listeners++
		}
	}
	if listeners != 1 {
		t.Fatalf("expected exactly one standing rule-proposed listener after a proposal, got %d", listeners)
	}

	before := countShortcutEvents(g)
	if _, err := runtime.RunEffect(g, model.SystemRule, expr.ProposeRule{
		Name: "Second", Description: "d", Source: WelcomeMessage, Body: nil, Proposer: 1,
	}, logger); err != nil {
		t.Fatalf("second ProposeRule failed: %v", err)
	}
	if after := countShortcutEvents(g); after != before+1 {
		t.Fatalf("expected the second proposal to arm one more vote shortcut (proving the listener rearmed), got %d before and %d after", before, after)
	}
}

func TestBootstrapLeavesUnknownSourceBodyNil(t *testing.T) {
	g := model.NewGame("g", "d", 1)
	g.Rules = append(g.Rules, model.Rule{Number: 1, Name: "mystery", Source: "unregistered.source", Status: model.Active})

	catalog := NewCatalog()
	Bootstrap(catalog)(g)

	if g.Rules[0].Body != nil {
		t.Fatalf("expected a rule with an unregistered source to keep a nil body, got %+v", g.Rules[0].Body)
	}
}
