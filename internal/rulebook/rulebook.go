// Package rulebook is the host's own catalog of known rule sources: the
// concrete answer to runtime.Bootstrap's re-attachment problem (a rule's
// compiled body is a Go closure, never wire data, so neither a snapshot
// nor a client's propose_rule command can carry one — only the Source
// string that names an entry here).
//
// A real deployment would let admins register new sources at runtime;
// this catalog ships a small fixed starter set, enough to bootstrap a
// playable game and to exercise ProposeRule/ActivateRule/RejectRule from
// a client without any rule-authoring tooling of its own.
package rulebook

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/runtime"
	"github.com/cdupont/Nomyx/internal/value"
	"github.com/cdupont/Nomyx/internal/vote"
)

// voteWindowMs is how long a majority-activates poll stays open before its
// deadline timer forces a decision on whoever has voted so far.
const voteWindowMs = 60_000

// Source keys, stable across the life of a deployment: a snapshot's
// Rule.Source and a client's propose_rule payload both reference these.
const (
	CoreRuleZero      = "core.rule_zero"
	ScoreKeeper       = "core.score_keeper"
	MajorityActivates = "core.majority_activates"
	WelcomeMessage    = "core.welcome_message"
)

// Catalog resolves a Source key to its compiled expr.Expr, satisfying
// transport.RuleCatalog (transport never imports this package directly,
// to avoid an import cycle — it depends only on the interface shape).
type Catalog struct {
	entries map[string]expr.Expr
}

// NewCatalog builds the fixed starter catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: map[string]expr.Expr{
			CoreRuleZero:      coreRuleZero(),
			ScoreKeeper:       scoreKeeper(),
			MajorityActivates: majorityActivates(),
			WelcomeMessage:    welcomeMessage(),
		},
	}
}

// Compile implements transport.RuleCatalog.
func (c *Catalog) Compile(source string) (interface{}, error) {
	body, ok := c.entries[source]
	if !ok {
		return nil, fmt.Errorf("rulebook: unknown rule source %q", source)
	}
	return body, nil
}

// Bootstrap installs the starter ruleset on a freshly created game, as a
// runtime.Manager Bootstrap hook. On a rehydrated game its job is only
// to refill each existing Rule's Body slot (a snapshot never carries
// compiled code, only the Source key); on a brand new game it also
// seeds the starter set from scratch.
func Bootstrap(catalog *Catalog) func(g *model.Game) {
	return func(g *model.Game) {
		for i := range g.Rules {
			body, err := catalog.Compile(g.Rules[i].Source)
			if err != nil {
				continue
			}
			g.Rules[i].Body = body
		}
		if len(g.Rules) == 0 {
			seedStarterRules(g, catalog)
		}
	}
}

// seedStarterRules installs the starter set pre-activated via AddRule
// (system bootstrap, spec.md §4's "during system bootstrap, rule 0"
// carve-out), then — matching the driver duty the engine documents for
// every freshly activated rule — runs each one's own Body once under
// its own new authority.
func seedStarterRules(g *model.Game, catalog *Catalog) {
	seed := []struct {
		name, desc, source string
	}{
		{"Constitution", "every player may propose, amend and repeal rules; a majority vote activates or rejects a proposal.", CoreRuleZero},
		{"Score Keeper", "maintains a shared scoreboard variable.", ScoreKeeper},
		{"Majority Activates", "a proposed rule is activated the moment more than half the players have voted for it, rejected as soon as enough vote against that such a majority can no longer be reached.", MajorityActivates},
		{"Welcome Message", "announces a rule joining the active set.", WelcomeMessage},
	}
	logger := zap.NewNop()
	for _, s := range seed {
		body, err := catalog.Compile(s.source)
		if err != nil {
			continue
		}
		add := expr.AddRule{Name: s.name, Description: s.desc, Source: s.source, Body: body, Proposer: model.SystemRule}
		result, err := runtime.RunEffect(g, model.SystemRule, add, logger)
		if err != nil {
			continue
		}
		n := model.RuleNumber(result.Rule)
		r := g.FindRule(n)
		if r == nil || r.Body == nil {
			continue
		}
		rb, ok := r.Body.(expr.Expr)
		if !ok {
			continue
		}
		_, _ = runtime.RunEffect(g, n, rb, logger)
	}
}

func coreRuleZero() expr.Expr {
	return expr.LogMsg{Message: "constitution in effect: proposals are activated or rejected by majority vote"}
}

func scoreKeeper() expr.Expr {
	return expr.CreateVar{Name: "scores", Init: value.List(nil)}
}

// majorityActivates registers one standing listener on the rule-proposed
// lifecycle signal, for the life of the game: a broadcast trigger's
// matched event has its environment cleared but is never deleted (spec.md
// §4.5's re-entrancy model — only an explicit DeleteEvent retires a
// listener), so this same listener is pending again immediately after
// firing and catches the next proposal too, with no re-registration
// needed.
func majorityActivates() expr.Expr {
	return expr.OnEvent{
		Event: expr.EvSignal{Key: model.SignalKey{Kind: model.SigRuleLifecycle, RuleLife: model.RuleProposedEvt}},
		Handler: func(v value.Value) expr.Expr {
			return callMajorityVote(model.RuleNumber(v.Rule))
		},
	}
}

// callMajorityVote polls every seated player on proposed, activating it
// the moment more than half vote for it and rejecting it as soon as enough
// vote against that such a majority can no longer be reached (the
// Constitution's own promise, see the seed description above).
func callMajorityVote(proposed model.RuleNumber) expr.Expr {
	return expr.EffBind{
		Sub: expr.LiftPureEff{Sub: expr.ListPlayers{}},
		Cont: func(players value.Value) expr.Expr {
			voters := make([]model.PlayerNumber, len(players.List))
			for i, p := range players.List {
				voters[i] = model.PlayerNumber(p.Player)
			}
			return expr.EffBind{
				Sub: expr.LiftPureEff{Sub: expr.CurrentTime{}},
				Cont: func(now value.Value) expr.Expr {
					deadline := int64(now.Int)*1000 + voteWindowMs
					return vote.CallVote(voters, vote.Majority, deadline, "majority vote on rule proposal", func(passed bool) expr.Expr {
						if passed {
							return expr.ActivateRule{Number: proposed}
						}
						return expr.RejectRule{Number: proposed}
					})
				},
			}
		},
	}
}

func welcomeMessage() expr.Expr {
	return expr.SendMessage{Name: "rule_welcome", Payload: value.Str("a new rule just joined the active set")}
}
