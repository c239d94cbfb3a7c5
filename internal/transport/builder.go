package transport

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/runtime"
	"github.com/cdupont/Nomyx/internal/value"
)

// buildCommand translates one wire CommandPayload into a runtime.Command
// closure the caller's GameActor can Dispatch. proposer is the issuing
// session's own player number, or -1 for an admin/spectator session
// (propose_rule requires a real player).
func buildCommand(payload CommandPayload, catalog RuleCatalog, proposer model.PlayerNumber, logger *zap.Logger) (runtime.Command, error) {
	switch payload.Kind {
	case "trigger_input":
		return func(g *model.Game) (value.Value, error) {
			return runtime.TriggerInput(g, model.EventNumber(payload.EventNumber), payload.Address, payload.Signal, payload.Input, logger)
		}, nil

	case "trigger_message":
		return func(g *model.Game) (value.Value, error) {
			return value.Value{}, runtime.TriggerMessage(g, payload.Name, payload.Message, logger)
		}, nil

	case "activate_rule":
		n := model.RuleNumber(payload.RuleNumber)
		return func(g *model.Game) (value.Value, error) {
			if _, err := runtime.RunEffect(g, model.SystemRule, expr.ActivateRule{Number: n}, logger); err != nil {
				return value.Value{}, err
			}
			// Per the engine's data flow, activating a rule is followed by
			// executing that rule's own body under its own authority — a
			// newly Active rule typically registers the event handlers or
			// variables its effect depends on.
			r := g.FindRule(n)
			if r == nil || r.Body == nil {
				return value.Bool(true), nil
			}
			body, ok := r.Body.(expr.Expr)
			if !ok {
				return value.Bool(true), nil
			}
			return runtime.RunEffect(g, n, body, logger)
		}, nil

	case "reject_rule":
		n := model.RuleNumber(payload.RuleNumber)
		return func(g *model.Game) (value.Value, error) {
			return runtime.RunEffect(g, model.SystemRule, expr.RejectRule{Number: n}, logger)
		}, nil

	case "propose_rule":
		if proposer < 0 {
			return nil, fmt.Errorf("transport: only a seated player may propose a rule")
		}
		if catalog == nil {
			return nil, fmt.Errorf("transport: no rule catalog configured")
		}
		compiled, err := catalog.Compile(payload.RuleSource)
		if err != nil {
			return nil, fmt.Errorf("transport: compile rule source %q: %w", payload.RuleSource, err)
		}
		body, ok := compiled.(expr.Expr)
		if !ok {
			return nil, fmt.Errorf("transport: rule catalog entry %q did not produce an effect expression", payload.RuleSource)
		}
		propose := expr.ProposeRule{
			Name:        payload.RuleName,
			Description: payload.RuleDescription,
			Source:      payload.RuleSource,
			Body:        body,
			Proposer:    proposer,
		}
		return func(g *model.Game) (value.Value, error) {
			return runtime.RunEffect(g, model.SystemRule, propose, logger)
		}, nil

	default:
		return nil, fmt.Errorf("transport: unknown command kind %q", payload.Kind)
	}
}
