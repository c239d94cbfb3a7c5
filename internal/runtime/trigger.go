package runtime

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/eval"
	"github.com/cdupont/Nomyx/internal/event"
	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// matchFunc decides whether a pending signal is the one an incoming
// occurrence satisfies; exact-key triggers (messages, player lifecycle)
// use a plain equality match, trigger_time uses a <= comparison instead.
type matchFunc func(model.SignalKey) bool

func exactMatch(key model.SignalKey) matchFunc {
	return func(k model.SignalKey) bool { return k == key }
}

func pureEvalFor(ev *eval.Evaluator, acting model.RuleNumber) event.PureEvalFunc {
	return func(pe expr.PureExpr) (value.Value, error) { return ev.Pure(acting, pe) }
}

// activeEventNumbersByRule snapshots the Active events sorted by
// ascending owning rule, the static order spec.md §4.5 requires for
// broadcast triggers. Returned as numbers, not pointers: handler effects
// run mid-pipeline can append to Game.Events, and a pointer taken before
// such an append may alias stale backing storage once the slice grows.
func activeEventNumbersByRule(g *model.Game) []model.EventNumber {
	type pair struct {
		num   model.EventNumber
		owner model.RuleNumber
	}
	var pairs []pair
	for _, info := range g.Events {
		if info.Status == model.EventActive {
			pairs = append(pairs, pair{info.Number, info.OwningRule})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].owner < pairs[j].owner })
	out := make([]model.EventNumber, len(pairs))
	for i, p := range pairs {
		out[i] = p.num
	}
	return out
}

// attemptDeliverMatch resolves info's current environment, and if one of
// the signals still awaited satisfies match (and, when addrKey is
// non-nil, was exposed at that exact address), commits the occurrence
// and reports true. It never finalizes — the caller re-fetches info and
// calls finalizeIfDone separately, since committing can make the event
// Done.
func attemptDeliverMatch(info *model.EventInfo, match matchFunc, payloadFor func(model.SignalKey) value.Value, addrKey *string, pureEval event.PureEvalFunc) (bool, error) {
	evExpr, ok := info.Expr.(expr.Event)
	if !ok {
		return false, fmt.Errorf("runtime: event #%d has no Event expression", info.Number)
	}
	todo, err := event.Resolve(evExpr, info.Env, pureEval)
	if err != nil {
		return false, err
	}
	if todo.IsDone() {
		return false, nil
	}
	for _, p := range todo.Pending() {
		if !match(p.Signal) {
			continue
		}
		if addrKey != nil && p.Address.Key() != *addrKey {
			continue
		}
		info.Env = append(info.Env, model.SignalOccurrence{
			Signal:  p.Signal,
			Payload: payloadFor(p.Signal),
			Address: []model.AddressTag(p.Address),
		})
		return true, nil
	}
	return false, nil
}

func attemptDeliver(info *model.EventInfo, key model.SignalKey, payload value.Value, addrKey *string, pureEval event.PureEvalFunc) (bool, error) {
	return attemptDeliverMatch(info, exactMatch(key), func(model.SignalKey) value.Value { return payload }, addrKey, pureEval)
}

// finalizeIfDone re-resolves info after a commit; if the event is now
// Done, it clears the environment and invokes the handler under the
// event's owning rule. A handler error is logged, not returned — one
// event's failing handler must not abort the signal delivery that
// triggered it, nor the sibling events still processing the same
// broadcast (spec.md §4.3 "Error isolation"). Whatever the handler did —
// SendMessage calls, rule/player lifecycle mutations — is then drained
// back through the trigger pipeline, recursively, on this same call
// stack (spec.md §4.5 "Re-entrancy": no queues, no deferral).
func finalizeIfDone(g *model.Game, info *model.EventInfo, logger *zap.Logger) error {
	ev := eval.New(g)
	pureEval := pureEvalFor(ev, info.OwningRule)
	evExpr, ok := info.Expr.(expr.Event)
	if !ok {
		return fmt.Errorf("runtime: event #%d has no Event expression", info.Number)
	}
	todo, err := event.Resolve(evExpr, info.Env, pureEval)
	if err != nil {
		return err
	}
	if !todo.IsDone() {
		return nil
	}
	result := todo.Value()
	info.Env = nil

	handler, ok := info.Handler.(func(value.Value) expr.Expr)
	if !ok {
		return fmt.Errorf("runtime: event #%d has no handler", info.Number)
	}
	effectExpr := handler(result)

	if _, err := ev.RunEffect(info.OwningRule, effectExpr); err != nil {
		msg := fmt.Sprintf("event #%d handler: %v", info.Number, err)
		g.AppendLog(nil, model.LogError, msg)
		logger.Warn("event handler error", zap.Int("event", int(info.Number)), zap.Error(err))
	}
	return drainReactions(g, ev, logger)
}

// drainReactions turns whatever an effect pass recorded — emitted
// messages, raised lifecycle signals — into further trigger calls. ev's
// buffers are cleared first so a reaction's own reactions accumulate
// cleanly on the next drain rather than being replayed.
func drainReactions(g *model.Game, ev *eval.Evaluator, logger *zap.Logger) error {
	emitted := ev.Emitted
	lifecycle := ev.Lifecycle
	ev.Emitted = nil
	ev.Lifecycle = nil

	for _, m := range emitted {
		if err := TriggerMessage(g, m.Name, m.Payload, logger); err != nil {
			return err
		}
	}
	for _, lc := range lifecycle {
		if err := triggerLifecycle(g, lc, logger); err != nil {
			return err
		}
	}
	return nil
}

func triggerLifecycle(g *model.Game, lc eval.LifecycleEvent, logger *zap.Logger) error {
	switch lc.Kind {
	case eval.LifecycleRuleProposed:
		return TriggerRuleLifecycle(g, model.RuleProposedEvt, lc.Rule, logger)
	case eval.LifecycleRuleActivated:
		return TriggerRuleLifecycle(g, model.RuleActivatedEvt, lc.Rule, logger)
	case eval.LifecycleRuleRejected:
		return TriggerRuleLifecycle(g, model.RuleRejectedEvt, lc.Rule, logger)
	case eval.LifecycleRuleAdded:
		return TriggerRuleLifecycle(g, model.RuleAddedEvt, lc.Rule, logger)
	case eval.LifecycleRuleModified:
		return TriggerRuleLifecycle(g, model.RuleModifiedEvt, lc.Rule, logger)
	case eval.LifecyclePlayerLeft:
		return TriggerPlayerLifecycle(g, model.PlayerLeaveEvt, lc.Player, logger)
	case eval.LifecycleVictoryDeclared:
		return TriggerVictory(g, logger)
	default:
		return nil
	}
}

// broadcast delivers key to every Active event, in static owning-rule
// order, re-fetching each event's pointer immediately before every use —
// a handler invoked earlier in the same broadcast may have appended new
// events or outputs, and Go does not guarantee append preserves a
// slice's backing array.
func broadcast(g *model.Game, match matchFunc, payloadFor func(model.SignalKey) value.Value, logger *zap.Logger) error {
	for _, n := range activeEventNumbersByRule(g) {
		info := g.FindEvent(n)
		if info == nil || info.Status != model.EventActive {
			continue
		}
		pureEval := pureEvalFor(eval.New(g), info.OwningRule)
		committed, err := attemptDeliverMatch(info, match, payloadFor, nil, pureEval)
		if err != nil {
			return err
		}
		if !committed {
			continue
		}
		info = g.FindEvent(n)
		if info == nil {
			continue
		}
		if err := finalizeIfDone(g, info, logger); err != nil {
			return err
		}
	}
	return nil
}

// TriggerInput delivers a UI-originated input signal to exactly the
// event number and address the UI was shown when the field was rendered
// — unlike every other trigger, this one never broadcasts (spec.md
// §4.5 step 1).
func TriggerInput(g *model.Game, eventNum model.EventNumber, addrKey string, signal model.SignalKey, payload value.Value, logger *zap.Logger) (value.Value, error) {
	info := g.FindEvent(eventNum)
	if info == nil || info.Status != model.EventActive {
		g.AppendLog(nil, model.LogWarn, fmt.Sprintf("input trigger: event #%d is not active", eventNum))
		return value.Bool(false), nil
	}
	pureEval := pureEvalFor(eval.New(g), info.OwningRule)
	committed, err := attemptDeliver(info, signal, payload, &addrKey, pureEval)
	if err != nil {
		return value.Value{}, err
	}
	if !committed {
		g.AppendLog(nil, model.LogWarn, fmt.Sprintf("input trigger: event #%d has no pending signal at address %q", eventNum, addrKey))
		return value.Bool(false), nil
	}
	info = g.FindEvent(eventNum)
	if info == nil {
		return value.Bool(true), nil
	}
	if err := finalizeIfDone(g, info, logger); err != nil {
		return value.Value{}, err
	}
	return value.Bool(true), nil
}

// TriggerTime advances the game clock to nowUnixMs and fires every timer
// signal whose deadline has passed. Unlike the other broadcast triggers,
// matching is a <= comparison rather than key equality, since a timer's
// deadline is data carried in the signal, not a fixed address to match
// against verbatim.
func TriggerTime(g *model.Game, nowUnixMs int64, logger *zap.Logger) error {
	if nowUnixMs > g.Now.UnixMilli() {
		g.Now = time.UnixMilli(nowUnixMs).UTC()
	}
	match := func(k model.SignalKey) bool { return k.Kind == model.SigTimer && k.Timer <= nowUnixMs }
	payloadFor := func(k model.SignalKey) value.Value { return value.Int(int(k.Timer)) }
	return broadcast(g, match, payloadFor, logger)
}

// TriggerMessage broadcasts a named message signal (spec.md's
// inject_message / SendMessage) to every Active event awaiting it.
func TriggerMessage(g *model.Game, name string, payload value.Value, logger *zap.Logger) error {
	key := model.SignalKey{Kind: model.SigMessage, FieldName: name}
	return broadcast(g, exactMatch(key), func(model.SignalKey) value.Value { return payload }, logger)
}

// TriggerRuleLifecycle broadcasts a rule-lifecycle signal of the given
// kind; the affected rule travels in the payload rather than the key, as
// no event scopes its wait to a single rule number (spec.md §4.3's
// lifecycle list).
func TriggerRuleLifecycle(g *model.Game, kind model.RuleLifeKind, rule model.RuleNumber, logger *zap.Logger) error {
	key := model.SignalKey{Kind: model.SigRuleLifecycle, RuleLife: kind}
	payload := value.Rule(int(rule))
	return broadcast(g, exactMatch(key), func(model.SignalKey) value.Value { return payload }, logger)
}

// TriggerPlayerLifecycle broadcasts a player-lifecycle signal scoped to
// one player: unlike rule lifecycle, SignalKey carries the player number
// itself, so an event can wait on a specific player's departure.
func TriggerPlayerLifecycle(g *model.Game, kind model.PlayerLifeKind, player model.PlayerNumber, logger *zap.Logger) error {
	key := model.SignalKey{Kind: model.SigPlayerLifecycle, PlayerLife: kind, Player: player}
	payload := value.Player(int(player))
	return broadcast(g, exactMatch(key), func(model.SignalKey) value.Value { return payload }, logger)
}

// TriggerVictory broadcasts the single victory-declared signal.
func TriggerVictory(g *model.Game, logger *zap.Logger) error {
	key := model.SignalKey{Kind: model.SigVictoryDeclared}
	payload := value.Bool(true)
	return broadcast(g, exactMatch(key), func(model.SignalKey) value.Value { return payload }, logger)
}

// RunEffect runs e under acting (typically a freshly proposed rule's
// body, or any other system- or player-initiated effect) and then drains
// whatever it emitted or raised through the trigger pipeline, so a
// single call fully settles one round of reaction before returning —
// the same "no queues, no deferral" rule applies to the effect that
// starts a cascade as to the handlers it cascades into.
func RunEffect(g *model.Game, acting model.RuleNumber, e expr.Expr, logger *zap.Logger) (value.Value, error) {
	ev := eval.New(g)
	result, err := ev.RunEffect(acting, e)
	if err != nil {
		return result, err
	}
	if err := drainReactions(g, ev, logger); err != nil {
		return result, err
	}
	return result, nil
}
