// Package expr is the expression AST: the effect-free language
// (PureExpr), the effectful language (Expr) and the event combinator
// language (Event), per the engine's Expression AST component. Each
// language is a closed tagged union, encoded — per the design notes —
// as an interface with one concrete struct per variant; the runtime type
// of the value carried at the leaves is value.Value's own Kind tag, so a
// consumer downcasts with a type switch exactly once, at the leaf, not at
// every level of the tree.
//
// This package is pure data: it carries no evaluation logic. Interpreting
// a tree (internal/eval, internal/event) lives in separate packages so the
// AST component and the evaluator components stay decoupled, as the
// engine's component design calls for.
package expr

import (
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// PureExpr is the effect-free expression language: it may read the game
// but never mutate it.
type PureExpr interface{ isPureExpr() }

type ReadVar struct{ Name string }
type ReadOutput struct{ Number model.OutputNumber }

// ReadVictory re-evaluates the declared Victory's player-list expression,
// spec.md §6's read_victory(game). A nil Victory reads as an empty list
// rather than an error — no winner has been declared yet.
type ReadVictory struct{}

type ListRules struct{}
type ListPlayers struct{}
type ListEvents struct{}
type ListVariables struct{}
type ReadLog struct{}
type SelfRuleNumber struct{}
type CurrentTime struct{}
type RuleStatusOf struct{ Rule model.RuleNumber }
type PlayerNameOf struct{ Player model.PlayerNumber }

// PureReturn lifts a constant value.Value into PureExpr.
type PureReturn struct{ Value value.Value }

// PureBind sequences a pure expression into a continuation, the monadic
// bind of the pure language.
type PureBind struct {
	Sub  PureExpr
	Cont func(value.Value) PureExpr
}

// Simu runs Effect against a cloned game, then evaluates Predicate on the
// simulated result; the real game is never mutated (spec.md §4.1, §4.3,
// §8 "Simulation purity"). Effect is an Expr, kept as `any` here to avoid
// an import cycle between expr's two halves being forced apart — it is
// always a valid Expr value and is type-asserted by the evaluator.
type Simu struct {
	Effect    any
	Predicate PureExpr
}

// Arithmetic / comparison / boolean combinators (expansion over spec.md's
// minimal pure op list, so rule authors rarely need PureBind for simple
// composition).
type Add struct{ Left, Right PureExpr }
type Eq struct{ Left, Right PureExpr }
type Lt struct{ Left, Right PureExpr }
type And struct{ Left, Right PureExpr }
type Or struct{ Left, Right PureExpr }
type Not struct{ Sub PureExpr }

// MapPure applies a pure Go function to a sub-expression's result without
// the ceremony of a full PureBind.
type MapPure struct {
	Sub PureExpr
	Fn  func(value.Value) value.Value
}

// Lift2 combines two independent pure expressions with a pure function.
type Lift2 struct {
	A, B PureExpr
	Fn   func(a, b value.Value) value.Value
}

// EventVoteStates renders each of Voters' current vote state in event
// Number's environment as "For" / "Against" / "Not Voted" — the Voting
// Module's intermediate display (spec.md §4.6).
type EventVoteStates struct {
	Number model.EventNumber
	Voters []model.PlayerNumber
}

func (ReadVar) isPureExpr()        {}
func (ReadOutput) isPureExpr()     {}
func (ReadVictory) isPureExpr()    {}
func (ListRules) isPureExpr()      {}
func (ListPlayers) isPureExpr()    {}
func (ListEvents) isPureExpr()     {}
func (ListVariables) isPureExpr()  {}
func (ReadLog) isPureExpr()        {}
func (SelfRuleNumber) isPureExpr() {}
func (CurrentTime) isPureExpr()    {}
func (RuleStatusOf) isPureExpr()   {}
func (PlayerNameOf) isPureExpr()   {}
func (PureReturn) isPureExpr()     {}
func (PureBind) isPureExpr()       {}
func (Simu) isPureExpr()           {}
func (Add) isPureExpr()            {}
func (Eq) isPureExpr()             {}
func (Lt) isPureExpr()             {}
func (And) isPureExpr()            {}
func (Or) isPureExpr()             {}
func (Not) isPureExpr()            {}
func (MapPure) isPureExpr()        {}
func (Lift2) isPureExpr()          {}
func (EventVoteStates) isPureExpr() {}
