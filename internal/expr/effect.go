package expr

import (
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// Expr is the effectful expression language: it may mutate game state
// through the Effect Evaluator, subject to rule-gating.
type Expr interface{ isExpr() }

// Variable operations.
type CreateVar struct {
	Name string
	Init value.Value
}
type DeleteVar struct{ Name string }
type WriteVar struct {
	Name  string
	Value value.Value
}

// ModifyVar is a rule-gated read-modify-write built from WriteVar,
// supplementing spec.md's create/delete/write trio with the common
// "increment a counter" idiom.
type ModifyVar struct {
	Name   string
	Update func(value.Value) value.Value
}

// Event operations. Handler is kept as `any` (always a
// func(value.Value) Expr) to sidestep the AST/evaluator layering the same
// way Simu.Effect does.
type OnEvent struct {
	Event   any // *Event (interface value)
	Handler any // func(value.Value) Expr
}
type DeleteEvent struct{ Number model.EventNumber }

// Output operations.
type CreateOutput struct {
	Target   *model.PlayerNumber // nil = broadcast
	Producer PureExpr
}
type UpdateOutput struct {
	Number   model.OutputNumber
	Producer PureExpr
}
type DeleteOutput struct{ Number model.OutputNumber }

// Rule operations.
type ProposeRule struct {
	Name        string
	Description string
	Source      string
	Body        Expr
	Proposer    model.PlayerNumber
}
type ActivateRule struct{ Number model.RuleNumber }
type RejectRule struct{ Number model.RuleNumber }

// AddRule bypasses the Proposed stage entirely (system bootstrap, or a
// rule installing another rule pre-activated).
type AddRule struct {
	Name        string
	Description string
	Source      string
	Body        Expr
	Proposer    model.PlayerNumber
}

// ModifyRule changes a rule's displayed name/description (not its body —
// an Active rule's compiled body is immutable once installed; changing
// behavior means proposing a new rule).
type ModifyRule struct {
	Number      model.RuleNumber
	Name        *string
	Description *string
}

// Player operations.
type RenamePlayer struct {
	Number  model.PlayerNumber
	NewName string
}
type RemovePlayer struct{ Number model.PlayerNumber }
type DeclareVictory struct {
	PlayerList PureExpr // PureExpr evaluating to a value.List of VPlayer
}

// Messaging.
type SendMessage struct {
	Name    string
	Payload value.Value
}

// RandomRange draws from [Lo, Hi) using the game's RNG.
type RandomRange struct{ Lo, Hi int }

// Errors.
type ThrowError struct{ Message string }
type CatchError struct {
	Body    Expr
	Handler func(message string) Expr
}

// Lifting / monadic plumbing.
type LiftPureEff struct{ Sub PureExpr }
type EffReturn struct{ Value value.Value }
type EffBind struct {
	Sub  Expr
	Cont func(value.Value) Expr
}

// Self lifts the acting rule number into effect position.
type Self struct{}

// LogMsg appends a log entry under the acting rule.
type LogMsg struct{ Message string }

func (CreateVar) isExpr()      {}
func (DeleteVar) isExpr()      {}
func (WriteVar) isExpr()       {}
func (ModifyVar) isExpr()      {}
func (OnEvent) isExpr()        {}
func (DeleteEvent) isExpr()    {}
func (CreateOutput) isExpr()   {}
func (UpdateOutput) isExpr()   {}
func (DeleteOutput) isExpr()   {}
func (ProposeRule) isExpr()    {}
func (ActivateRule) isExpr()   {}
func (RejectRule) isExpr()     {}
func (AddRule) isExpr()        {}
func (ModifyRule) isExpr()     {}
func (RenamePlayer) isExpr()   {}
func (RemovePlayer) isExpr()   {}
func (DeclareVictory) isExpr() {}
func (SendMessage) isExpr()    {}
func (RandomRange) isExpr()    {}
func (ThrowError) isExpr()     {}
func (CatchError) isExpr()     {}
func (LiftPureEff) isExpr()    {}
func (EffReturn) isExpr()      {}
func (EffBind) isExpr()        {}
func (Self) isExpr()           {}
func (LogMsg) isExpr()         {}
