// Package model is the in-memory data model of a Nomyx game: rules,
// variables, events, outputs, players, the log, and the RNG, per the
// engine's DATA MODEL section. The Game struct exclusively owns all of
// its collections; there are no cyclic strong references, only numeric
// back-references (RuleNumber, EventNumber, ...).
package model

import (
	"math/rand"
	"time"

	"github.com/cdupont/Nomyx/internal/value"
)

type RuleNumber int
type PlayerNumber int
type EventNumber int
type OutputNumber int

// SystemRule is the implicit authority used for engine-initiated actions;
// it bypasses the Active-rule gating check everywhere in eval.
const SystemRule RuleNumber = 0

type RuleStatus int

const (
	Proposed RuleStatus = iota
	Active
	Rejected
)

func (s RuleStatus) String() string {
	switch s {
	case Proposed:
		return "Proposed"
	case Active:
		return "Active"
	case Rejected:
		return "Rejected"
	default:
		return "?"
	}
}

// Rule is one unit of game law.
type Rule struct {
	Number        RuleNumber
	Name          string
	Description   string
	Source        string // opaque rule source text, kept verbatim for display
	Body          any    // expr.Expr — compiled effectful expression; typed any to avoid an import cycle with internal/expr
	ProposedBy    PlayerNumber
	Status        RuleStatus
	AssessingRule RuleNumber // rule (or SystemRule) that activated/rejected this one
}

// Variable is (RuleNumber, name, typed value); name is unique within the
// game and its value's type is fixed at creation.
type Variable struct {
	OwningRule RuleNumber
	Name       string
	Value      value.Value
}

type EventStatus int

const (
	EventActive EventStatus = iota
	EventDeleted
)

// EventInfo is a live (or tombstoned) event: its combinator expression,
// its handler, and the environment of signal occurrences already bound
// to it. A Deleted event is kept so event numbers are never reused or
// renumbered, but is ignored by the trigger pipeline.
type EventInfo struct {
	Number     EventNumber
	OwningRule RuleNumber
	Expr       any // expr.Event
	Handler    any // func(value.Value) expr.Expr
	Status     EventStatus
	Env        []SignalOccurrence
}

// SignalOccurrence is a fired signal with its payload, and the structural
// address it was bound to once the resolver has matched it (nil before
// that).
type SignalOccurrence struct {
	Signal  SignalKey
	Payload value.Value
	Address []AddressTag // nil until bound
}

// AddressKind is the shape of one step of a structural signal address.
type AddressKind int

const (
	SumL AddressKind = iota
	SumR
	AppL
	AppR
	BindL
	BindR
	ShortcutAt
)

func (k AddressKind) String() string {
	switch k {
	case SumL:
		return "SumL"
	case SumR:
		return "SumR"
	case AppL:
		return "AppL"
	case AppR:
		return "AppR"
	case BindL:
		return "BindL"
	case BindR:
		return "BindR"
	case ShortcutAt:
		return "Shortcut"
	default:
		return "?"
	}
}

// AddressTag is one step of a structural signal address. Index is only
// meaningful when Kind is ShortcutAt: a Shortcut has an arbitrary number
// of children, so the child's position must be carried alongside the
// kind — otherwise every child of the same Shortcut would resolve under
// an identical address and the resolver could never tell, e.g., voter
// 1's signal apart from voter 2's.
type AddressTag struct {
	Kind  AddressKind
	Index int
}

// SignalKey identifies a primitive signal kind plus its carrier payload
// (player, prompt, choice list, ...) for the structural-equality semantics
// spec.md §9 adopts: two signals are equal iff kind, carrier payload and
// tree address are equal. SignalKey covers kind+carrier; address is
// compared separately by the resolver.
type SignalKey struct {
	Kind       SignalKind
	Player     PlayerNumber // for input-* and player-lifecycle signals
	FieldName  string       // form field name for input signals, or message name
	Timer      int64        // absolute unix-ms deadline for timer signals
	RuleLife   RuleLifeKind // for rule-lifecycle signals
	PlayerLife PlayerLifeKind
}

type SignalKind int

const (
	SigInputRadio SignalKind = iota
	SigInputText
	SigInputTextarea
	SigInputButton
	SigInputCheckbox
	SigTimer
	SigMessage
	SigRuleLifecycle
	SigPlayerLifecycle
	SigVictoryDeclared
)

type RuleLifeKind int

const (
	RuleProposedEvt RuleLifeKind = iota
	RuleActivatedEvt
	RuleRejectedEvt
	RuleAddedEvt
	RuleModifiedEvt
)

type PlayerLifeKind int

const (
	PlayerArriveEvt PlayerLifeKind = iota
	PlayerLeaveEvt
)

type OutputStatus int

const (
	OutputActive OutputStatus = iota
	OutputDeleted
)

// Output re-evaluates a pure expression on demand; TargetPlayer nil means
// broadcast to every player.
type Output struct {
	Number       OutputNumber
	OwningRule   RuleNumber
	TargetPlayer *PlayerNumber
	Producer     any // expr.PureExpr, evaluates to a value.Value rendered for display
	Status       OutputStatus
}

type Player struct {
	Number PlayerNumber
	Name   string
}

// Victory holds the declaring rule and the pure expression re-evaluated
// to read the current winner list.
type Victory struct {
	DeclaringRule RuleNumber
	PlayerList    any // expr.PureExpr, evaluates to a value.List of VPlayer
}

type LogLevel int

const (
	LogInfo LogLevel = iota
	LogWarn
	LogError
)

type LogEntry struct {
	Player    *PlayerNumber
	Timestamp time.Time
	Level     LogLevel
	Message   string
}

// Game is the root aggregate: the exclusive owner of every collection
// below. Ordered collections are slices (Go maps are not order-stable)
// so insertion order — required by several invariants — is preserved for
// free.
type Game struct {
	Name        string
	Description string
	Rules       []Rule
	Players     []Player
	Variables   []Variable
	Events      []EventInfo
	Outputs     []Output
	Victory     *Victory
	Log         []LogEntry
	Now         time.Time
	RNG         *rand.Rand
}

// NewGame creates an empty game seeded deterministically.
func NewGame(name, description string, seed int64) *Game {
	return &Game{
		Name:        name,
		Description: description,
		Now:         time.Unix(0, 0).UTC(),
		RNG:         rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic gameplay RNG, not security-sensitive
	}
}

// Copy performs the deep copy Simu and snapshotting both need: every
// owned collection and the RNG state are duplicated so mutating the copy
// can never be observed by the original.
func (g *Game) Copy() *Game {
	cp := &Game{
		Name:        g.Name,
		Description: g.Description,
		Now:         g.Now,
	}
	cp.Rules = append([]Rule(nil), g.Rules...)
	cp.Players = append([]Player(nil), g.Players...)
	cp.Variables = append([]Variable(nil), g.Variables...)
	cp.Outputs = append([]Output(nil), g.Outputs...)
	cp.Log = append([]LogEntry(nil), g.Log...)

	cp.Events = make([]EventInfo, len(g.Events))
	for i, e := range g.Events {
		cp.Events[i] = e
		cp.Events[i].Env = append([]SignalOccurrence(nil), e.Env...)
	}

	if g.Victory != nil {
		v := *g.Victory
		cp.Victory = &v
	}

	if g.RNG != nil {
		if state, err := g.RNG.MarshalBinary(); err == nil {
			clone := rand.New(rand.NewSource(1))
			if clone.UnmarshalBinary(state) == nil {
				cp.RNG = clone
			}
		}
		if cp.RNG == nil {
			// Fallback: never expected, MarshalBinary on math/rand.Rand
			// does not fail in practice.
			cp.RNG = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
		}
	}
	return cp
}

// FindRule returns a pointer into g.Rules for in-place mutation, or nil.
func (g *Game) FindRule(n RuleNumber) *Rule {
	for i := range g.Rules {
		if g.Rules[i].Number == n {
			return &g.Rules[i]
		}
	}
	return nil
}

func (g *Game) FindPlayer(n PlayerNumber) *Player {
	for i := range g.Players {
		if g.Players[i].Number == n {
			return &g.Players[i]
		}
	}
	return nil
}

func (g *Game) FindVariable(name string) *Variable {
	for i := range g.Variables {
		if g.Variables[i].Name == name {
			return &g.Variables[i]
		}
	}
	return nil
}

func (g *Game) FindEvent(n EventNumber) *EventInfo {
	for i := range g.Events {
		if g.Events[i].Number == n {
			return &g.Events[i]
		}
	}
	return nil
}

func (g *Game) FindOutput(n OutputNumber) *Output {
	for i := range g.Outputs {
		if g.Outputs[i].Number == n {
			return &g.Outputs[i]
		}
	}
	return nil
}

// IsRuleActive reports whether acting is allowed to mutate state: either
// the system rule, or a rule currently Active.
func (g *Game) IsRuleActive(acting RuleNumber) bool {
	if acting == SystemRule {
		return true
	}
	r := g.FindRule(acting)
	return r != nil && r.Status == Active
}

// NextEventNumber is max(existing)+1, starting at 1 (spec.md §4.3).
func (g *Game) NextEventNumber() EventNumber {
	var max EventNumber
	for _, e := range g.Events {
		if e.Number > max {
			max = e.Number
		}
	}
	return max + 1
}

func (g *Game) NextOutputNumber() OutputNumber {
	var max OutputNumber
	for _, o := range g.Outputs {
		if o.Number > max {
			max = o.Number
		}
	}
	return max + 1
}

// AppendLog records a log entry; called after mutations as well as for
// diagnostics (bad trigger input, absorbed rule errors).
func (g *Game) AppendLog(player *PlayerNumber, level LogLevel, msg string) {
	g.Log = append(g.Log, LogEntry{Player: player, Timestamp: g.Now, Level: level, Message: msg})
}

// RejectRuleCascade purges every variable, event and output owned by r,
// and clears the victory record iff it was declared by r (spec.md §3
// invariant, tested by scenario 5 in §8).
func (g *Game) RejectRuleCascade(r RuleNumber) {
	kept := g.Variables[:0]
	for _, v := range g.Variables {
		if v.OwningRule != r {
			kept = append(kept, v)
		}
	}
	g.Variables = kept

	for i := range g.Events {
		if g.Events[i].OwningRule == r && g.Events[i].Status == EventActive {
			g.Events[i].Status = EventDeleted
			g.Events[i].Env = nil
		}
	}

	keptOut := g.Outputs[:0]
	for _, o := range g.Outputs {
		if o.OwningRule != r {
			keptOut = append(keptOut, o)
		}
	}
	g.Outputs = keptOut

	if g.Victory != nil && g.Victory.DeclaringRule == r {
		g.Victory = nil
	}
}
