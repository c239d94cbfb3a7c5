package store

import (
	"time"

	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

// GameStateDTO is the plain-data projection of a *model.Game that
// encoding/json can actually serialize: every field here is data, never
// a compiled expr.Expr/expr.Event/expr.PureExpr closure. See
// FromSnapshotDTO's doc comment for what this means for restoring a game
// after a restart.
type GameStateDTO struct {
	Name        string
	Description string
	Now         time.Time
	Rules       []RuleDTO
	Players     []PlayerDTO
	Variables   []VariableDTO
	Events      []EventDTO
	Outputs     []OutputDTO
	Victory     *VictoryDTO
	Log         []LogEntryDTO
}

type RuleDTO struct {
	Number        int
	Name          string
	Description   string
	Source        string
	ProposedBy    int
	Status        int
	AssessingRule int
}

type PlayerDTO struct {
	Number int
	Name   string
}

type VariableDTO struct {
	OwningRule int
	Name       string
	Value      value.Value
}

// EventDTO keeps the event's environment of signal occurrences (plain
// data) but drops its combinator expression and handler closure; a
// restored event therefore shows what it was waiting on, but cannot
// resume resolving on its own until the host re-attaches its Expr/Handler
// from whatever built it.
type EventDTO struct {
	Number     int
	OwningRule int
	Status     int
	Env        []model.SignalOccurrence
}

type OutputDTO struct {
	Number       int
	OwningRule   int
	TargetPlayer *int
	Status       int
}

type VictoryDTO struct {
	DeclaringRule int
}

type LogEntryDTO struct {
	Player    *int
	Timestamp time.Time
	Level     int
	Message   string
}

// ToSnapshotDTO projects g's plain-data fields into a GameStateDTO.
func ToSnapshotDTO(g *model.Game) GameStateDTO {
	dto := GameStateDTO{
		Name:        g.Name,
		Description: g.Description,
		Now:         g.Now,
	}

	for _, r := range g.Rules {
		dto.Rules = append(dto.Rules, RuleDTO{
			Number:        int(r.Number),
			Name:          r.Name,
			Description:   r.Description,
			Source:        r.Source,
			ProposedBy:    int(r.ProposedBy),
			Status:        int(r.Status),
			AssessingRule: int(r.AssessingRule),
		})
	}
	for _, p := range g.Players {
		dto.Players = append(dto.Players, PlayerDTO{Number: int(p.Number), Name: p.Name})
	}
	for _, v := range g.Variables {
		dto.Variables = append(dto.Variables, VariableDTO{OwningRule: int(v.OwningRule), Name: v.Name, Value: v.Value})
	}
	for _, e := range g.Events {
		dto.Events = append(dto.Events, EventDTO{
			Number:     int(e.Number),
			OwningRule: int(e.OwningRule),
			Status:     int(e.Status),
			Env:        e.Env,
		})
	}
	for _, o := range g.Outputs {
		var target *int
		if o.TargetPlayer != nil {
			n := int(*o.TargetPlayer)
			target = &n
		}
		dto.Outputs = append(dto.Outputs, OutputDTO{
			Number:       int(o.Number),
			OwningRule:   int(o.OwningRule),
			TargetPlayer: target,
			Status:       int(o.Status),
		})
	}
	if g.Victory != nil {
		dto.Victory = &VictoryDTO{DeclaringRule: int(g.Victory.DeclaringRule)}
	}
	for _, l := range g.Log {
		var player *int
		if l.Player != nil {
			n := int(*l.Player)
			player = &n
		}
		dto.Log = append(dto.Log, LogEntryDTO{Player: player, Timestamp: l.Timestamp, Level: int(l.Level), Message: l.Message})
	}
	return dto
}

// FromSnapshotDTO rebuilds a *model.Game from its plain-data projection.
// Every Rule/EventInfo/Output/Victory's compiled expression is left nil:
// the returned game is a faithful read model (names, variables, the log,
// what each event is still waiting on) but not runnable until the host
// re-attaches each rule's body from its own rule catalog, keyed by
// RuleDTO.Source.
func FromSnapshotDTO(dto GameStateDTO) *model.Game {
	g := &model.Game{
		Name:        dto.Name,
		Description: dto.Description,
		Now:         dto.Now,
	}
	for _, r := range dto.Rules {
		g.Rules = append(g.Rules, model.Rule{
			Number:        model.RuleNumber(r.Number),
			Name:          r.Name,
			Description:   r.Description,
			Source:        r.Source,
			ProposedBy:    model.PlayerNumber(r.ProposedBy),
			Status:        model.RuleStatus(r.Status),
			AssessingRule: model.RuleNumber(r.AssessingRule),
		})
	}
	for _, p := range dto.Players {
		g.Players = append(g.Players, model.Player{Number: model.PlayerNumber(p.Number), Name: p.Name})
	}
	for _, v := range dto.Variables {
		g.Variables = append(g.Variables, model.Variable{OwningRule: model.RuleNumber(v.OwningRule), Name: v.Name, Value: v.Value})
	}
	for _, e := range dto.Events {
		g.Events = append(g.Events, model.EventInfo{
			Number:     model.EventNumber(e.Number),
			OwningRule: model.RuleNumber(e.OwningRule),
			Status:     model.EventStatus(e.Status),
			Env:        e.Env,
		})
	}
	for _, o := range dto.Outputs {
		var target *model.PlayerNumber
		if o.TargetPlayer != nil {
			n := model.PlayerNumber(*o.TargetPlayer)
			target = &n
		}
		g.Outputs = append(g.Outputs, model.Output{
			Number:       model.OutputNumber(o.Number),
			OwningRule:   model.RuleNumber(o.OwningRule),
			TargetPlayer: target,
			Status:       model.OutputStatus(o.Status),
		})
	}
	if dto.Victory != nil {
		g.Victory = &model.Victory{DeclaringRule: model.RuleNumber(dto.Victory.DeclaringRule)}
	}
	for _, l := range dto.Log {
		var player *model.PlayerNumber
		if l.Player != nil {
			n := model.PlayerNumber(*l.Player)
			player = &n
		}
		g.Log = append(g.Log, model.LogEntry{Player: player, Timestamp: l.Timestamp, Level: model.LogLevel(l.Level), Message: l.Message})
	}
	return g
}
