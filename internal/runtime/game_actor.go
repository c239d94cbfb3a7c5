// Package runtime drives a Game: a single-goroutine actor serializing
// every command against it (grounded on the teacher's RoomActor), and
// the Signal Trigger Pipeline that routes incoming occurrences to
// pending events and fires their handlers (spec.md §4.5, §5).
package runtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/telemetry"
	"github.com/cdupont/Nomyx/internal/value"
)

// Subscriber receives a push whenever a committed command may have
// changed what it can see; Notify re-renders its own view (it holds its
// own Viewer) rather than being handed a pre-rendered payload, since two
// subscribers of the same game usually see different output sets.
type Subscriber struct {
	Notify func(g *model.Game)
}

// Command runs one unit of work against the live Game, on the actor's
// own goroutine; it is the only sanctioned way to touch a GameActor's
// Game, mirroring how the teacher's engine.HandleCommand only ever runs
// inside RoomActor.executeCommand.
type Command func(g *model.Game) (value.Value, error)

type request struct {
	cmd  Command
	resp chan response
}

type response struct {
	value value.Value
	err   error
}

// GameActor owns one Game exclusively: all mutation happens on its loop
// goroutine, so the Game itself needs no locks (spec.md §5 "single
// evaluator logical thread owns the game state").
type GameActor struct {
	Game   *model.Game
	ctx    context.Context
	cancel context.CancelFunc
	cmdCh  chan request
	logger *zap.Logger

	subsMu sync.RWMutex
	subs   map[string]*Subscriber

	commandCount  int64
	snapshotEvery int64
	onSnapshot    func()

	gameID  string
	metrics *telemetry.Metrics
}

// NewGameActor starts the actor's loop goroutine immediately. snapshotEvery
// and onSnapshot are optional (zero/nil disables auto-snapshotting): when
// set, onSnapshot runs once every snapshotEvery committed commands, the
// same committed-sequence cadence the teacher's RoomActor snapshots on.
// metrics is optional; a nil value disables instrument recording.
func NewGameActor(parent context.Context, g *model.Game, logger *zap.Logger, snapshotEvery int64, onSnapshot func(), gameID string, metrics *telemetry.Metrics) *GameActor {
	if parent == nil {
		parent = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	ga := &GameActor{
		Game:          g,
		ctx:           ctx,
		cancel:        cancel,
		cmdCh:         make(chan request, 256),
		logger:        logger,
		subs:          make(map[string]*Subscriber),
		snapshotEvery: snapshotEvery,
		onSnapshot:    onSnapshot,
		gameID:        gameID,
		metrics:       metrics,
	}
	go ga.loop()
	return ga
}

// Subscribe registers s to be notified after every command this actor
// commits. Unsubscribe with the same id to stop.
func (ga *GameActor) Subscribe(id string, s *Subscriber) {
	ga.subsMu.Lock()
	defer ga.subsMu.Unlock()
	ga.subs[id] = s
}

func (ga *GameActor) Unsubscribe(id string) {
	ga.subsMu.Lock()
	defer ga.subsMu.Unlock()
	delete(ga.subs, id)
}

func (ga *GameActor) notifySubscribers() {
	ga.subsMu.RLock()
	defer ga.subsMu.RUnlock()
	for _, sub := range ga.subs {
		sub.Notify(ga.Game)
	}
}

func (ga *GameActor) loop() {
	defer func() {
		if r := recover(); r != nil {
			ga.logger.Error("game actor crashed",
				zap.String("game", ga.Game.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	for {
		select {
		case <-ga.ctx.Done():
			return
		case req := <-ga.cmdCh:
			start := time.Now()
			v, err := ga.execute(req.cmd)
			if ga.metrics != nil {
				ga.metrics.CommandLatency.WithLabelValues("dispatch").Observe(float64(time.Since(start).Milliseconds()))
				ga.metrics.GameActorQueueLen.WithLabelValues(ga.gameID).Set(float64(len(ga.cmdCh)))
			}
			req.resp <- response{value: v, err: err}
			ga.notifySubscribers()
			ga.maybeSnapshot()
		}
	}
}

// maybeSnapshot fires onSnapshot once every snapshotEvery committed
// commands, off the loop goroutine so persisting never blocks the next
// Dispatch.
func (ga *GameActor) maybeSnapshot() {
	if ga.snapshotEvery <= 0 || ga.onSnapshot == nil {
		return
	}
	ga.commandCount++
	if ga.commandCount%ga.snapshotEvery == 0 {
		go ga.onSnapshot()
	}
}

// execute recovers any panic a Command lets escape so one bad command
// degrades to an error instead of killing the actor loop outright; a
// genuine rule-error panic never reaches here, since eval.RunEffect
// already converts those to errors before a Command returns.
func (ga *GameActor) execute(cmd Command) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			ga.logger.Error("game actor command panic",
				zap.String("game", ga.Game.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("runtime: command panic: %v", r)
		}
	}()
	return cmd(ga.Game)
}

// Dispatch enqueues cmd and blocks for its result.
func (ga *GameActor) Dispatch(cmd Command) (value.Value, error) {
	ch := make(chan response, 1)
	select {
	case ga.cmdCh <- request{cmd: cmd, resp: ch}:
	case <-ga.ctx.Done():
		return value.Value{}, fmt.Errorf("runtime: game actor stopped")
	}
	select {
	case resp := <-ch:
		return resp.value, resp.err
	case <-ga.ctx.Done():
		return value.Value{}, fmt.Errorf("runtime: game actor stopped")
	}
}

// Close stops the loop goroutine; pending and future Dispatch calls
// return an error.
func (ga *GameActor) Close() { ga.cancel() }
