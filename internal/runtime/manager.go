package runtime

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/store"
	"github.com/cdupont/Nomyx/internal/telemetry"
	"github.com/cdupont/Nomyx/internal/value"
)

// Bootstrap installs whatever initial rule set a freshly created game
// should start with (rule 0 plus any host-supplied starting rules); it
// runs once, before the actor's loop goroutine starts accepting
// commands, so it never races a client's first Dispatch.
type Bootstrap func(g *model.Game)

// Manager owns every live GameActor, keyed by game ID, the way the
// teacher's RoomManager owns every live RoomActor: one lazily-created
// actor per ID, kept for the life of the Manager; an actor whose loop
// goroutine has stopped is not restarted.
type Manager struct {
	mu               sync.Mutex
	ctx              context.Context
	cancel           context.CancelFunc
	actors           map[string]*GameActor
	store            *store.Store
	logger           *zap.Logger
	bootstrap        Bootstrap
	snapshotInterval int64
	metrics          *telemetry.Metrics
}

// NewManager builds a Manager. snapshotInterval is the number of
// committed commands between automatic snapshots for each live game (0
// disables auto-snapshotting; Snapshot still works on demand).
// metrics is optional; pass nil to disable instrument recording.
func NewManager(ctx context.Context, st *store.Store, logger *zap.Logger, bootstrap Bootstrap, snapshotInterval int64, metrics *telemetry.Metrics) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	actorCtx, cancel := context.WithCancel(ctx)
	return &Manager{
		ctx:              actorCtx,
		cancel:           cancel,
		actors:           make(map[string]*GameActor),
		store:            st,
		logger:           logger,
		bootstrap:        bootstrap,
		snapshotInterval: snapshotInterval,
		metrics:          metrics,
	}
}

func (m *Manager) Close() { m.cancel() }

// Tick drives inject_time (spec.md §6) against every live game: it is
// the body of the wall-clock ticker cmd/nomyxd runs, since the engine
// itself performs no scheduling (spec.md §5) — TriggerTime only fires
// when something outside the game calls it.
func (m *Manager) Tick(now time.Time, logger *zap.Logger) {
	m.mu.Lock()
	actors := make([]*GameActor, 0, len(m.actors))
	ids := make([]string, 0, len(m.actors))
	for id, ga := range m.actors {
		actors = append(actors, ga)
		ids = append(ids, id)
	}
	m.mu.Unlock()

	nowMs := now.UnixMilli()
	for i, ga := range actors {
		if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) {
			return value.Value{}, TriggerTime(g, nowMs, logger)
		}); err != nil {
			logger.Warn("tick failed", zap.String("game_id", ids[i]), zap.Error(err))
		}
	}
}

// GetOrCreate returns the live actor for gameID, loading its most recent
// snapshot (a read model only — see store.FromSnapshotDTO) or running
// Bootstrap to seed a fresh game if none exists yet.
func (m *Manager) GetOrCreate(ctx context.Context, gameID string) (*GameActor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ga, ok := m.actors[gameID]; ok {
		return ga, nil
	}

	g, err := m.loadOrBootstrap(ctx, gameID)
	if err != nil {
		return nil, err
	}
	ga := NewGameActor(m.ctx, g, m.logger.With(zap.String("game_id", gameID)), m.snapshotInterval, func() {
		if err := m.Snapshot(context.Background(), gameID); err != nil {
			m.logger.Warn("auto-snapshot failed", zap.String("game_id", gameID), zap.Error(err))
		}
	}, gameID, m.metrics)
	m.actors[gameID] = ga
	return ga, nil
}

func (m *Manager) loadOrBootstrap(ctx context.Context, gameID string) (*model.Game, error) {
	snap, err := m.store.GetLatestSnapshot(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("runtime: load snapshot: %w", err)
	}
	if snap == nil {
		rec, err := m.store.GetGame(ctx, gameID)
		if err != nil {
			return nil, fmt.Errorf("runtime: load game record: %w", err)
		}
		name := gameID
		if rec != nil {
			name = rec.Name
		}
		g := model.NewGame(name, "", time.Now().UnixNano())
		if m.bootstrap != nil {
			m.bootstrap(g)
		}
		return g, nil
	}

	var dto store.GameStateDTO
	if err := store.DecodeJSON(snap.StateJSON, &dto); err != nil {
		return nil, fmt.Errorf("runtime: decode snapshot: %w", err)
	}
	g := store.FromSnapshotDTO(dto)
	g.RNG = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // deterministic gameplay RNG, not security-sensitive
	if m.bootstrap != nil {
		// A rehydrated game's rule bodies are still nil (closures are not
		// data); Bootstrap re-attaches them from the host's own rule
		// catalog, keyed by each RuleDTO.Source that survived the round
		// trip on g.Rules[i].Source.
		m.bootstrap(g)
	}
	return g, nil
}

// Snapshot persists the current plain-data projection of a live game,
// for audit and fast cold-start — not for resuming execution, see
// store.FromSnapshotDTO's doc comment. The projection runs as a Command
// on the actor's own goroutine so it never races the actor's mutations.
func (m *Manager) Snapshot(ctx context.Context, gameID string) error {
	m.mu.Lock()
	ga, ok := m.actors[gameID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("runtime: no live actor for game %q", gameID)
	}

	var dto store.GameStateDTO
	if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) {
		dto = store.ToSnapshotDTO(g)
		return value.Value{}, nil
	}); err != nil {
		return err
	}

	encoded, err := store.EncodeJSON(dto)
	if err != nil {
		return err
	}
	return m.store.SaveSnapshot(ctx, nil, store.GameSnapshot{GameID: gameID, StateJSON: encoded, CreatedAt: time.Now().UTC()})
}
