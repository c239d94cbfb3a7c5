package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/projection"
	"github.com/cdupont/Nomyx/internal/runtime"
	"github.com/cdupont/Nomyx/internal/store"
	"github.com/cdupont/Nomyx/internal/telemetry"
	"github.com/cdupont/Nomyx/internal/types"
	"github.com/cdupont/Nomyx/internal/value"
)

// WSMessage is the envelope every frame in either direction carries.
type WSMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// CommandPayload is one client-issued game command. Only one of the
// kind-specific fields is read, selected by Kind.
type CommandPayload struct {
	Kind string `json:"kind"`

	// trigger_input
	EventNumber int             `json:"event_number,omitempty"`
	Address     string          `json:"address,omitempty"`
	Signal      model.SignalKey `json:"signal,omitempty"`
	Input       value.Value     `json:"input,omitempty"`

	// trigger_message
	Name    string      `json:"name,omitempty"`
	Message value.Value `json:"message,omitempty"`

	// activate_rule / reject_rule
	RuleNumber int `json:"rule_number,omitempty"`

	// propose_rule: Source keys into the host's rule catalog (see
	// the rulebook package's doc comment — a rule body is compiled code,
	// never wire data, so proposing a rule names a catalog entry rather
	// than carrying an expression tree).
	RuleName        string `json:"rule_name,omitempty"`
	RuleDescription string `json:"rule_description,omitempty"`
	RuleSource      string `json:"rule_source,omitempty"`
}

var errNotAMember = errors.New("transport: caller is not a member of this game")

// RuleCatalog resolves a rule source key to its compiled body — the
// host-side counterpart of every RuleDTO.Source a client or a snapshot
// round trip can only carry as a string.
type RuleCatalog interface {
	Compile(source string) (interface{}, error)
}

// WSServer upgrades a connection after verifying its bearer token and
// the caller's standing in the requested game.
type WSServer struct {
	upgrader websocket.Upgrader
	jwt      *JWTManager
	store    *store.Store
	manager  *runtime.Manager
	catalog  RuleCatalog
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

func NewWSServer(jwtMgr *JWTManager, st *store.Store, mgr *runtime.Manager, catalog RuleCatalog, logger *zap.Logger, metrics *telemetry.Metrics) *WSServer {
	return &WSServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		jwt:     jwtMgr,
		store:   st,
		manager: mgr,
		catalog: catalog,
		logger:  logger,
		metrics: metrics,
	}
}

func (ws *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	gameID := r.URL.Query().Get("game_id")
	if token == "" || gameID == "" {
		writeError(w, http.StatusBadRequest, types.ErrBadRequest, "missing token or game_id")
		return
	}
	claims, err := ws.jwt.Parse(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid token")
		return
	}

	viewer, err := resolveViewer(r.Context(), ws.store, gameID, claims.UserID)
	if err != nil {
		writeError(w, http.StatusForbidden, types.ErrForbidden, "forbidden")
		return
	}

	ga, err := ws.manager.GetOrCreate(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "cannot load game")
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	sessionID := uuid.NewString()
	session := &Session{
		id:      sessionID,
		userID:  claims.UserID,
		viewer:  viewer,
		actor:   ga,
		catalog: ws.catalog,
		logger:  ws.logger.With(zap.String("session_id", sessionID), zap.String("user_id", claims.UserID)),
		send:    make(chan []byte, 64),
		limiter: newTokenBucket(10, 2),
		conn:    conn,
	}
	if ws.metrics != nil {
		ws.metrics.ActiveConnections.Inc()
		defer ws.metrics.ActiveConnections.Dec()
	}

	ga.Subscribe(sessionID, &runtime.Subscriber{Notify: session.onGameChanged})
	go session.writePump()
	session.sendSnapshot()
	session.readPump()
	ga.Unsubscribe(sessionID)
}

func resolveViewer(ctx context.Context, st *store.Store, gameID, userID string) (projection.Viewer, error) {
	rec, err := st.GetGame(ctx, gameID)
	if err != nil {
		return projection.Viewer{}, err
	}
	if rec != nil && rec.CreatedBy == userID {
		return projection.Viewer{IsAdmin: true}, nil
	}
	ok, n, err := st.IsPlayer(ctx, gameID, userID)
	if err != nil {
		return projection.Viewer{}, err
	}
	if !ok {
		return projection.Viewer{}, errNotAMember
	}
	p := model.PlayerNumber(n)
	return projection.Viewer{Player: &p}, nil
}

type Session struct {
	id      string
	userID  string
	viewer  projection.Viewer
	actor   *runtime.GameActor
	catalog RuleCatalog
	logger  *zap.Logger
	send    chan []byte
	limiter *tokenBucket
	mu      sync.Mutex
	conn    *websocket.Conn
}

func (s *Session) readPump() {
	defer close(s.send)
	s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		if !s.limiter.allow() {
			s.sendError("", "rate_limited", "too many requests")
			continue
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError("", "bad_request", "invalid json")
			continue
		}
		s.handleMessage(msg)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) handleMessage(msg WSMessage) {
	switch msg.Type {
	case "ping":
		s.sendRaw(WSMessage{Type: "pong", RequestID: msg.RequestID, Payload: json.RawMessage("{}")})
	case "command":
		var payload CommandPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.sendError(msg.RequestID, "bad_request", "invalid command payload")
			return
		}
		s.handleCommand(msg.RequestID, payload)
	default:
		s.sendError(msg.RequestID, "bad_request", "unknown message type")
	}
}

func (s *Session) handleCommand(reqID string, payload CommandPayload) {
	proposer := model.PlayerNumber(-1)
	if s.viewer.Player != nil {
		proposer = *s.viewer.Player
	}
	cmd, err := buildCommand(payload, s.catalog, proposer, s.logger)
	if err != nil {
		s.sendError(reqID, "bad_request", err.Error())
		return
	}
	result, err := s.actor.Dispatch(cmd)
	if err != nil {
		s.sendCommandResult(reqID, false, err.Error(), value.Value{})
		return
	}
	s.sendCommandResult(reqID, true, "", result)
}

func (s *Session) onGameChanged(g *model.Game) {
	s.pushState(g)
}

// sendSnapshot pushes the caller's current view once, right after
// subscribing: the projection is read inside a Command so it never
// races the actor's own goroutine.
func (s *Session) sendSnapshot() {
	_, _ = s.actor.Dispatch(func(g *model.Game) (value.Value, error) {
		s.pushState(g)
		return value.Value{}, nil
	})
}

func (s *Session) pushState(g *model.Game) {
	outputs, err := projection.VisibleOutputs(g, s.viewer)
	if err != nil {
		s.logger.Warn("projection failed", zap.Error(err))
		return
	}
	log := projection.VisibleLog(g, s.viewer)
	b, _ := json.Marshal(struct {
		Outputs []projection.RenderedOutput `json:"outputs"`
		Log     []model.LogEntry            `json:"log"`
	}{Outputs: outputs, Log: log})
	s.sendRaw(WSMessage{Type: "state", Payload: b})
}

func (s *Session) sendError(reqID, code, message string) {
	b, _ := json.Marshal(map[string]string{"code": code, "message": message})
	s.sendRaw(WSMessage{Type: "error", RequestID: reqID, Payload: b})
}

func (s *Session) sendCommandResult(reqID string, ok bool, reason string, result value.Value) {
	b, _ := json.Marshal(struct {
		OK     bool        `json:"ok"`
		Reason string      `json:"reason,omitempty"`
		Result value.Value `json:"result"`
	}{OK: ok, Reason: reason, Result: result})
	s.sendRaw(WSMessage{Type: "command_result", RequestID: reqID, Payload: b})
}

func (s *Session) sendRaw(msg WSMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case s.send <- b:
	default:
	}
}

type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

func newTokenBucket(capacity, rate float64) *tokenBucket {
	return &tokenBucket{tokens: capacity, capacity: capacity, rate: rate, lastTime: time.Now()}
}

func (tb *tokenBucket) allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastTime = now
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
