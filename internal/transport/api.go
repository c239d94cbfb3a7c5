package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/eval"
	"github.com/cdupont/Nomyx/internal/expr"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/projection"
	"github.com/cdupont/Nomyx/internal/runtime"
	"github.com/cdupont/Nomyx/internal/store"
	"github.com/cdupont/Nomyx/internal/types"
	"github.com/cdupont/Nomyx/internal/value"
)

// writeError renders an AppError as the wire error body every REST
// handler below returns on failure, instead of chi's plain-text
// http.Error — the client always gets a stable Code to switch on.
func writeError(w http.ResponseWriter, status int, code types.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(types.NewError(code, message))
}

type contextKey string

const userIDKey contextKey = "user_id"

// Server is the host's chi-based REST API: account lifecycle, game
// creation/join, a polling fallback for state, and the WebSocket
// upgrade endpoint, grounded on the teacher's api.Server.
type Server struct {
	Router  *chi.Mux
	store   *store.Store
	jwt     *JWTManager
	manager *runtime.Manager
	logger  *zap.Logger
}

func NewServer(st *store.Store, jwtMgr *JWTManager, mgr *runtime.Manager, wsServer *WSServer, logger *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	s := &Server{Router: r, store: st, jwt: jwtMgr, manager: mgr, logger: logger}

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/v1/auth/register", s.register)
	r.Post("/v1/auth/login", s.login)
	r.Post("/v1/auth/quick", s.quickLogin)

	r.Route("/v1/games", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.createGame)
		r.Post("/{game_id}/join", s.joinGame)
		r.Get("/{game_id}/state", s.fetchState)
		r.Get("/{game_id}/victory", s.fetchVictory)
		r.Get("/{game_id}/roster", s.fetchRoster)
	})

	r.Handle("/ws", wsServer)
	return s
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrBadRequest, "invalid json")
		return
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "hash error")
		return
	}
	u := store.User{ID: uuid.NewString(), Email: req.Email, PasswordHash: hash, CreatedAt: time.Now().UTC()}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		writeError(w, http.StatusConflict, types.ErrConflict, "user exists or db error")
		return
	}
	token, _ := s.jwt.Generate(u.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, UserID: u.ID})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrBadRequest, "invalid json")
		return
	}
	u, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid credentials")
		return
	}
	if err := CheckPassword(u.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, types.ErrUnauthorized, "invalid credentials")
		return
	}
	token, _ := s.jwt.Generate(u.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{Token: token, UserID: u.ID})
}

type QuickLoginRequest struct {
	Name string `json:"name"`
}

type QuickLoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

func (s *Server) quickLogin(w http.ResponseWriter, r *http.Request) {
	var req QuickLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, types.ErrBadRequest, "name is required")
		return
	}
	userID := uuid.NewString()
	u := store.User{ID: userID, Email: userID + "@quick.local", PasswordHash: "", CreatedAt: time.Now().UTC()}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "failed to create user")
		return
	}
	token, _ := s.jwt.Generate(userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QuickLoginResponse{Token: token, UserID: userID, Name: req.Name})
}

type CreateGameRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateGameResponse struct {
	GameID string `json:"game_id"`
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	var req CreateGameRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Name == "" {
		req.Name = "untitled game"
	}
	g := store.Game{ID: uuid.NewString(), Name: req.Name, Description: req.Description, CreatedBy: userID, Status: "open", CreatedAt: time.Now().UTC()}
	if err := s.store.CreateGame(r.Context(), g); err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "db error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CreateGameResponse{GameID: g.ID})
}

type JoinGameResponse struct {
	Player int `json:"player"`
}

// joinGame assigns the caller the next free player number, both in the
// store's membership table (so future viewer resolution finds them) and
// on the live Game itself (so rules watching player-arrival see it),
// per spec.md's player-lifecycle signal.
func (s *Server) joinGame(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	gameID := chi.URLParam(r, "game_id")

	if ok, n, _ := s.store.IsPlayer(r.Context(), gameID, userID); ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JoinGameResponse{Player: n})
		return
	}

	ga, err := s.manager.GetOrCreate(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "game error")
		return
	}

	result, err := ga.Dispatch(func(g *model.Game) (value.Value, error) {
		n := model.PlayerNumber(len(g.Players))
		g.Players = append(g.Players, model.Player{Number: n, Name: userID})
		if err := runtime.TriggerPlayerLifecycle(g, model.PlayerArriveEvt, n, s.logger); err != nil {
			return value.Value{}, err
		}
		return value.Player(int(n)), nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "failed to join game")
		return
	}

	if err := s.store.AddGamePlayer(r.Context(), store.GamePlayer{GameID: gameID, UserID: userID, Player: result.Player, Joined: time.Now().UTC()}); err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "failed to record membership")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(JoinGameResponse{Player: result.Player})
}

// fetchState is the HTTP polling fallback for a client that is not
// holding a WebSocket open; it renders the same projection the socket
// pushes on every change.
func (s *Server) fetchState(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	gameID := chi.URLParam(r, "game_id")

	viewer, err := resolveViewer(r.Context(), s.store, gameID, userID)
	if err != nil {
		writeError(w, http.StatusForbidden, types.ErrForbidden, "forbidden")
		return
	}

	ga, err := s.manager.GetOrCreate(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "game error")
		return
	}

	type renderedState struct {
		Outputs []projection.RenderedOutput `json:"outputs"`
		Log     []model.LogEntry            `json:"log"`
	}
	var rendered renderedState
	if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) {
		outputs, err := projection.VisibleOutputs(g, viewer)
		if err != nil {
			return value.Value{}, err
		}
		rendered = renderedState{Outputs: outputs, Log: projection.VisibleLog(g, viewer)}
		return value.Value{}, nil
	}); err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "projection error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rendered)
}


// VictoryResponse is the wire form of read_victory(game): Declared is
// false and Players empty until some rule calls DeclareVictory.
type VictoryResponse struct {
	Declared      bool  `json:"declared"`
	DeclaringRule int   `json:"declaring_rule,omitempty"`
	Players       []int `json:"players"`
}

// fetchVictory is the Engine-facing read_victory(game) operation exposed
// over HTTP: it re-evaluates the declared Victory's player-list
// expression on demand, never caching a stale winner list.
func (s *Server) fetchVictory(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	gameID := chi.URLParam(r, "game_id")

	if _, err := resolveViewer(r.Context(), s.store, gameID, userID); err != nil {
		writeError(w, http.StatusForbidden, types.ErrForbidden, "forbidden")
		return
	}

	ga, err := s.manager.GetOrCreate(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "game error")
		return
	}

	var resp VictoryResponse
	if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) {
		if g.Victory == nil {
			resp = VictoryResponse{Players: []int{}}
			return value.Value{}, nil
		}
		v, err := eval.New(g).Pure(model.SystemRule, expr.ReadVictory{})
		if err != nil {
			return value.Value{}, err
		}
		players := make([]int, len(v.List))
		for i, p := range v.List {
			players[i] = p.Player
		}
		resp = VictoryResponse{Declared: true, DeclaringRule: int(g.Victory.DeclaringRule), Players: players}
		return value.Value{}, nil
	}); err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "victory read error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// RosterResponse lists which account is seated behind each player number,
// an admin-only view since a player's own account identity is not part
// of anything model.Game itself tracks.
type RosterResponse struct {
	Seats []RosterSeat `json:"seats"`
}

type RosterSeat struct {
	Player int    `json:"player"`
	Email  string `json:"email"`
}

func (s *Server) fetchRoster(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	gameID := chi.URLParam(r, "game_id")

	viewer, err := resolveViewer(r.Context(), s.store, gameID, userID)
	if err != nil {
		writeError(w, http.StatusForbidden, types.ErrForbidden, "forbidden")
		return
	}
	if !viewer.IsAdmin {
		writeError(w, http.StatusForbidden, types.ErrForbidden, "roster is admin-only")
		return
	}

	entries, err := s.store.GetRoster(r.Context(), gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, types.ErrInternal, "roster error")
		return
	}
	resp := RosterResponse{Seats: make([]RosterSeat, len(entries))}
	for i, e := range entries {
		resp.Seats[i] = RosterSeat{Player: int(e.Player), Email: e.Email}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if len(authHeader) < 8 {
			writeError(w, http.StatusUnauthorized, types.ErrUnauthorized, "unauthorized")
			return
		}
		claims, err := s.jwt.Parse(authHeader[7:])
		if err != nil {
			writeError(w, http.StatusUnauthorized, types.ErrUnauthorized, "unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
