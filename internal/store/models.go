package store

import "time"

// User is a login account, independent of any game it plays in.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Game is a row describing one running Nomyx game; the live *model.Game
// it drives lives in memory inside a runtime.GameActor, not here.
type Game struct {
	ID          string
	Name        string
	Description string
	CreatedBy   string
	Status      string
	CreatedAt   time.Time
}

// GamePlayer links a login account to the player number it plays as in
// one game.
type GamePlayer struct {
	GameID string
	UserID string
	Player int
	Joined time.Time
}

// StoredCommand is one logged entry in a game's append-only command
// log: a trigger or a rule-proposal/activation call, in the order it
// was applied. ActorRule is 0 for system-initiated entries (trigger_time,
// trigger_message arriving off the bus).
type StoredCommand struct {
	GameID      string
	Seq         int64
	CommandID   string
	Kind        string
	ActorRule   int
	PayloadJSON string
	ServerTime  time.Time
}

// DedupRecord lets a WebSocket client safely retry a command after a
// dropped connection without double-applying it.
type DedupRecord struct {
	GameID         string
	ActorUserID    string
	IdempotencyKey string
	CommandType    string
	CommandID      string
	Status         string
	ResultJSON     string
	CreatedAt      time.Time
}

// GameSnapshot is a periodic plain-data capture of a Game's state, for
// fast reads and audit — see FromSnapshotDTO's doc comment on why it cannot
// carry a fully rehydratable Game.
type GameSnapshot struct {
	GameID    string
	LastSeq   int64
	StateJSON string
	CreatedAt time.Time
}
