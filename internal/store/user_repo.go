package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/cdupont/Nomyx/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, u User) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.users[u.ID]; exists {
			return nil // Already exists
		}
		s.users[u.ID] = u
		return nil
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id,email,password_hash,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt,
	)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, u := range s.users {
			if u.Email == email {
				return &u, nil
			}
		}
		return nil, sql.ErrNoRows
	}
	row := s.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM users WHERE email=?`, email)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if u, exists := s.users[id]; exists {
			return &u, nil
		}
		return nil, sql.ErrNoRows
	}
	row := s.DB.QueryRowContext(ctx, `SELECT id,email,password_hash,created_at FROM users WHERE id=?`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// RosterEntry names the account seated behind a live player number, for
// the admin-only roster view (transport.fetchRoster) — a game-scoped join
// the engine itself has no notion of, since model.Player knows nothing
// about accounts.
type RosterEntry struct {
	Player model.PlayerNumber
	Email  string
}

// GetRoster joins game_players against users to resolve which account
// sits behind each seated player number in gameID, ordered by player
// number.
func (s *Store) GetRoster(ctx context.Context, gameID string) ([]RosterEntry, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		players := append([]GamePlayer(nil), s.players[gameID]...)
		sort.Slice(players, func(i, j int) bool { return players[i].Player < players[j].Player })
		out := make([]RosterEntry, 0, len(players))
		for _, p := range players {
			u, ok := s.users[p.UserID]
			if !ok {
				continue
			}
			out = append(out, RosterEntry{Player: model.PlayerNumber(p.Player), Email: u.Email})
		}
		return out, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT gp.player_number, u.email FROM game_players gp JOIN users u ON u.id = gp.user_id WHERE gp.game_id = ? ORDER BY gp.player_number`,
		gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RosterEntry
	for rows.Next() {
		var n int
		var email string
		if err := rows.Scan(&n, &email); err != nil {
			return nil, err
		}
		out = append(out, RosterEntry{Player: model.PlayerNumber(n), Email: email})
	}
	return out, rows.Err()
}
