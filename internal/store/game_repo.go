package store

import (
	"context"
	"database/sql"
)

func (s *Store) CreateGame(ctx context.Context, g Game) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.games[g.ID] = g
		s.sequences[g.ID] = 1
		return nil
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO games (id,name,description,created_by,status,created_at) VALUES (?,?,?,?,?,?)`,
		g.ID, g.Name, g.Description, g.CreatedBy, g.Status, g.CreatedAt,
	)
	if err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, `INSERT INTO game_sequences (game_id,next_seq) VALUES (?,1) ON DUPLICATE KEY UPDATE next_seq=next_seq`, g.ID)
	return nil
}

func (s *Store) GetGame(ctx context.Context, id string) (*Game, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if g, ok := s.games[id]; ok {
			return &g, nil
		}
		return nil, sql.ErrNoRows
	}
	row := s.DB.QueryRowContext(ctx, `SELECT id,name,description,created_by,status,created_at FROM games WHERE id=?`, id)
	var g Game
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.Status, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) AddGamePlayer(ctx context.Context, p GamePlayer) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, existing := range s.players[p.GameID] {
			if existing.UserID == p.UserID {
				s.players[p.GameID][i] = p
				return nil
			}
		}
		s.players[p.GameID] = append(s.players[p.GameID], p)
		return nil
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO game_players (game_id,user_id,player_number,joined_at) VALUES (?,?,?,?) ON DUPLICATE KEY UPDATE player_number=VALUES(player_number)`,
		p.GameID, p.UserID, p.Player, p.Joined,
	)
	return err
}

func (s *Store) GetGamePlayers(ctx context.Context, gameID string) ([]GamePlayer, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return append([]GamePlayer(nil), s.players[gameID]...), nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT game_id,user_id,player_number,joined_at FROM game_players WHERE game_id=?`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []GamePlayer
	for rows.Next() {
		var p GamePlayer
		if err := rows.Scan(&p.GameID, &p.UserID, &p.Player, &p.Joined); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Store) IsPlayer(ctx context.Context, gameID, userID string) (bool, int, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, p := range s.players[gameID] {
			if p.UserID == userID {
				return true, p.Player, nil
			}
		}
		return false, 0, nil
	}
	row := s.DB.QueryRowContext(ctx, `SELECT player_number FROM game_players WHERE game_id=? AND user_id=?`, gameID, userID)
	var n int
	err := row.Scan(&n)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, 0, nil
		}
		return false, 0, err
	}
	return true, n, nil
}
