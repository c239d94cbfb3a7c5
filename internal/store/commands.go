package store

import (
	"context"
	"database/sql"
	"encoding/json"
)

func (s *Store) GetDedupRecord(ctx context.Context, gameID, actorUserID, idempotencyKey, commandType string) (*DedupRecord, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		key := gameID + "|" + actorUserID + "|" + idempotencyKey + "|" + commandType
		if r, ok := s.dedups[key]; ok {
			return &r, nil
		}
		return nil, nil
	}
	row := s.DB.QueryRowContext(ctx, `SELECT game_id,actor_user_id,idempotency_key,command_type,command_id,status,result_json,created_at FROM commands_dedup WHERE game_id=? AND actor_user_id=? AND idempotency_key=? AND command_type=?`, gameID, actorUserID, idempotencyKey, commandType)
	var r DedupRecord
	if err := row.Scan(&r.GameID, &r.ActorUserID, &r.IdempotencyKey, &r.CommandType, &r.CommandID, &r.Status, &r.ResultJSON, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) SaveDedupRecord(ctx context.Context, tx *sql.Tx, r DedupRecord) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		key := r.GameID + "|" + r.ActorUserID + "|" + r.IdempotencyKey + "|" + r.CommandType
		s.dedups[key] = r
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO commands_dedup (game_id,actor_user_id,idempotency_key,command_type,command_id,status,result_json,created_at) VALUES (?,?,?,?,?,?,?,?) ON DUPLICATE KEY UPDATE status=VALUES(status),result_json=VALUES(result_json)`,
		r.GameID, r.ActorUserID, r.IdempotencyKey, r.CommandType, r.CommandID, r.Status, r.ResultJSON, r.CreatedAt)
	return err
}

func (s *Store) GetLatestSnapshot(ctx context.Context, gameID string) (*GameSnapshot, error) {
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if snap, ok := s.snapshots[gameID]; ok {
			return &snap, nil
		}
		return nil, nil
	}
	row := s.DB.QueryRowContext(ctx, `SELECT game_id,last_seq,state_json,created_at FROM game_snapshots WHERE game_id=? ORDER BY last_seq DESC LIMIT 1`, gameID)
	var snap GameSnapshot
	if err := row.Scan(&snap.GameID, &snap.LastSeq, &snap.StateJSON, &snap.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, tx *sql.Tx, snap GameSnapshot) error {
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.snapshots[snap.GameID] = snap
		return nil
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO game_snapshots (game_id,last_seq,state_json,created_at) VALUES (?,?,?,?)`, snap.GameID, snap.LastSeq, snap.StateJSON, snap.CreatedAt)
	return err
}

func (s *Store) LoadCommandsAfter(ctx context.Context, gameID string, afterSeq int64, limit int) ([]StoredCommand, error) {
	if limit <= 0 {
		limit = 200
	}
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		var res []StoredCommand
		for _, c := range s.commands[gameID] {
			if c.Seq > afterSeq {
				res = append(res, c)
				if len(res) >= limit {
					break
				}
			}
		}
		return res, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT game_id,seq,command_id,kind,actor_rule,payload_json,server_ts FROM commands WHERE game_id=? AND seq>? ORDER BY seq ASC LIMIT ?`, gameID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []StoredCommand
	for rows.Next() {
		var c StoredCommand
		if err := rows.Scan(&c.GameID, &c.Seq, &c.CommandID, &c.Kind, &c.ActorRule, &c.PayloadJSON, &c.ServerTime); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// AppendCommands assigns sequence numbers and commits cmds, and
// optionally a dedup record and a snapshot, atomically: replay always
// sees either all of a batch or none of it.
func (s *Store) AppendCommands(ctx context.Context, gameID string, cmds []StoredCommand, dedup *DedupRecord, snap *GameSnapshot) error {
	if s.MemoryMode {
		s.mu.Lock()
		current := s.sequences[gameID]
		if current == 0 {
			current = 1
		}
		for i := range cmds {
			cmds[i].Seq = current + int64(i)
		}
		s.sequences[gameID] = current + int64(len(cmds))
		s.commands[gameID] = append(s.commands[gameID], cmds...)
		s.mu.Unlock()
		if dedup != nil {
			if err := s.SaveDedupRecord(ctx, nil, *dedup); err != nil {
				return err
			}
		}
		if snap != nil {
			if err := s.SaveSnapshot(ctx, nil, *snap); err != nil {
				return err
			}
		}
		return nil
	}

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var current int64
		row := tx.QueryRowContext(ctx, `SELECT next_seq FROM game_sequences WHERE game_id=? FOR UPDATE`, gameID)
		switch err := row.Scan(&current); err {
		case nil:
		case sql.ErrNoRows:
			current = 1
			if _, err := tx.ExecContext(ctx, `INSERT INTO game_sequences (game_id,next_seq) VALUES (?,?)`, gameID, current); err != nil {
				return err
			}
		default:
			return err
		}

		for i := range cmds {
			cmds[i].Seq = current + int64(i)
		}
		next := current + int64(len(cmds))
		if _, err := tx.ExecContext(ctx, `UPDATE game_sequences SET next_seq=? WHERE game_id=?`, next, gameID); err != nil {
			return err
		}

		for _, c := range cmds {
			if _, err := tx.ExecContext(ctx, `INSERT INTO commands (game_id,seq,command_id,kind,actor_rule,payload_json,server_ts) VALUES (?,?,?,?,?,?,?)`,
				c.GameID, c.Seq, c.CommandID, c.Kind, c.ActorRule, c.PayloadJSON, c.ServerTime); err != nil {
				return err
			}
		}

		if dedup != nil {
			if err := s.SaveDedupRecord(ctx, tx, *dedup); err != nil {
				return err
			}
		}
		if snap != nil {
			if err := s.SaveSnapshot(ctx, tx, *snap); err != nil {
				return err
			}
		}
		return nil
	})
}

func EncodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeJSON(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}
