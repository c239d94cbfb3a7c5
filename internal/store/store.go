package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

type Store struct {
	DB         *sql.DB
	MemoryMode bool
	mu         sync.RWMutex
	users      map[string]User
	games      map[string]Game
	players    map[string][]GamePlayer
	sequences  map[string]int64
	commands   map[string][]StoredCommand
	snapshots  map[string]GameSnapshot
	dedups     map[string]DedupRecord
}

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func NewMemoryStore() *Store {
	return &Store{
		MemoryMode: true,
		users:      make(map[string]User),
		games:      make(map[string]Game),
		players:    make(map[string][]GamePlayer),
		sequences:  make(map[string]int64),
		commands:   make(map[string][]StoredCommand),
		snapshots:  make(map[string]GameSnapshot),
		dedups:     make(map[string]DedupRecord),
	}
}

func ConnectMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if s.MemoryMode {
		return fn(nil) // Pass nil transaction, caller must handle nil if logic is shared
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	err = tx.Commit()
	if err != nil {
		return err
	}
	tx = nil
	return nil
}

func (s *Store) Close() error {
	if s.MemoryMode {
		return nil
	}
	return s.DB.Close()
}
