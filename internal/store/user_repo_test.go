package store

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func TestCreateAndFetchUserByEmailAndID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := User{ID: "u1", Email: "a@example.com", PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	byEmail, err := s.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if byEmail.ID != "u1" {
		t.Fatalf("expected u1, got %q", byEmail.ID)
	}

	byID, err := s.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID.Email != "a@example.com" {
		t.Fatalf("expected a@example.com, got %q", byID.Email)
	}
}

func TestGetUserByEmailUnknownReturnsNoRows(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetUserByEmail(context.Background(), "missing@example.com"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestCreateUserIsIdempotentOnExistingID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := User{ID: "u1", Email: "first@example.com"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.CreateUser(ctx, User{ID: "u1", Email: "second@example.com"}); err != nil {
		t.Fatalf("second CreateUser failed: %v", err)
	}
	got, err := s.GetUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if got.Email != "first@example.com" {
		t.Fatalf("expected the original record to survive a duplicate CreateUser, got %q", got.Email)
	}
}

func TestGetRosterJoinsPlayersAndUsersInPlayerOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateUser(ctx, User{ID: "u1", Email: "one@example.com"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.CreateUser(ctx, User{ID: "u2", Email: "two@example.com"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.AddGamePlayer(ctx, GamePlayer{GameID: "g1", UserID: "u2", Player: 2, Joined: time.Now().UTC()}); err != nil {
		t.Fatalf("AddGamePlayer failed: %v", err)
	}
	if err := s.AddGamePlayer(ctx, GamePlayer{GameID: "g1", UserID: "u1", Player: 1, Joined: time.Now().UTC()}); err != nil {
		t.Fatalf("AddGamePlayer failed: %v", err)
	}

	roster, err := s.GetRoster(ctx, "g1")
	if err != nil {
		t.Fatalf("GetRoster failed: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 roster entries, got %d", len(roster))
	}
	if roster[0].Player != 1 || roster[0].Email != "one@example.com" {
		t.Fatalf("expected player 1 first, got %+v", roster[0])
	}
	if roster[1].Player != 2 || roster[1].Email != "two@example.com" {
		t.Fatalf("expected player 2 second, got %+v", roster[1])
	}
}

func TestGetRosterEmptyForUnknownGame(t *testing.T) {
	s := NewMemoryStore()
	roster, err := s.GetRoster(context.Background(), "no-such-game")
	if err != nil {
		t.Fatalf("GetRoster failed: %v", err)
	}
	if len(roster) != 0 {
		t.Fatalf("expected no roster entries, got %+v", roster)
	}
}
