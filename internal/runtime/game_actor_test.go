package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/value"
)

func newActorForTest(snapshotEvery int64, onSnapshot func()) *GameActor {
	g := model.NewGame("g", "d", 1)
	return NewGameActor(context.Background(), g, zap.NewNop(), snapshotEvery, onSnapshot, "game-1", nil)
}

func TestDispatchRunsCommandAgainstTheOwnedGame(t *testing.T) {
	ga := newActorForTest(0, nil)
	defer ga.Close()

	v, err := ga.Dispatch(func(g *model.Game) (value.Value, error) {
		g.Name = "renamed"
		return value.Str(g.Name), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.String != "renamed" {
		t.Fatalf("expected command result to reflect the mutation, got %q", v.String)
	}
	if ga.Game.Name != "renamed" {
		t.Fatalf("expected the actor's own Game to be mutated")
	}
}

func TestDispatchRecoversCommandPanic(t *testing.T) {
	ga := newActorForTest(0, nil)
	defer ga.Close()

	_, err := ga.Dispatch(func(g *model.Game) (value.Value, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatalf("expected a panicking command to surface as an error")
	}

	// The actor must still be alive and serving further commands.
	v, err := ga.Dispatch(func(g *model.Game) (value.Value, error) { return value.Bool(true), nil })
	if err != nil || !v.Bool {
		t.Fatalf("expected the actor to keep running after a recovered panic, got %v err=%v", v, err)
	}
}

func TestCloseStopsFurtherDispatch(t *testing.T) {
	ga := newActorForTest(0, nil)
	ga.Close()

	if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) { return value.Bool(true), nil }); err == nil {
		t.Fatalf("expected Dispatch to fail once the actor is closed")
	}
}

func TestSubscribeNotifiesAfterEachCommand(t *testing.T) {
	ga := newActorForTest(0, nil)
	defer ga.Close()

	var mu sync.Mutex
	notifications := 0
	ga.Subscribe("sub-1", &Subscriber{Notify: func(g *model.Game) {
		mu.Lock()
		notifications++
		mu.Unlock()
	}})

	for i := 0; i < 3; i++ {
		if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) { return value.Bool(true), nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	mu.Lock()
	got := notifications
	mu.Unlock()
	if got != 3 {
		t.Fatalf("expected 3 notifications for 3 commands, got %d", got)
	}

	ga.Unsubscribe("sub-1")
	if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) { return value.Bool(true), nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mu.Lock()
	got = notifications
	mu.Unlock()
	if got != 3 {
		t.Fatalf("expected no further notifications after Unsubscribe, got %d", got)
	}
}

func TestMaybeSnapshotFiresOnCadence(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	done := make(chan struct{}, 10)
	ga := newActorForTest(2, func() {
		mu.Lock()
		fired++
		mu.Unlock()
		done <- struct{}{}
	})
	defer ga.Close()

	for i := 0; i < 4; i++ {
		if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) { return value.Bool(true), nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Expect exactly 2 snapshots for 4 commands at a cadence of every 2nd.
	timeout := time.After(2 * time.Second)
	got := 0
	for got < 2 {
		select {
		case <-done:
			got++
		case <-timeout:
			t.Fatalf("timed out waiting for snapshots, got %d of 2", got)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != 2 {
		t.Fatalf("expected exactly 2 snapshot calls for 4 commands at cadence 2, got %d", fired)
	}
}

func TestMaybeSnapshotDisabledByZeroCadence(t *testing.T) {
	called := false
	ga := newActorForTest(0, func() { called = true })
	defer ga.Close()

	for i := 0; i < 5; i++ {
		if _, err := ga.Dispatch(func(g *model.Game) (value.Value, error) { return value.Bool(true), nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if called {
		t.Fatalf("expected onSnapshot never to fire when snapshotEvery is 0")
	}
}

func TestDispatchReturnsErrorFromCommand(t *testing.T) {
	ga := newActorForTest(0, nil)
	defer ga.Close()
	wantErr := fmt.Errorf("deliberate failure")
	_, err := ga.Dispatch(func(g *model.Game) (value.Value, error) { return value.Value{}, wantErr })
	if err == nil || err.Error() != wantErr.Error() {
		t.Fatalf("expected the command's own error to propagate, got %v", err)
	}
}
