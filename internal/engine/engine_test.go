package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"chessmata/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine() (*Engine, *fakeStore, *fakeTimer, *fakeBus) {
	s := newFakeStore()
	tm := newFakeTimer()
	b := newFakeBus()
	e := New(s, tm, b, discardLogger())
	e.RegisterTimerHandlers()
	return e, s, tm, b
}

func seedStartedGame(s *fakeStore, gameID, whiteID, blackID int64) {
	s.putUser(models.User{ID: whiteID, Login: "white", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})
	s.putUser(models.User{ID: blackID, Login: "black", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})
	s.putGame(models.Game{
		ID:               gameID,
		WhiteUserID:      whiteID,
		BlackUserID:      blackID,
		WhiteRating:      models.DefaultRating,
		BlackRating:      models.DefaultRating,
		State:            models.GameStarted,
		Result:           models.ResultInProgress,
		Moves:            []string{},
		TotalClockMicros: 5 * time.Minute,
		WhiteClockMicros: 5 * time.Minute,
		BlackClockMicros: 5 * time.Minute,
	})
}

func TestStartGame_SchedulesFirstMoveTimeoutAndEmitsGameStarted(t *testing.T) {
	e, s, tm, b := newTestEngine()
	s.putUser(models.User{ID: 1, Login: "white", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})
	s.putUser(models.User{ID: 2, Login: "black", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})
	s.putGame(models.Game{ID: 10, WhiteUserID: 1, BlackUserID: 2, State: models.GameCreated, Result: models.ResultInProgress})

	if err := e.StartGame(context.Background(), 10); err != nil {
		t.Fatalf("StartGame: %v", err)
	}

	g := s.snapshotGame(10)
	if g.State != models.GameStarted {
		t.Fatalf("state = %s, want STARTED", g.State)
	}
	if g.FirstMoveTimeout == nil {
		t.Fatal("expected FirstMoveTimeout to be scheduled")
	}
	if len(tm.pending) != 1 {
		t.Fatalf("pending timers = %d, want 1", len(tm.pending))
	}
	if len(b.events()) != 3 {
		t.Fatalf("emissions = %d, want 3 (2x game_started + first_move_waiting)", len(b.events()))
	}

	// Idempotent: calling again on an already-started game is a no-op.
	if err := e.StartGame(context.Background(), 10); err != nil {
		t.Fatalf("StartGame (second call): %v", err)
	}
	if len(tm.pending) != 1 {
		t.Fatalf("pending timers after repeat start = %d, want still 1", len(tm.pending))
	}
}

// TestMakeMove_FoolsMateFinalizesGame drives the canonical four-ply fool's
// mate through MakeMove and checks the resulting checkmate is finalized
// with the correct result, ratings applied, and timers cleared.
func TestMakeMove_FoolsMateFinalizesGame(t *testing.T) {
	e, s, tm, _ := newTestEngine()
	seedStartedGame(s, 20, 1, 2)

	moves := []struct {
		userID int64
		san    string
	}{
		{1, "f3"}, {2, "e5"}, {1, "g4"}, {2, "Qh4#"},
	}
	for _, mv := range moves {
		if err := e.MakeMove(context.Background(), mv.userID, 20, mv.san); err != nil {
			t.Fatalf("MakeMove(%s): %v", mv.san, err)
		}
	}

	g := s.snapshotGame(20)
	if g.State != models.GameFinished {
		t.Fatalf("state = %s, want FINISHED", g.State)
	}
	if g.Result != models.ResultBlackWins {
		t.Fatalf("result = %s, want %s", g.Result, models.ResultBlackWins)
	}
	if len(tm.pending) != 0 {
		t.Fatalf("pending timers after finalize = %d, want 0", len(tm.pending))
	}

	white := s.snapshotUser(1)
	black := s.snapshotUser(2)
	if white.Rating >= models.DefaultRating {
		t.Errorf("loser rating = %d, want < %d", white.Rating, models.DefaultRating)
	}
	if black.Rating <= models.DefaultRating {
		t.Errorf("winner rating = %d, want > %d", black.Rating, models.DefaultRating)
	}
	if len(white.GameHistory) != 1 || white.GameHistory[0] != 20 {
		t.Errorf("white.GameHistory = %v, want [20]", white.GameHistory)
	}
	if len(black.GameHistory) != 1 || black.GameHistory[0] != 20 {
		t.Errorf("black.GameHistory = %v, want [20]", black.GameHistory)
	}
}

// TestMakeMove_IllegalMoveDropsSilently checks an illegal SAN never mutates
// the game (spec: "unparseable or illegal move: drop silently").
func TestMakeMove_IllegalMoveDropsSilently(t *testing.T) {
	e, s, _, _ := newTestEngine()
	seedStartedGame(s, 21, 1, 2)

	if err := e.MakeMove(context.Background(), 1, 21, "e5"); err != nil {
		t.Fatalf("MakeMove: %v", err)
	}
	g := s.snapshotGame(21)
	if len(g.Moves) != 0 {
		t.Fatalf("moves = %v, want none applied", g.Moves)
	}
}

// TestMakeMove_NotYourTurnDropsSilently checks the wrong side can't move.
func TestMakeMove_NotYourTurnDropsSilently(t *testing.T) {
	e, s, _, _ := newTestEngine()
	seedStartedGame(s, 22, 1, 2)

	if err := e.MakeMove(context.Background(), 2, 22, "e5"); err != nil {
		t.Fatalf("MakeMove: %v", err)
	}
	g := s.snapshotGame(22)
	if len(g.Moves) != 0 {
		t.Fatalf("moves = %v, want none applied (black moved on white's turn)", g.Moves)
	}
}
