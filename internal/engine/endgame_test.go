package engine

import (
	"context"
	"testing"
	"time"

	"chessmata/internal/models"

	"go.mongodb.org/mongo-driver/bson"
)

// TestOnFirstMoveTimedOutCallback_NoopsIfFirstMoveAlreadyLanded reproduces
// the race in spec §7.4: a first move landing right at the 15s boundary
// clears FirstMoveTimeout and advances Moves before the already-fired sweep
// callback runs. The callback must leave an in-progress game alone instead
// of cancelling it out from under the players.
func TestOnFirstMoveTimedOutCallback_NoopsIfFirstMoveAlreadyLanded(t *testing.T) {
	e, s, tm, _ := newTestEngine()
	_ = e
	seedStartedGame(s, 30, 1, 2)

	handle, err := tm.Schedule(context.Background(), KindFirstMoveTimeout, bson.M{"gameId": int64(30)}, time.Now())
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	// A move lands and clears the handle the normal way (moves.go nils
	// FirstMoveTimeout under the Game lock the instant ply one is accepted).
	g := s.snapshotGame(30)
	g.Moves = []string{"e4"}
	g.FirstMoveTimeout = nil
	s.putGame(g)

	// The sweep fires the (now superseded) callback anyway.
	tm.fire(context.Background(), handle)

	got := s.snapshotGame(30)
	if got.State == models.GameFinished {
		t.Fatalf("game was finalized despite the first move already landing")
	}
}

// TestOnFirstMoveTimedOutCallback_FinalizesWhenStillUnplayed is the
// non-race path: no move ever landed, so the callback finalizes normally.
func TestOnFirstMoveTimedOutCallback_FinalizesWhenStillUnplayed(t *testing.T) {
	e, s, tm, _ := newTestEngine()
	s.putUser(models.User{ID: 1, Login: "white", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})
	s.putUser(models.User{ID: 2, Login: "black", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})
	s.putGame(models.Game{ID: 31, WhiteUserID: 1, BlackUserID: 2, State: models.GameStarted, Result: models.ResultInProgress})

	handle, _ := tm.Schedule(context.Background(), KindFirstMoveTimeout, bson.M{"gameId": int64(31)}, time.Now())
	g := s.snapshotGame(31)
	g.FirstMoveTimeout = &models.TimerHandle{ID: handle, Eta: time.Now()}
	s.putGame(g)

	tm.fire(context.Background(), handle)

	_ = e
	got := s.snapshotGame(31)
	if got.State != models.GameFinished {
		t.Fatalf("state = %s, want FINISHED", got.State)
	}
	if got.Result != models.ResultCancelled {
		t.Fatalf("result = %s, want %s", got.Result, models.ResultCancelled)
	}
}

// TestOnDisconnectTimedOutCallback_NoopsIfReconnectedFirst reproduces a
// concurrent OnReconnect clearing the disconnect handle before the fired
// callback's finalize runs; the callback must not forfeit a reconnected
// player.
func TestOnDisconnectTimedOutCallback_NoopsIfReconnectedFirst(t *testing.T) {
	e, s, tm, _ := newTestEngine()
	seedStartedGame(s, 32, 1, 2)

	g := s.snapshotGame(32)
	g.Moves = []string{"e4"}
	handle, _ := tm.Schedule(context.Background(), KindDisconnectTimeout, bson.M{"gameId": int64(32), "color": "white"}, time.Now())
	g.WhiteDisconnectTimeout = &models.TimerHandle{ID: handle, Eta: time.Now()}
	s.putGame(g)

	// OnReconnect beats the fired callback to the lock and clears the handle.
	if err := e.OnReconnect(context.Background(), 1, 32); err != nil {
		t.Fatalf("OnReconnect: %v", err)
	}

	tm.fire(context.Background(), handle)

	got := s.snapshotGame(32)
	if got.State == models.GameFinished {
		t.Fatalf("game was forfeited despite the disconnected player reconnecting first")
	}
}

// TestOnDisconnectTimedOutCallback_ForfeitsWhenStillDisconnected is the
// non-race path.
func TestOnDisconnectTimedOutCallback_ForfeitsWhenStillDisconnected(t *testing.T) {
	e, s, tm, _ := newTestEngine()
	seedStartedGame(s, 33, 1, 2)

	g := s.snapshotGame(33)
	g.Moves = []string{"e4"}
	handle, _ := tm.Schedule(context.Background(), KindDisconnectTimeout, bson.M{"gameId": int64(33), "color": "white"}, time.Now())
	g.WhiteDisconnectTimeout = &models.TimerHandle{ID: handle, Eta: time.Now()}
	s.putGame(g)

	tm.fire(context.Background(), handle)

	_ = e
	got := s.snapshotGame(33)
	if got.State != models.GameFinished {
		t.Fatalf("state = %s, want FINISHED", got.State)
	}
	if got.Result != models.ResultBlackWins {
		t.Fatalf("result = %s, want %s (white disconnected)", got.Result, models.ResultBlackWins)
	}
}

// TestOnTimeIsUpCallback_NoopsIfMoveLandedFirst: the mover moves (cancelling
// their time_is_up handle) right before the sweep's already-fired callback
// runs; the callback must not override the live game with a stale result.
func TestOnTimeIsUpCallback_NoopsIfMoveLandedFirst(t *testing.T) {
	e, s, tm, _ := newTestEngine()
	seedStartedGame(s, 34, 1, 2)

	g := s.snapshotGame(34)
	handle, _ := tm.Schedule(context.Background(), KindTimeIsUp, bson.M{"gameId": int64(34), "color": "white"}, time.Now())
	g.WhiteTimeIsUp = &models.TimerHandle{ID: handle, Eta: time.Now()}
	s.putGame(g)

	// A move lands and clears the handle normally.
	g2 := s.snapshotGame(34)
	g2.Moves = []string{"e4"}
	g2.WhiteTimeIsUp = nil
	s.putGame(g2)

	tm.fire(context.Background(), handle)

	got := s.snapshotGame(34)
	if got.State == models.GameFinished {
		t.Fatalf("game was forfeited on time despite the move already landing")
	}

	_ = e
}

// TestOnTimeIsUpCallback_ForfeitsOnTimeWithMaterialOnBoard: white's clock
// expires with the starting position still on the board (plenty of mating
// material for black), so black wins on time rather than drawing (spec §4.5
// on_time_is_up). The insufficient-material branch shares this same code
// path with rules.IsInsufficientMaterial flipped true instead of false —
// that predicate itself is covered directly in internal/rules, so this test
// exercises the surrounding wiring (handle guard, replay, result mapping)
// without needing a hand-verified SAN sequence down to bare kings.
func TestOnTimeIsUpCallback_ForfeitsOnTimeWithMaterialOnBoard(t *testing.T) {
	e, s, tm, _ := newTestEngine()
	s.putUser(models.User{ID: 1, Login: "white", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})
	s.putUser(models.User{ID: 2, Login: "black", Rating: models.DefaultRating, KFactor: models.DefaultKFactor})

	handle, _ := tm.Schedule(context.Background(), KindTimeIsUp, bson.M{"gameId": int64(35), "color": "white"}, time.Now())
	s.putGame(models.Game{
		ID:               35,
		WhiteUserID:      1,
		BlackUserID:      2,
		State:            models.GameStarted,
		Result:           models.ResultInProgress,
		Moves:            []string{},
		WhiteTimeIsUp:    &models.TimerHandle{ID: handle, Eta: time.Now()},
		TotalClockMicros: 5 * time.Minute,
		WhiteClockMicros: 0,
		BlackClockMicros: 5 * time.Minute,
	})

	tm.fire(context.Background(), handle)

	_ = e
	got := s.snapshotGame(35)
	if got.State != models.GameFinished {
		t.Fatalf("state = %s, want FINISHED", got.State)
	}
	if got.Result != models.ResultBlackWins {
		t.Fatalf("result = %s, want %s", got.Result, models.ResultBlackWins)
	}
}

func TestResign_ForfeitsWithRatingUpdate(t *testing.T) {
	e, s, _, _ := newTestEngine()
	seedStartedGame(s, 40, 1, 2)
	g := s.snapshotGame(40)
	g.Moves = []string{"e4"}
	s.putGame(g)

	if err := e.Resign(context.Background(), 1, 40); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	got := s.snapshotGame(40)
	if got.State != models.GameFinished || got.Result != models.ResultBlackWins {
		t.Fatalf("state=%s result=%s, want FINISHED/%s", got.State, got.Result, models.ResultBlackWins)
	}
}

func TestResign_BeforeFirstMoveCancelsWithoutRatingUpdate(t *testing.T) {
	e, s, _, _ := newTestEngine()
	seedStartedGame(s, 41, 1, 2)

	if err := e.Resign(context.Background(), 1, 41); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	got := s.snapshotGame(41)
	if got.State != models.GameFinished || got.Result != models.ResultCancelled {
		t.Fatalf("state=%s result=%s, want FINISHED/%s", got.State, got.Result, models.ResultCancelled)
	}
	if s.snapshotUser(1).GamesPlayed != 0 {
		t.Errorf("cancelled game must not count toward games played")
	}
}

func TestDrawOfferAndAccept_EndsInDraw(t *testing.T) {
	e, s, _, _ := newTestEngine()
	seedStartedGame(s, 42, 1, 2)
	g := s.snapshotGame(42)
	g.Moves = []string{"e4"}
	s.putGame(g)

	if err := e.MakeDrawOffer(context.Background(), 1, 42); err != nil {
		t.Fatalf("MakeDrawOffer: %v", err)
	}
	if s.snapshotGame(42).DrawOfferSender != 1 {
		t.Fatalf("draw offer sender not recorded")
	}

	if err := e.AcceptDrawOffer(context.Background(), 2, 42); err != nil {
		t.Fatalf("AcceptDrawOffer: %v", err)
	}
	got := s.snapshotGame(42)
	if got.State != models.GameFinished || got.Result != models.ResultDraw {
		t.Fatalf("state=%s result=%s, want FINISHED/%s", got.State, got.Result, models.ResultDraw)
	}
}
