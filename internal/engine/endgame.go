package engine

import (
	"context"
	"time"

	"chessmata/internal/elo"
	"chessmata/internal/models"
	"chessmata/internal/rules"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/store"

	"go.mongodb.org/mongo-driver/bson"
)

// EndGame implements end_game(game_id, result, reason, update_ratings)
// (spec §4.5). Idempotent: a game already FINISHED is left untouched. Used
// by call sites that have already decided the game is over (moves,
// resignation, draw settlement) and so need no further guard; a game that
// is already FINISHED when the lock is taken is still left untouched.
func (e *Engine) EndGame(ctx context.Context, gameID int64, result, reason string, updateRatings bool) error {
	return e.endGame(ctx, gameID, func(*models.Game) (string, string, bool, bool) {
		return result, reason, updateRatings, true
	})
}

// endGame is the guarded finalize core shared by EndGame and the timer
// callbacks below. resolve runs against the freshly loaded game, still
// under the Game lock: it decides both whether the precondition that
// triggered this call is still current and, if so, what to finalize with.
// Returning ok=false leaves the game untouched — the fix for a first-move
// timeout, disconnect forfeit, or time forfeit racing a move/reconnect that
// landed between the callback firing and this lock being acquired; the
// decision and the finalize now happen under the same lock instead of an
// unlocked pre-check followed by a separately-locked finalize.
func (e *Engine) endGame(ctx context.Context, gameID int64, resolve func(game *models.Game) (result, reason string, updateRatings, ok bool)) error {
	var emits []emission

	err := e.store.WithLock(ctx, store.KindGame, gameID, lockHold, lockWait, func(ctx context.Context) error {
		game, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.State == models.GameFinished {
			return nil
		}

		result, reason, updateRatings, ok := resolve(game)
		if !ok {
			return nil
		}

		e.cancelAllTimers(ctx, game)

		game.State = models.GameFinished
		game.Result = result

		var whiteDelta, blackDelta int
		if updateRatings {
			white, err := e.store.GetUser(ctx, game.WhiteUserID)
			if err != nil {
				return err
			}
			black, err := e.store.GetUser(ctx, game.BlackUserID)
			if err != nil {
				return err
			}

			whiteResult, blackResult := elo.GetGameResultFromWinner(resultWinner(result))
			whiteDelta = e.elo.RatingDelta(white.Rating, black.Rating, whiteResult, white.KFactor)
			blackDelta = e.elo.RatingDelta(black.Rating, white.Rating, blackResult, black.KFactor)

			white.Rating += whiteDelta
			black.Rating += blackDelta
			white.GamesPlayed++
			black.GamesPlayed++
			white.KFactor = e.elo.NextKFactor(white.KFactor, white.GamesPlayed, white.Rating)
			black.KFactor = e.elo.NextKFactor(black.KFactor, black.GamesPlayed, black.Rating)
			white.CurrentGameID = nil
			black.CurrentGameID = nil
			white.GameHistory = append(white.GameHistory, gameID)
			black.GameHistory = append(black.GameHistory, gameID)

			if err := e.store.SaveUser(ctx, white); err != nil {
				return err
			}
			if err := e.store.SaveUser(ctx, black); err != nil {
				return err
			}
		} else {
			white, err := e.store.GetUser(ctx, game.WhiteUserID)
			if err != nil {
				return err
			}
			black, err := e.store.GetUser(ctx, game.BlackUserID)
			if err != nil {
				return err
			}
			white.CurrentGameID = nil
			black.CurrentGameID = nil
			if err := e.store.SaveUser(ctx, white); err != nil {
				return err
			}
			if err := e.store.SaveUser(ctx, black); err != nil {
				return err
			}
		}

		if err := e.store.SaveGame(ctx, game); err != nil {
			return err
		}

		whiteOutcome := clientOutcome(result, models.White)
		blackOutcome := clientOutcome(result, models.Black)

		emits = append(emits,
			emission{sessionrouter.ToUser(game.WhiteUserID), "game_ended", map[string]interface{}{
				"result": whiteOutcome, "reason": reason,
				"rating_deltas": map[string]int{"w": whiteDelta, "b": blackDelta},
			}},
			emission{sessionrouter.ToUser(game.BlackUserID), "game_ended", map[string]interface{}{
				"result": blackOutcome, "reason": reason,
				"rating_deltas": map[string]int{"w": whiteDelta, "b": blackDelta},
			}},
			emission{sessionrouter.ToGameRoom(gameID), "game_ended", map[string]interface{}{
				"result":        "interrupted",
				"rating_deltas": map[string]int{"w": whiteDelta, "b": blackDelta},
			}},
		)
		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll(ctx, emits)
	return nil
}

// cancelAllTimers cancels all five timer slots a game may have outstanding
// (spec §4.5 end_game: "Cancel all five outstanding timers").
func (e *Engine) cancelAllTimers(ctx context.Context, g *models.Game) {
	for _, h := range []*models.TimerHandle{
		g.FirstMoveTimeout, g.WhiteTimeIsUp, g.BlackTimeIsUp,
		g.WhiteDisconnectTimeout, g.BlackDisconnectTimeout,
	} {
		if h != nil {
			e.timers.Cancel(ctx, h.ID)
		}
	}
	g.FirstMoveTimeout = nil
	g.WhiteTimeIsUp = nil
	g.BlackTimeIsUp = nil
	g.WhiteDisconnectTimeout = nil
	g.BlackDisconnectTimeout = nil
}

// resultWinner converts a Game.Result string to the "white"/"black"/""
// winner vocabulary elo.GetGameResultFromWinner expects.
func resultWinner(result string) string {
	switch result {
	case models.ResultWhiteWins:
		return "white"
	case models.ResultBlackWins:
		return "black"
	default:
		return ""
	}
}

func clientOutcome(result string, forColor models.PlayerColor) string {
	switch result {
	case models.ResultWhiteWins:
		if forColor == models.White {
			return "won"
		}
		return "lost"
	case models.ResultBlackWins:
		if forColor == models.Black {
			return "won"
		}
		return "lost"
	case models.ResultDraw:
		return "draw"
	default:
		return "interrupted"
	}
}

// onFirstMoveTimedOutCallback handles a fired first_move_timeout: finalize
// with result "-", reason "cancelled", no rating update (spec §4.5
// on_first_move_timed_out). The resolve guard re-checks, under the Game
// lock, that the first move still hasn't landed — moves.go's MakeMove nils
// FirstMoveTimeout under the same lock the instant it accepts ply one, so a
// move that lands right at the timeout boundary wins the race instead of
// being silently cancelled out from under the players.
func (e *Engine) onFirstMoveTimedOutCallback(ctx context.Context, payload bson.M) {
	gameID := int64OrZero(payload["gameId"])
	if gameID == 0 {
		return
	}
	err := e.endGame(ctx, gameID, func(game *models.Game) (string, string, bool, bool) {
		if game.FirstMoveTimeout == nil || len(game.Moves) != 0 {
			return "", "", false, false
		}
		return models.ResultCancelled, "cancelled", false, true
	})
	if err != nil {
		e.log.Error("on_first_move_timed_out failed", "game_id", gameID, "error", err)
	}
}

// onDisconnectTimedOutCallback handles a fired disconnect timeout: the
// other side wins, reason "disconnected too long" (spec §4.5
// on_disconnect_timed_out). The handle-presence check runs inside the same
// locked resolve that performs the finalize, so a concurrent OnReconnect
// that clears the handle (actions.go) always wins a race against this
// callback instead of sometimes losing to it.
func (e *Engine) onDisconnectTimedOutCallback(ctx context.Context, payload bson.M) {
	gameID := int64OrZero(payload["gameId"])
	colorStr, _ := payload["color"].(string)
	if gameID == 0 || colorStr == "" {
		return
	}
	disconnectedColor := models.PlayerColor(colorStr)

	err := e.endGame(ctx, gameID, func(game *models.Game) (string, string, bool, bool) {
		if *game.DisconnectHandle(disconnectedColor) == nil {
			return "", "", false, false // reconnected before this fired
		}
		result := models.ResultWhiteWins
		if disconnectedColor == models.White {
			result = models.ResultBlackWins
		}
		return result, "disconnected too long", true, true
	})
	if err != nil {
		e.log.Error("on_disconnect_timed_out failed", "game_id", gameID, "error", err)
	}
}

// onTimeIsUpCallback handles a fired time_is_up: finalize. If the opposing
// side has insufficient mating material, result is a draw; otherwise they
// win (spec §4.5 on_time_is_up). Both the handle check and the board replay
// run inside the locked resolve against the freshly loaded game, so a move
// that lands (and cancels the handle) between this callback firing and the
// lock being acquired is never overridden by a stale board evaluation.
func (e *Engine) onTimeIsUpCallback(ctx context.Context, payload bson.M) {
	gameID := int64OrZero(payload["gameId"])
	colorStr, _ := payload["color"].(string)
	if gameID == 0 || colorStr == "" {
		return
	}
	expiredColor := models.PlayerColor(colorStr)

	err := e.endGame(ctx, gameID, func(game *models.Game) (string, string, bool, bool) {
		handle := *game.TimeIsUpHandle(expiredColor)
		if handle == nil {
			return "", "", false, false // the mover moved before this fired
		}
		// The stored handle may be a newer one than the handle that fired;
		// the side's clock only runs out at the stored eta, so an earlier
		// firing is spurious and leaves the game alone.
		if time.Now().Before(handle.Eta) {
			return "", "", false, false
		}

		board, _, err := rules.Replay(game.Moves)
		if err != nil {
			e.log.Error("time_is_up replay failed", "game_id", gameID, "error", err)
			return "", "", false, false
		}

		winnerColor := expiredColor.Opponent()
		result := models.ResultWhiteWins
		if winnerColor == models.Black {
			result = models.ResultBlackWins
		}
		if rules.IsInsufficientMaterial(board) {
			result = models.ResultDraw
		}
		return result, "time_is_up", true, true
	})
	if err != nil {
		e.log.Error("on_time_is_up failed", "game_id", gameID, "error", err)
	}
}

func int64OrZero(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
