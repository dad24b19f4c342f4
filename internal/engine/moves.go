package engine

import (
	"context"
	"time"

	"chessmata/internal/clock"
	"chessmata/internal/models"
	"chessmata/internal/rules"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/store"

	"go.mongodb.org/mongo-driver/bson"
)

// MakeMove implements make_move(user_id, game_id, san) (spec §4.5).
func (e *Engine) MakeMove(ctx context.Context, userID, gameID int64, san string) error {
	var emits []emission
	var endGameArgs *endGameCall

	err := e.store.WithLock(ctx, store.KindGame, gameID, lockHold, lockWait, func(ctx context.Context) error {
		game, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.State != models.GameStarted {
			return nil // not playing: silent drop
		}
		color, isParticipant := game.ColorOf(userID)
		if !isParticipant {
			return nil
		}
		if game.Turn() != color {
			return nil // not this user's turn: silent drop
		}

		board, positionHistory, err := rules.Replay(game.Moves)
		if err != nil {
			return err
		}
		nextBoard, canonicalSAN, err := rules.ApplyMove(board, san)
		if err != nil {
			return nil // unparseable or illegal move: drop silently, no mutation
		}

		game.Moves = append(game.Moves, canonicalSAN)
		fen := nextBoard.ToFEN()
		positionHistory = append(positionHistory, fen)

		if err := e.timers.Cancel(ctx, timerHandleID(game.FirstMoveTimeout)); err != nil {
			return err
		}
		game.FirstMoveTimeout = nil

		moverTimeIsUp := game.TimeIsUpHandle(color)
		if *moverTimeIsUp != nil {
			if err := e.timers.Cancel(ctx, (*moverTimeIsUp).ID); err != nil {
				return err
			}
			*moverTimeIsUp = nil
		}

		var declinedOfferTo int64
		var hasDeclinedOffer bool
		if game.DrawOfferSender != 0 && game.DrawOfferSender != userID {
			declinedOfferTo = game.DrawOfferSender
			hasDeclinedOffer = true
			game.DrawOfferSender = 0
		}

		now := time.Now()
		remaining := game.ClockFor(color)
		// Each side's first ply is not charged to its clock.
		if game.LastMoveTime != nil && len(game.Moves) > 2 {
			remaining = clock.Elapse(remaining, *game.LastMoveTime, now)
		}
		game.SetClock(color, remaining)

		if clock.IsExpired(remaining) {
			// The mover's own clock ran out before this move landed; finalize
			// as a time loss for the mover rather than accepting the move.
			loserColor := color
			winnerColor := loserColor.Opponent()
			result := models.ResultWhiteWins
			if winnerColor == models.Black {
				result = models.ResultBlackWins
			}
			if rules.IsInsufficientMaterial(nextBoard) {
				result = models.ResultDraw
			}
			endGameArgs = &endGameCall{gameID: gameID, result: result, reason: "time_is_up", updateRatings: true}
			return nil
		}

		opponentColor := color.Opponent()
		oppRemaining := game.ClockFor(opponentColor)
		eta := now.Add(oppRemaining)
		handle, err := e.timers.Schedule(ctx, KindTimeIsUp, bson.M{"gameId": gameID, "color": string(opponentColor)}, eta)
		if err != nil {
			return err
		}
		*game.TimeIsUpHandle(opponentColor) = &models.TimerHandle{ID: handle, Eta: eta}

		game.LastMoveTime = &now

		if len(game.Moves) == 1 {
			fmEta := now.Add(models.FirstMoveTimeout)
			fmHandle, err := e.timers.Schedule(ctx, KindFirstMoveTimeout, bson.M{"gameId": gameID}, fmEta)
			if err != nil {
				return err
			}
			game.FirstMoveTimeout = &models.TimerHandle{ID: fmHandle, Eta: fmEta}
			emits = append(emits, emission{sessionrouter.ToUser(game.BlackUserID), "first_move_waiting", map[string]int{"wait_time": int(models.FirstMoveTimeout.Seconds())}})
		}

		if err := e.store.SaveGame(ctx, game); err != nil {
			return err
		}

		if hasDeclinedOffer {
			emits = append(emits, emission{sessionrouter.ToUser(declinedOfferTo), "draw_offer_declined", nil})
		}

		emits = append(emits,
			emission{sessionrouter.ToUser(game.WhiteUserID), "game_updated", movePayload(game, models.White, canonicalSAN)},
			emission{sessionrouter.ToUser(game.BlackUserID), "game_updated", movePayload(game, models.Black, canonicalSAN)},
			emission{sessionrouter.ToGameRoom(gameID), "game_updated", movePayload(game, models.White, canonicalSAN)},
		)

		if terminal, result, reason := rules.TerminalResult(nextBoard, positionHistory); terminal {
			endGameArgs = &endGameCall{gameID: gameID, result: result, reason: reason, updateRatings: true}
		}

		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll(ctx, emits)
	if endGameArgs != nil {
		return e.EndGame(ctx, endGameArgs.gameID, endGameArgs.result, endGameArgs.reason, endGameArgs.updateRatings)
	}
	return nil
}

func movePayload(g *models.Game, forColor models.PlayerColor, san string) map[string]interface{} {
	own, opp := g.WhiteClockMicros, g.BlackClockMicros
	if forColor == models.Black {
		own, opp = opp, own
	}
	return map[string]interface{}{
		"san":       san,
		"own_clock": own.Microseconds(),
		"opp_clock": opp.Microseconds(),
	}
}

// timerHandleID safely extracts a timer handle's id, tolerating a nil
// handle (Cancel is a no-op on an empty string).
func timerHandleID(h *models.TimerHandle) string {
	if h == nil {
		return ""
	}
	return h.ID
}

type endGameCall struct {
	gameID        int64
	result        string
	reason        string
	updateRatings bool
}
