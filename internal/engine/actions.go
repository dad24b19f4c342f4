package engine

import (
	"context"
	"time"

	"chessmata/internal/models"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/store"

	"go.mongodb.org/mongo-driver/bson"
)

// Resign implements resign(user_id, game_id) (spec §4.5).
func (e *Engine) Resign(ctx context.Context, userID, gameID int64) error {
	game, err := e.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game.State == models.GameFinished {
		return nil
	}
	color, isParticipant := game.ColorOf(userID)
	if !isParticipant {
		return nil
	}

	if len(game.Moves) < 1 {
		return e.EndGame(ctx, gameID, models.ResultCancelled, "cancelled", false)
	}

	result := models.ResultWhiteWins
	if color == models.White {
		result = models.ResultBlackWins
	}
	return e.EndGame(ctx, gameID, result, "resigned", true)
}

// MakeDrawOffer implements make_draw_offer(user_id, game_id) (spec §4.5).
func (e *Engine) MakeDrawOffer(ctx context.Context, userID, gameID int64) error {
	var emits []emission
	var acceptCall bool

	err := e.store.WithLock(ctx, store.KindGame, gameID, lockHold, lockWait, func(ctx context.Context) error {
		game, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.State != models.GameStarted {
			return nil
		}
		color, isParticipant := game.ColorOf(userID)
		if !isParticipant {
			return nil
		}
		if len(game.Moves) == 0 {
			return nil // no ply played yet
		}

		if game.DrawOfferSender != 0 && game.DrawOfferSender != userID {
			acceptCall = true
			return nil
		}
		if game.DrawOfferSender == userID {
			return nil // already offered, no-op
		}

		game.DrawOfferSender = userID
		if err := e.store.SaveGame(ctx, game); err != nil {
			return err
		}
		opponentID := game.UserIDFor(color.Opponent())
		emits = append(emits, emission{sessionrouter.ToUser(opponentID), "draw_offer", nil})
		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll(ctx, emits)
	if acceptCall {
		return e.AcceptDrawOffer(ctx, userID, gameID)
	}
	return nil
}

// AcceptDrawOffer implements accept_draw_offer(user_id, game_id) (spec §4.5).
func (e *Engine) AcceptDrawOffer(ctx context.Context, userID, gameID int64) error {
	accepted, err := e.clearDrawOffer(ctx, userID, gameID)
	if err != nil || !accepted {
		return err
	}
	return e.EndGame(ctx, gameID, models.ResultDraw, "draw", true)
}

// DeclineDrawOffer implements decline_draw_offer(user_id, game_id) (spec §4.5).
func (e *Engine) DeclineDrawOffer(ctx context.Context, userID, gameID int64) error {
	var originalSender int64
	var emits []emission

	err := e.store.WithLock(ctx, store.KindGame, gameID, lockHold, lockWait, func(ctx context.Context) error {
		game, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.State == models.GameFinished {
			return nil
		}
		if _, isParticipant := game.ColorOf(userID); !isParticipant {
			return nil
		}
		if game.DrawOfferSender == 0 || game.DrawOfferSender == userID {
			return nil
		}
		originalSender = game.DrawOfferSender
		game.DrawOfferSender = 0
		if err := e.store.SaveGame(ctx, game); err != nil {
			return err
		}
		emits = append(emits, emission{sessionrouter.ToUser(originalSender), "draw_offer_declined", nil})
		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll(ctx, emits)
	return nil
}

// clearDrawOffer is the shared precondition check for accept/decline:
// reject if FINISHED or not a participant; under lock, clear the offer if
// set and not the caller's own. Returns whether it was cleared.
func (e *Engine) clearDrawOffer(ctx context.Context, userID, gameID int64) (bool, error) {
	cleared := false
	err := e.store.WithLock(ctx, store.KindGame, gameID, lockHold, lockWait, func(ctx context.Context) error {
		game, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.State == models.GameFinished {
			return nil
		}
		if _, isParticipant := game.ColorOf(userID); !isParticipant {
			return nil
		}
		if game.DrawOfferSender == 0 || game.DrawOfferSender == userID {
			return nil
		}
		game.DrawOfferSender = 0
		cleared = true
		return e.store.SaveGame(ctx, game)
	})
	return cleared, err
}

// OnDisconnect implements on_disconnect(user_id, game_id) (spec §4.5).
func (e *Engine) OnDisconnect(ctx context.Context, userID, gameID int64) error {
	var emits []emission

	err := e.store.WithLock(ctx, store.KindGame, gameID, lockHold, lockWait, func(ctx context.Context) error {
		game, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if len(game.Moves) == 0 || game.State == models.GameFinished {
			return nil
		}
		color, isParticipant := game.ColorOf(userID)
		if !isParticipant {
			return nil
		}
		if *game.DisconnectHandle(color) != nil {
			return nil // already has an active disconnect timer
		}

		var declinedOfferTo int64
		var hasDeclinedOffer bool
		if game.DrawOfferSender != 0 {
			declinedOfferTo = game.DrawOfferSender
			hasDeclinedOffer = declinedOfferTo != userID
			game.DrawOfferSender = 0
		}

		now := time.Now()
		eta := now.Add(models.DisconnectTimeout)
		handle, err := e.timers.Schedule(ctx, KindDisconnectTimeout, bson.M{"gameId": gameID, "color": string(color)}, eta)
		if err != nil {
			return err
		}
		*game.DisconnectHandle(color) = &models.TimerHandle{ID: handle, Eta: eta}

		if err := e.store.SaveGame(ctx, game); err != nil {
			return err
		}

		if hasDeclinedOffer {
			emits = append(emits, emission{sessionrouter.ToUser(declinedOfferTo), "draw_offer_declined", nil})
		}
		opponentID := game.UserIDFor(color.Opponent())
		emits = append(emits, emission{sessionrouter.ToUser(opponentID), "opp_disconnected", map[string]int{"wait_time": int(models.DisconnectTimeout.Seconds())}})
		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll(ctx, emits)
	return nil
}

// OnReconnect implements on_reconnect(user_id, game_id) (spec §4.5).
func (e *Engine) OnReconnect(ctx context.Context, userID, gameID int64) error {
	var emits []emission

	err := e.store.WithLock(ctx, store.KindGame, gameID, lockHold, lockWait, func(ctx context.Context) error {
		game, err := e.store.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		color, isParticipant := game.ColorOf(userID)
		if !isParticipant {
			return nil
		}

		white, err := e.store.GetUser(ctx, game.WhiteUserID)
		if err != nil {
			return err
		}
		black, err := e.store.GetUser(ctx, game.BlackUserID)
		if err != nil {
			return err
		}
		emits = append(emits, emission{sessionrouter.ToUser(userID), "game_started", e.gameStartedPayload(game, color, white, black)})

		if *game.DisconnectHandle(color) != nil {
			if err := e.timers.Cancel(ctx, (*game.DisconnectHandle(color)).ID); err != nil {
				return err
			}
			*game.DisconnectHandle(color) = nil
			if err := e.store.SaveGame(ctx, game); err != nil {
				return err
			}
			opponentID := game.UserIDFor(color.Opponent())
			emits = append(emits, emission{sessionrouter.ToUser(opponentID), "opp_reconnected", nil})
		}

		if game.FirstMoveTimeout != nil && game.Turn() == color {
			wait := int(time.Until(game.FirstMoveTimeout.Eta).Seconds())
			emits = append(emits, emission{sessionrouter.ToUser(userID), "first_move_waiting", map[string]int{"wait_time": wait}})
		}

		if oppHandle := *game.DisconnectHandle(color.Opponent()); oppHandle != nil {
			wait := int(time.Until(oppHandle.Eta).Seconds())
			emits = append(emits, emission{sessionrouter.ToUser(userID), "opp_disconnected", map[string]int{"wait_time": wait}})
		}

		return nil
	})
	if err != nil {
		return err
	}
	e.emitAll(ctx, emits)
	return nil
}
