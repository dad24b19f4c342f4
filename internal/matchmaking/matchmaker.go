// Package matchmaking implements the Matchmaker collaborator (spec §4.4):
// rating-bounded pairing inside time-control buckets and game creation.
// The teacher's internal/matchmaking/queue.go ran a background polling
// loop over an expanding Elo-tolerance window; this spec instead pairs
// synchronously at request time against a fixed 200-Elo tolerance, so the
// control flow here is new, but locking and Store access follow the same
// Mongo idiom the teacher used throughout its services.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chessmata/internal/models"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/store"

	"github.com/redis/go-redis/v9"
)

var (
	ErrAlreadyPlaying      = errors.New("matchmaking: user already has an active game")
	ErrAlreadySearching    = errors.New("matchmaking: user already has a pending search")
	ErrBadTimeControl      = errors.New("matchmaking: time control is not in the allowed set")
)

const (
	lockHold = 5 * time.Second
	lockWait = 10 * time.Second
)

// GameStarter enqueues the engine's start_game operation for a
// newly-created game (spec §4.4 step 5: "enqueue start_game"). The
// Matchmaker never runs engine logic itself — it only hands off.
type GameStarter interface {
	EnqueueStartGame(gameID int64)
}

// Matchmaker pairs GameRequests under the Store's per-user lock. store and
// bus are interface-typed (deps.go) so a test can swap in an in-memory fake
// for the real Mongo-backed/distributed collaborators.
type Matchmaker struct {
	store   matchStore
	bus     eventBus
	starter GameStarter
	redis   *redis.Client // presence cache, see presence.go; nil is valid (cache-less mode)
}

func New(s matchStore, bus eventBus, starter GameStarter, rdb *redis.Client) *Matchmaker {
	return &Matchmaker{store: s, bus: bus, starter: starter, redis: rdb}
}

// Search implements search_game(user_id, time_control_seconds) (spec §4.4).
// Returns the created game's id if a pairing happened immediately, or nil
// if the user was queued to wait.
func (m *Matchmaker) Search(ctx context.Context, userID int64, timeControlSeconds int) (*int64, error) {
	if !models.IsAllowedTimeControl(timeControlSeconds) {
		return nil, ErrBadTimeControl
	}

	var createdGameID *int64

	err := m.store.WithLock(ctx, store.KindUser, userID, lockHold, lockWait, func(ctx context.Context) error {
		user, err := m.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.CurrentGameID != nil {
			return ErrAlreadyPlaying
		}
		if user.InSearch {
			return ErrAlreadySearching
		}

		candidates, err := m.store.QueryGameRequestsByTimeControl(ctx, timeControlSeconds)
		if err != nil {
			return err
		}

		best, ok, err := m.selectOpponent(ctx, user, candidates)
		if err != nil {
			return err
		}
		if !ok {
			// No acceptable opponent: start searching ourselves.
			reqID, err := m.store.NextID(ctx, "gamerequest")
			if err != nil {
				return err
			}
			user.InSearch = true
			if err := m.store.SaveUser(ctx, user); err != nil {
				return err
			}
			m.setPresence(ctx, timeControlSeconds, userID)
			return m.store.SaveGameRequest(ctx, &models.GameRequest{
				ID:                 reqID,
				UserID:             userID,
				TimeControlSeconds: timeControlSeconds,
				CreatedAt:          time.Now(),
			})
		}

		gameID, err := m.pair(ctx, user, best)
		if err != nil {
			return err
		}
		createdGameID = &gameID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return createdGameID, nil
}

// selectOpponent picks the GameRequest whose owner minimizes
// |owner.rating - user.rating|, accepting only if the gap is <= 200 Elo,
// tie-breaking by request id ascending (candidates already arrive sorted
// by id from the Store's query).
func (m *Matchmaker) selectOpponent(ctx context.Context, user *models.User, candidates []models.GameRequest) (*models.User, bool, error) {
	var best *models.User
	bestGap := -1

	for _, req := range candidates {
		if req.UserID == user.ID {
			continue
		}
		owner, err := m.store.GetUser(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, false, err
		}
		gap := owner.Rating - user.Rating
		if gap < 0 {
			gap = -gap
		}
		// candidates is ordered by request id ascending (spec §4.4 tiebreak),
		// so a strict "<" here keeps the first-found leader on ties.
		if bestGap == -1 || gap < bestGap {
			bestGap = gap
			best = owner
		}
	}

	if best == nil || bestGap > models.RatingGapTolerance {
		return nil, false, nil
	}
	return best, true, nil
}

// pair accepts the chosen opponent's request: delete it, create the Game
// (white = searcher, black = opponent, snapshotted ratings, equal clocks),
// bind both users to the game, clear the opponent's in_search flag, and
// notify both sides (spec §4.4 step 5).
func (m *Matchmaker) pair(ctx context.Context, searcher *models.User, opponent *models.User) (int64, error) {
	req, err := m.store.GetGameRequestByUserID(ctx, opponent.ID)
	if err != nil {
		return 0, fmt.Errorf("pairing: opponent request vanished: %w", err)
	}

	gameID, err := m.store.NextID(ctx, store.KindGame)
	if err != nil {
		return 0, err
	}

	clock := time.Duration(req.TimeControlSeconds) * time.Second
	now := time.Now()
	game := &models.Game{
		ID:               gameID,
		WhiteUserID:      searcher.ID,
		BlackUserID:      opponent.ID,
		WhiteRating:      searcher.Rating,
		BlackRating:      opponent.Rating,
		State:            models.GameCreated,
		Result:           models.ResultInProgress,
		Moves:            []string{},
		TotalClockMicros: clock,
		WhiteClockMicros: clock,
		BlackClockMicros: clock,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.SaveGame(ctx, game); err != nil {
		return 0, err
	}

	if err := m.store.DeleteGameRequest(ctx, req.ID); err != nil {
		return 0, err
	}

	searcher.CurrentGameID = &gameID
	searcher.InSearch = false
	opponent.CurrentGameID = &gameID
	opponent.InSearch = false
	if err := m.store.SaveUser(ctx, searcher); err != nil {
		return 0, err
	}
	if err := m.store.SaveUser(ctx, opponent); err != nil {
		return 0, err
	}
	m.clearPresence(ctx, req.TimeControlSeconds, opponent.ID)

	redirectURL := fmt.Sprintf("/game/%d", gameID)
	m.bus.Emit(ctx, sessionrouter.ToUser(searcher.ID), "redirect", map[string]string{"url": redirectURL})
	m.bus.Emit(ctx, sessionrouter.ToUser(opponent.ID), "redirect", map[string]string{"url": redirectURL})

	if m.starter != nil {
		m.starter.EnqueueStartGame(gameID)
	}

	return gameID, nil
}

// Cancel implements cancel_search (spec §4.4): if the user is searching,
// clear the flag and delete their GameRequest.
func (m *Matchmaker) Cancel(ctx context.Context, userID int64) error {
	return m.store.WithLock(ctx, store.KindUser, userID, lockHold, lockWait, func(ctx context.Context) error {
		user, err := m.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if !user.InSearch {
			return nil
		}
		req, err := m.store.GetGameRequestByUserID(ctx, userID)
		if err == nil {
			m.clearPresence(ctx, req.TimeControlSeconds, userID)
			if err := m.store.DeleteGameRequest(ctx, req.ID); err != nil {
				return err
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		user.InSearch = false
		return m.store.SaveUser(ctx, user)
	})
}
