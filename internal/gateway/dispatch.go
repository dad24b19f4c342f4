package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"chessmata/internal/middleware"
	"chessmata/internal/models"
	"chessmata/internal/store"
	"chessmata/internal/workerpool"
)

// submit routes a unit of work into the given priority-class pool (spec
// §5), with its own bounded timeout so a stuck downstream call can't pin
// a worker forever. A job that fails with ErrLockLost — the entity's lock
// lease expired before its prior holder released it — is transient by
// definition (spec §7 error kind 3) and gets one retry against a fresh
// acquisition instead of being dropped.
func (g *Gateway) submit(pool *workerpool.Pool, fn func(ctx context.Context) error) {
	pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		err := fn(ctx)
		cancel()

		if errors.Is(err, store.ErrLockLost) {
			ctx, cancel = context.WithTimeout(context.Background(), opTimeout)
			err = fn(ctx)
			cancel()
		}
		if err != nil {
			g.log.Warn("dispatched operation failed", "pool", pool.Name(), "error", err)
		}
	})
}

func (g *Gateway) submitHigh(fn func(ctx context.Context) error) {
	g.submit(g.pools.High, fn)
}

func (g *Gateway) submitLow(fn func(ctx context.Context) error) {
	g.submit(g.pools.Low, fn)
}

func (g *Gateway) submitSearch(fn func(ctx context.Context) error) {
	g.submit(g.pools.Search, fn)
}

// dispatch routes one inbound envelope from conn to the operation its type
// names, applying the per-session action rate limit to the events a
// malicious or buggy client could flood (spec §10).
func (g *Gateway) dispatch(conn *connection, env envelope) {
	switch env.Type {
	case inSearchGame:
		g.handleSearchGame(conn, env)
	case inCancelSearch:
		g.submitSearch(func(ctx context.Context) error {
			return g.matchmaker.Cancel(ctx, conn.userID)
		})
	case inMakeMove:
		if !g.allowAction(conn) {
			return
		}
		var p makeMovePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		g.submitHigh(func(ctx context.Context) error {
			return g.engine.MakeMove(ctx, conn.userID, p.GameID, p.San)
		})
	case inResign:
		if !g.allowAction(conn) {
			return
		}
		var p struct {
			GameID int64 `json:"game_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		g.submitHigh(func(ctx context.Context) error {
			return g.engine.Resign(ctx, conn.userID, p.GameID)
		})
	case inMakeDrawOffer:
		if !g.allowAction(conn) {
			return
		}
		var p struct {
			GameID int64 `json:"game_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		g.submitLow(func(ctx context.Context) error {
			return g.engine.MakeDrawOffer(ctx, conn.userID, p.GameID)
		})
	case inAcceptDrawOffer:
		if !g.allowAction(conn) {
			return
		}
		var p struct {
			GameID int64 `json:"game_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		g.submitHigh(func(ctx context.Context) error {
			return g.engine.AcceptDrawOffer(ctx, conn.userID, p.GameID)
		})
	case inDeclineDrawOffer:
		if !g.allowAction(conn) {
			return
		}
		var p struct {
			GameID int64 `json:"game_id"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		g.submitHigh(func(ctx context.Context) error {
			return g.engine.DeclineDrawOffer(ctx, conn.userID, p.GameID)
		})
	default:
		g.log.Warn("unknown inbound event type", "sid", conn.sid, "type", env.Type)
	}
}

// handleSearchGame resolves the requested time control, either directly
// from the payload or (for a rematch/"play again" request) copied from an
// existing game's clock, and hands the search off to the matchmaker.
func (g *Gateway) handleSearchGame(conn *connection, env envelope) {
	var p searchGamePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return
	}
	timeControlSeconds := p.Minutes
	if p.GameID != nil {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if game, err := g.store.GetGame(ctx, *p.GameID); err == nil {
			timeControlSeconds = int(game.TotalClockMicros / time.Second)
		}
	}
	if !models.IsAllowedTimeControl(timeControlSeconds) {
		return
	}

	g.submitSearch(func(ctx context.Context) error {
		_, err := g.matchmaker.Search(ctx, conn.userID, timeControlSeconds)
		return err
	})
}

// allowAction enforces the per-session game-action rate limit ahead of any
// Engine call; a session that exceeds it simply has its events dropped.
func (g *Gateway) allowAction(conn *connection) bool {
	if g.rateLimiter == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	allowed, _, _ := g.rateLimiter.Allow(ctx, "gameaction:"+conn.sid, middleware.GameActionLimit)
	return allowed
}
