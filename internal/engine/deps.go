package engine

import (
	"context"
	"time"

	"chessmata/internal/models"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/timer"

	"go.mongodb.org/mongo-driver/bson"
)

// gameStore is the subset of *store.Store the Game Engine depends on. Kept
// as an interface, matching the sessionrouter.Sender seam, so engine logic
// can run in tests against an in-memory fake instead of a live MongoDB.
type gameStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	GetGame(ctx context.Context, id int64) (*models.Game, error)
	SaveGame(ctx context.Context, g *models.Game) error
	WithLock(ctx context.Context, kind string, id int64, hold, wait time.Duration, fn func(ctx context.Context) error) error
}

// timerScheduler is the subset of *timer.Service the Game Engine depends on.
type timerScheduler interface {
	Schedule(ctx context.Context, kind string, payload bson.M, eta time.Time) (string, error)
	Cancel(ctx context.Context, handle string) error
	RegisterHandler(kind string, h timer.Handler)
}

// eventBus is the subset of *sessionrouter.Bus the Game Engine depends on.
type eventBus interface {
	Emit(ctx context.Context, target sessionrouter.Target, event string, payload interface{})
}
