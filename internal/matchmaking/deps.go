package matchmaking

import (
	"context"
	"time"

	"chessmata/internal/models"
	"chessmata/internal/sessionrouter"
)

// matchStore is the subset of *store.Store the Matchmaker depends on, kept
// as an interface so Search/Cancel/pair can run against an in-memory fake
// in tests instead of a live MongoDB.
type matchStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
	SaveGame(ctx context.Context, g *models.Game) error
	SaveGameRequest(ctx context.Context, r *models.GameRequest) error
	DeleteGameRequest(ctx context.Context, id int64) error
	GetGameRequestByUserID(ctx context.Context, userID int64) (*models.GameRequest, error)
	QueryGameRequestsByTimeControl(ctx context.Context, seconds int) ([]models.GameRequest, error)
	NextID(ctx context.Context, kind string) (int64, error)
	WithLock(ctx context.Context, kind string, id int64, hold, wait time.Duration, fn func(ctx context.Context) error) error
}

// eventBus is the subset of *sessionrouter.Bus the Matchmaker depends on.
type eventBus interface {
	Emit(ctx context.Context, target sessionrouter.Target, event string, payload interface{})
}
