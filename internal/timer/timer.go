// Package timer implements the Timer Service collaborator (spec §4.2):
// deferred, named, cancellable one-shot callbacks keyed by opaque id,
// durable across restarts. There is no teacher file to adapt this from —
// the teacher's internal/game/timer.go was an in-memory time.AfterFunc
// scheduler that loses every pending timer on restart — so the durability
// comes instead from the same polling-and-claim pattern the teacher's
// stale_game_cleanup.go used for its distributed lock, generalized from one
// hardcoded sweep into a generic durable queue, and from the
// apply_async(eta=...)/task.id/revoke(task_id) idiom the original
// implementation's Celery-backed scheduler used (schedule returns an opaque
// id; cancel is a best-effort flag flip, not a guaranteed revoke).
package timer

import (
	"context"
	"log/slog"
	"time"

	"chessmata/internal/workerpool"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Status values for a scheduled timer document.
const (
	statusPending   = "pending"
	statusCancelled = "cancelled"
	statusFired     = "fired"
)

// Handler processes a fired timer's payload. It runs outside any Store
// lock the scheduler held (spec §4.2); callbacks that mutate a Game must
// acquire the Game's lock themselves.
type Handler func(ctx context.Context, payload bson.M)

// Service is the durable Timer Service. One Service per process polls the
// shared "timers" collection; multiple processes may poll concurrently
// without double-firing a callback because claiming a due timer is an
// atomic conditional update.
type Service struct {
	coll     *mongo.Collection
	handlers map[string]Handler
	log      *slog.Logger

	// dispatch runs a fired callback. Defaults to a bare goroutine; a
	// caller that wants fired timeouts to run through a priority worker
	// pool (spec §5: timeouts are "normal" priority) can replace it with
	// pool.Submit via SetDispatch.
	dispatch func(fn func())

	pollInterval time.Duration
	stopCh       chan struct{}
}

// New constructs a Service bound to db's "timers" collection.
func New(db *mongo.Database, log *slog.Logger) *Service {
	return &Service{
		coll:         db.Collection("timers"),
		handlers:     make(map[string]Handler),
		log:          log,
		dispatch:     func(fn func()) { go fn() },
		pollInterval: 500 * time.Millisecond,
		stopCh:       make(chan struct{}),
	}
}

// SetDispatch routes fired callbacks through pool instead of a bare
// goroutine, so timeout bookkeeping shares the "normal" priority class's
// bounded concurrency rather than spawning unboundedly.
func (s *Service) SetDispatch(pool *workerpool.Pool) {
	s.dispatch = func(fn func()) { pool.Submit(fn) }
}

// SetPollInterval overrides the sweep ticker's period; call before Run.
func (s *Service) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// RegisterHandler binds a callback kind (e.g. "time_is_up") to the
// function that handles it. Must be called before Run.
func (s *Service) RegisterHandler(kind string, h Handler) {
	s.handlers[kind] = h
}

// Schedule implements schedule(kind, payload, eta) -> handle. Returns an
// opaque handle string the caller persists alongside the owning Game.
func (s *Service) Schedule(ctx context.Context, kind string, payload bson.M, eta time.Time) (string, error) {
	handle := uuid.NewString()
	_, err := s.coll.InsertOne(ctx, bson.M{
		"_id":       handle,
		"kind":      kind,
		"payload":   payload,
		"eta":       eta,
		"status":    statusPending,
		"createdAt": time.Now(),
	})
	if err != nil {
		return "", err
	}
	return handle, nil
}

// Cancel implements cancel(handle): best-effort (spec §4.2). A handle that
// has already been claimed by the sweep loop (status fired, or about to be)
// is left alone — the fired callback is responsible for re-checking the
// invariant it depends on.
func (s *Service) Cancel(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": handle, "status": statusPending},
		bson.M{"$set": bson.M{"status": statusCancelled}},
	)
	return err
}

// Run starts the polling loop in the current goroutine; call with `go`.
// It blocks until ctx is cancelled or Stop is called. Because it is a
// polling sweep over a durable collection rather than an in-process heap,
// timers scheduled before a restart are picked up exactly like any other —
// recovery is just the next poll tick.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) Stop() {
	close(s.stopCh)
}

func (s *Service) sweep(ctx context.Context) {
	now := time.Now()
	cur, err := s.coll.Find(ctx, bson.M{
		"status": statusPending,
		"eta":    bson.M{"$lte": now},
	})
	if err != nil {
		s.log.Error("timer sweep query failed", "error", err)
		return
	}
	defer cur.Close(ctx)

	var due []struct {
		ID      string `bson:"_id"`
		Kind    string `bson:"kind"`
		Payload bson.M `bson:"payload"`
	}
	if err := cur.All(ctx, &due); err != nil {
		s.log.Error("timer sweep decode failed", "error", err)
		return
	}

	for _, d := range due {
		// Claim atomically: only the process whose update actually matches
		// a still-pending document runs the callback. The document is
		// marked "fired" before the handler runs, so if the process crashes
		// after the claim and before the handler completes, no sweep picks
		// it up again: a claimed callback runs at most once.
		res, err := s.coll.UpdateOne(ctx,
			bson.M{"_id": d.ID, "status": statusPending},
			bson.M{"$set": bson.M{"status": statusFired}},
		)
		if err != nil || res.MatchedCount == 0 {
			continue
		}

		h, ok := s.handlers[d.Kind]
		if !ok {
			s.log.Warn("timer fired with no registered handler", "kind", d.Kind)
			continue
		}
		payload := d.Payload
		s.dispatch(func() { h(ctx, payload) })
	}
}

// EnsureIndexes creates the indexes the sweep query and per-owner lookups
// rely on. Called once at startup alongside the Store's own indexes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("timers").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "eta", Value: 1}}},
	})
	return err
}
