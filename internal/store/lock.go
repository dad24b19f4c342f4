package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrLockLost is returned by Unlock (and so surfaced to the engine) when the
// hold expired before release. Saves made while holding the lock are not
// checked against its token: a save after the hold expired still succeeds,
// and the loss is reported only on release.
var ErrLockLost = errors.New("store: lock lost")

// lockPollInterval is how often WithLock retries acquisition while waiting.
const lockPollInterval = 50 * time.Millisecond

// Lock is a held advisory lock's token, needed to release it.
type Lock struct {
	resource string
	token    string
}

// AcquireLock implements with_lock(kind, id, hold, wait): blocks up to wait
// for the "<kind>:<id>" resource to become free, then holds it for up to
// hold (auto-expiring if never released). Uses the same FindOneAndUpdate
// upsert-with-expiry pattern as the teacher's stale-game cleanup lock, generalized
// from a single well-known lock name to an arbitrary per-entity resource key.
func (s *Store) AcquireLock(ctx context.Context, kind string, id int64, hold, wait time.Duration) (*Lock, error) {
	resource := fmt.Sprintf("%s:%d", kind, id)
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		now := time.Now()
		filter := bson.M{
			"_id": resource,
			"$or": []bson.M{
				{"expiresAt": bson.M{"$exists": false}},
				{"expiresAt": bson.M{"$lt": now}},
			},
		}
		update := bson.M{
			"$set": bson.M{
				"token":     token,
				"expiresAt": now.Add(hold),
				"lockedAt":  now,
			},
		}
		err := s.db.Collection("locks").FindOneAndUpdate(
			ctx, filter, update, options.FindOneAndUpdate().SetUpsert(true),
		).Err()
		if err == nil || errors.Is(err, mongo.ErrNoDocuments) {
			return &Lock{resource: resource, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("store: timed out acquiring lock on %s", resource)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Unlock releases the lock if this holder's token still matches (i.e. the
// hold had not expired and been stolen by another acquirer). Returns
// ErrLockLost if it had.
func (s *Store) Unlock(ctx context.Context, l *Lock) error {
	res, err := s.db.Collection("locks").UpdateOne(ctx,
		bson.M{"_id": l.resource, "token": l.token},
		bson.M{"$set": bson.M{"expiresAt": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrLockLost
	}
	return nil
}

// WithLock acquires the (kind, id) lock, runs fn, then releases it —
// the shape every Game Engine and Matchmaker operation uses to serialize a
// single entity's state transition (spec §4.5: "every engine operation
// takes the Game lock exactly once").
func (s *Store) WithLock(ctx context.Context, kind string, id int64, hold, wait time.Duration, fn func(ctx context.Context) error) error {
	lock, err := s.AcquireLock(ctx, kind, id, hold, wait)
	if err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		s.Unlock(ctx, lock)
		return err
	}
	return s.Unlock(ctx, lock)
}
