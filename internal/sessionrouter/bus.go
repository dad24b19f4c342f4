package sessionrouter

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// busEvent is the document stored in the emissions collection and watched
// via Change Stream by every other process, generalizing the teacher's
// WSEvent (which only ever carried one of two hardcoded event shapes) into
// a single envelope around an arbitrary emit() call.
type busEvent struct {
	ID              string          `bson:"_id"`
	OriginMachineID string          `bson:"originMachineId"`
	TargetKind      TargetKind      `bson:"targetKind"`
	TargetGame      int64           `bson:"targetGame,omitempty"`
	TargetUser      int64           `bson:"targetUser,omitempty"`
	TargetSid       string          `bson:"targetSid,omitempty"`
	Event           string          `bson:"event"`
	Payload         json.RawMessage `bson:"payload,omitempty"`
	CreatedAt       time.Time       `bson:"createdAt"`
}

// Bus fans Router emissions out to every other process sharing the same
// MongoDB database, the same role the teacher's EventBus played for game
// broadcasts and matchmaking notifications, generalized to the Session
// Router's three target kinds.
type Bus struct {
	machineID  string
	router     *Router
	collection *mongo.Collection
	log        *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	running bool
}

// NewBus wires a Bus to the given Router. If db is nil the Bus runs in
// local-only mode: Emit delivers to this process's Router only, nothing is
// published or watched (useful for single-process tests and the dev
// deployment spec §5 describes as optional).
func NewBus(router *Router, db *mongo.Database, log *slog.Logger) *Bus {
	var coll *mongo.Collection
	if db != nil {
		coll = db.Collection("router_events")
	}
	return &Bus{
		machineID:  uuid.NewString(),
		router:     router,
		collection: coll,
		log:        log,
	}
}

// EnsureIndexes creates the TTL index backing the emissions collection.
func (b *Bus) EnsureIndexes(ctx context.Context) error {
	if b.collection == nil {
		return nil
	}
	_, err := b.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(60),
	})
	return err
}

// Start begins watching for emissions published by other processes.
func (b *Bus) Start() {
	if b.collection == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true
	b.wg.Add(1)
	go b.watchLoop(ctx)
}

func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// Emit delivers event+payload to target's sessions in this process AND
// publishes it for every other process's Bus to deliver locally there —
// the Session Router's cross-process emit(target, event, payload) contract
// (spec §4.3).
func (b *Bus) Emit(ctx context.Context, target Target, event string, payload interface{}) {
	b.router.EmitLocal(ctx, target, event, payload)

	if b.collection == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("emit payload marshal failed", "event", event, "error", err)
		return
	}
	doc := busEvent{
		ID:              uuid.NewString(),
		OriginMachineID: b.machineID,
		TargetKind:      target.Kind,
		TargetGame:      target.Game,
		TargetUser:      target.User,
		TargetSid:       target.Sid,
		Event:           event,
		Payload:         raw,
		CreatedAt:       time.Now(),
	}
	publishCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := b.collection.InsertOne(publishCtx, doc); err != nil {
		b.log.Error("emit publish failed", "event", event, "error", err)
	}
}

func (b *Bus) watchLoop(ctx context.Context) {
	defer b.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		err := b.watch(ctx)
		if ctx.Err() != nil {
			return
		}
		b.log.Error("router event stream error, reconnecting", "error", err)
		time.Sleep(2 * time.Second)
	}
}

func (b *Bus) watch(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	cs, err := b.collection.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return err
	}
	defer cs.Close(ctx)

	for cs.Next(ctx) {
		var change struct {
			FullDocument busEvent `bson:"fullDocument"`
		}
		if err := cs.Decode(&change); err != nil {
			b.log.Error("router event decode failed", "error", err)
			continue
		}
		ev := change.FullDocument
		if ev.OriginMachineID == b.machineID {
			continue
		}

		var payload interface{}
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				b.log.Error("router event payload decode failed", "error", err)
				continue
			}
		}
		target := Target{Kind: ev.TargetKind, Game: ev.TargetGame, User: ev.TargetUser, Sid: ev.TargetSid}
		b.router.EmitLocal(ctx, target, ev.Event, payload)
	}
	return cs.Err()
}
