// Package store is the Store collaborator (spec §4.1): typed get/save,
// unique-index lookup, bucket query, per-entity advisory locks, and delete,
// backed by MongoDB the way the teacher's internal/db package is, but
// generalized from a fixed set of named collections to the spec's abstract
// (kind, id) vocabulary plus a counters collection that hands out the
// stable integer ids spec §3 requires in place of Mongo ObjectIDs.
package store

import (
	"context"
	"fmt"
	"time"

	"chessmata/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store wraps a MongoDB database and exposes the operations the Game
// Engine, Matchmaker, and Timer Service depend on.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and ensures indexes, mirroring the connection
// settings the teacher's internal/db.NewMongoDB used.
func New(uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(500).
		SetMinPoolSize(10).
		SetMaxConnIdleTime(5 * time.Minute)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &Store{client: client, db: client.Database(database)}
	go s.ensureIndexes()
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the underlying MongoDB database for collaborators (the
// Timer Service, the Session Router's multi-process fan-out) that need
// collections outside the Store's own kind vocabulary.
func (s *Store) Database() *mongo.Database {
	return s.db
}

func (s *Store) ensureIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	indexes := []struct {
		collection string
		models     []mongo.IndexModel
	}{
		{"users", []mongo.IndexModel{
			{Keys: bson.D{{Key: "login", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"game_requests", []mongo.IndexModel{
			{Keys: bson.D{{Key: "timeControlSeconds", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{"games", []mongo.IndexModel{
			{Keys: bson.D{{Key: "state", Value: 1}}},
		}},
		{"locks", []mongo.IndexModel{
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}},
		}},
	}

	for _, idx := range indexes {
		coll := s.db.Collection(idx.collection)
		if _, err := coll.Indexes().CreateMany(ctx, idx.models); err != nil {
			// Index creation failures are skipped without being logged or
			// returned; this package holds no logger.
			continue
		}
	}
}

// Collection names. An advisory-lock resource is identified by
// "<kind>:<id>" (see lock.go), which is why kinds are plain strings rather
// than a closed enum — the Store itself is kind-agnostic.
const (
	KindUser        = "user"
	KindGame        = "game"
	KindGameRequest = "gamerequest"
)

func (s *Store) collection(kind string) *mongo.Collection {
	switch kind {
	case KindUser:
		return s.db.Collection("users")
	case KindGame:
		return s.db.Collection("games")
	case KindGameRequest:
		return s.db.Collection("game_requests")
	default:
		return s.db.Collection(kind)
	}
}

// ErrNotFound is returned when get/get_by_unique_index finds no document.
var ErrNotFound = fmt.Errorf("store: not found")

// GetUser loads a User by id.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.collection(KindUser).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByLogin is get_by_unique_index(user, login, value).
func (s *Store) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var u models.User
	err := s.collection(KindUser).FindOne(ctx, bson.M{"login": login}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SaveUser upserts a User.
func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now()
	_, err := s.collection(KindUser).ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	return err
}

// GetGame loads a Game by id.
func (s *Store) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	var g models.Game
	err := s.collection(KindGame).FindOne(ctx, bson.M{"_id": id}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveGame upserts a Game.
func (s *Store) SaveGame(ctx context.Context, g *models.Game) error {
	g.UpdatedAt = time.Now()
	_, err := s.collection(KindGame).ReplaceOne(ctx, bson.M{"_id": g.ID}, g, options.Replace().SetUpsert(true))
	return err
}

// SaveGameRequest upserts a GameRequest.
func (s *Store) SaveGameRequest(ctx context.Context, r *models.GameRequest) error {
	_, err := s.collection(KindGameRequest).ReplaceOne(ctx, bson.M{"_id": r.ID}, r, options.Replace().SetUpsert(true))
	return err
}

// DeleteGameRequest is delete(gamerequest, id).
func (s *Store) DeleteGameRequest(ctx context.Context, id int64) error {
	_, err := s.collection(KindGameRequest).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// GetGameRequestByUserID is get_by_unique_index(gamerequest, user_id, value)
// — at most one live request per user (spec §3).
func (s *Store) GetGameRequestByUserID(ctx context.Context, userID int64) (*models.GameRequest, error) {
	var r models.GameRequest
	err := s.collection(KindGameRequest).FindOne(ctx, bson.M{"userId": userID}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// QueryGameRequestsByTimeControl is query(gamerequest, time_control_seconds
// == value), ordered by id ascending for the Matchmaker's deterministic
// tiebreak (spec §4.4).
func (s *Store) QueryGameRequestsByTimeControl(ctx context.Context, seconds int) ([]models.GameRequest, error) {
	cur, err := s.collection(KindGameRequest).Find(ctx,
		bson.M{"timeControlSeconds": seconds},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var reqs []models.GameRequest
	if err := cur.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}

// NextID returns a monotonically increasing id for the given kind, via a
// counters collection incremented atomically with findAndModify — the
// Store's substitute for Mongo's ObjectID since spec §3 requires a stable
// integer id per entity.
func (s *Store) NextID(ctx context.Context, kind string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection("counters").FindOneAndUpdate(
		ctx,
		bson.M{"_id": kind},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next id for %s: %w", kind, err)
	}
	return doc.Seq, nil
}
