package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chessmata/internal/models"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/store"
	"chessmata/internal/timer"

	"go.mongodb.org/mongo-driver/bson"
)

// fakeStore is an in-memory gameStore, standing in for the Mongo-backed
// *store.Store the way fakeSender stands in for a real connection registry
// in sessionrouter's tests. WithLock serializes per (kind, id) resource
// exactly like the real advisory lock, just with an in-process mutex
// instead of a Mongo document.
type fakeStore struct {
	mu    sync.Mutex
	users map[int64]models.User
	games map[int64]models.Game
	locks map[string]*sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[int64]models.User),
		games: make(map[int64]models.Game),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *fakeStore) lockFor(kind string, id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s:%d", kind, id)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *fakeStore) WithLock(ctx context.Context, kind string, id int64, hold, wait time.Duration, fn func(ctx context.Context) error) error {
	l := s.lockFor(kind, id)
	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (s *fakeStore) putUser(u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *fakeStore) putGame(g models.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = g
}

func (s *fakeStore) snapshotGame(id int64) models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.games[id]
}

func (s *fakeStore) snapshotUser(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *fakeStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *fakeStore) SaveUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

func (s *fakeStore) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	g.Moves = append([]string(nil), g.Moves...)
	return &g, nil
}

func (s *fakeStore) SaveGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	cp.Moves = append([]string(nil), g.Moves...)
	s.games[g.ID] = cp
	return nil
}

// fakeTimer is an in-memory timerScheduler. Schedule/Cancel track a
// handle's liveness the same way the durable sweep's status column does;
// fire replays a registered handler against a still-pending handle's
// payload, simulating the sweep claiming it.
type fakeTimer struct {
	mu       sync.Mutex
	handlers map[string]timer.Handler
	pending  map[string]scheduledTimer
	seq      int
}

type scheduledTimer struct {
	kind    string
	payload bson.M
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		handlers: make(map[string]timer.Handler),
		pending:  make(map[string]scheduledTimer),
	}
}

func (f *fakeTimer) Schedule(ctx context.Context, kind string, payload bson.M, eta time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	handle := fmt.Sprintf("handle-%d", f.seq)
	f.pending[handle] = scheduledTimer{kind: kind, payload: payload}
	return handle, nil
}

func (f *fakeTimer) Cancel(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, handle)
	return nil
}

func (f *fakeTimer) RegisterHandler(kind string, h timer.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = h
}

// fire simulates the sweep claiming and dispatching handle, exactly as the
// real sweep would if it still found the document pending — the callback
// runs even if the in-memory game state has since moved on, which is the
// whole point of the race these tests exercise.
func (f *fakeTimer) fire(ctx context.Context, handle string) {
	f.mu.Lock()
	sched, ok := f.pending[handle]
	h := f.handlers[sched.kind]
	f.mu.Unlock()
	if !ok || h == nil {
		return
	}
	h(ctx, sched.payload)
}

// fakeBus is an in-memory eventBus capturing every emission for assertions,
// the emission-side equivalent of sessionrouter's own fakeSender.
type fakeBus struct {
	mu   sync.Mutex
	sent []sentEmission
}

type sentEmission struct {
	target  sessionrouter.Target
	event   string
	payload interface{}
}

func newFakeBus() *fakeBus { return &fakeBus{} }

func (b *fakeBus) Emit(ctx context.Context, target sessionrouter.Target, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEmission{target, event, payload})
}

func (b *fakeBus) events() []sentEmission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentEmission(nil), b.sent...)
}
