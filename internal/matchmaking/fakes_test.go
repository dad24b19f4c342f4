package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chessmata/internal/models"
	"chessmata/internal/sessionrouter"
	"chessmata/internal/store"
)

// fakeStore is an in-memory matchStore, the Matchmaker-side equivalent of
// the Game Engine's own fakeStore — an in-process stand-in for the
// Mongo-backed *store.Store, locked per (kind, id) exactly like the real
// advisory lock.
type fakeStore struct {
	mu     sync.Mutex
	users  map[int64]models.User
	games  map[int64]models.Game
	reqs   map[int64]models.GameRequest
	byUser map[int64]int64 // userID -> GameRequest id
	nextID map[string]int64
	locks  map[string]*sync.Mutex
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int64]models.User),
		games:  make(map[int64]models.Game),
		reqs:   make(map[int64]models.GameRequest),
		byUser: make(map[int64]int64),
		nextID: make(map[string]int64),
		locks:  make(map[string]*sync.Mutex),
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

func (s *fakeStore) snapshotUser(id int64) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *fakeStore) snapshotGame(id int64) (models.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	return g, ok
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

func (s *fakeStore) SaveGame(ctx context.Context, g *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[g.ID] = *g
	return nil
}

func (s *fakeStore) SaveGameRequest(ctx context.Context, r *models.GameRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[r.ID] = *r
	s.byUser[r.UserID] = r.ID
	return nil
}

func (s *fakeStore) DeleteGameRequest(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reqs[id]; ok {
		delete(s.byUser, r.UserID)
	}
	delete(s.reqs, id)
	return nil
}

func (s *fakeStore) GetGameRequestByUserID(ctx context.Context, userID int64) (*models.GameRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	r := s.reqs[id]
	return &r, nil
}

func (s *fakeStore) QueryGameRequestsByTimeControl(ctx context.Context, seconds int) ([]models.GameRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GameRequest
	for _, r := range s.reqs {
		if r.TimeControlSeconds == seconds {
			out = append(out, r)
		}
	}
	// Deterministic tiebreak: ascending request id, like the real query's sort.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (s *fakeStore) NextID(ctx context.Context, kind string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID[kind]++
	return s.nextID[kind], nil
}

// fakeBus is an in-memory eventBus capturing every emission for assertions.
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

// fakeStarter records EnqueueStartGame calls instead of running a real
// Engine, satisfying matchmaking.GameStarter.
type fakeStarter struct {
	mu      sync.Mutex
	started []int64
}

func (f *fakeStarter) EnqueueStartGame(gameID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, gameID)
}
