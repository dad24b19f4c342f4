// Package sessionrouter implements the Session Router collaborator (spec
// §4.3): binds authenticated users to a current session id and routes
// outbound events to session/game-room/user targets. In-process binding is
// grounded on the teacher's websocket Hub (client registry keyed by id);
// the multi-process fan-out in bus.go generalizes the teacher's
// internal/eventbus Change-Stream watcher from two hardcoded event kinds to
// an arbitrary (target, event, payload) emission.
package sessionrouter

import (
	"context"
	"log/slog"
	"sync"
)

// TargetKind identifies what kind of routing target an emit() call names.
type TargetKind string

const (
	TargetSession  TargetKind = "session"
	TargetGameRoom TargetKind = "game_room"
	TargetUser     TargetKind = "user"
)

// Target names a routing destination (spec §4.3).
type Target struct {
	Kind   TargetKind
	Game   int64
	User   int64
	Sid    string
}

func ToSession(sid string) Target        { return Target{Kind: TargetSession, Sid: sid} }
func ToGameRoom(gameID int64) Target     { return Target{Kind: TargetGameRoom, Game: gameID} }
func ToUser(userID int64) Target         { return Target{Kind: TargetUser, User: userID} }

// Sender delivers one event to one local (in this process) session. It is
// implemented by the Gateway's connection hub; the router never touches a
// socket directly.
type Sender interface {
	Send(sessionID string, event string, payload interface{})
}

// Router maintains the in-memory bindings for this process: which session
// a user currently holds, and which sessions have joined which game rooms
// as spectators. A Bus (bus.go) layered on top fans emissions out to other
// processes' Routers.
type Router struct {
	mu sync.RWMutex

	userSession map[int64]string            // userID -> current sid
	sessionUser map[string]int64            // sid -> userID (reverse index)
	rooms       map[int64]map[string]struct{} // gameID -> set of sids

	sender Sender
	log    *slog.Logger
}

func New(sender Sender, log *slog.Logger) *Router {
	return &Router{
		userSession: make(map[int64]string),
		sessionUser: make(map[string]int64),
		rooms:       make(map[int64]map[string]struct{}),
		sender:      sender,
		log:         log,
	}
}

// BindSession records sid as userID's current session. If userID already
// had a different live session, it is emitted `logged_twice` and the
// binding is atomically replaced (spec §4.3).
func (r *Router) BindSession(userID int64, sid string) {
	r.mu.Lock()
	prev, had := r.userSession[userID]
	r.userSession[userID] = sid
	r.sessionUser[sid] = userID
	r.mu.Unlock()

	if had && prev != sid {
		r.sender.Send(prev, "logged_twice", nil)
	}
}

// UnbindSession removes a session's bindings (on disconnect/logout). It
// does not clear the user's current-session pointer unless sid is still
// the one on file, so a UnbindSession racing a newer BindSession for the
// same user never evicts the newer session.
func (r *Router) UnbindSession(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.sessionUser[sid]
	if !ok {
		return
	}
	delete(r.sessionUser, sid)
	if r.userSession[userID] == sid {
		delete(r.userSession, userID)
	}
	for gameID, members := range r.rooms {
		delete(members, sid)
		if len(members) == 0 {
			delete(r.rooms, gameID)
		}
	}
}

// CurrentSession resolves a user's live session id, if any.
func (r *Router) CurrentSession(userID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.userSession[userID]
	return sid, ok
}

// JoinRoom adds sid as a spectator of gameID's room.
func (r *Router) JoinRoom(gameID int64, sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[gameID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[gameID] = members
	}
	members[sid] = struct{}{}
}

// LeaveRoom removes sid from gameID's room.
func (r *Router) LeaveRoom(gameID int64, sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[gameID]; ok {
		delete(members, sid)
		if len(members) == 0 {
			delete(r.rooms, gameID)
		}
	}
}

// EmitLocal delivers event+payload to every session bound to target in
// THIS process only. Bus.Emit wraps this to also fan out to other
// processes; engine code should call Bus.Emit, not this directly, unless
// it is intentionally process-local (e.g. tests).
func (r *Router) EmitLocal(ctx context.Context, target Target, event string, payload interface{}) {
	switch target.Kind {
	case TargetSession:
		r.sender.Send(target.Sid, event, payload)

	case TargetUser:
		sid, ok := r.CurrentSession(target.User)
		if !ok {
			return // dropped: no current session (spec §4.3)
		}
		r.sender.Send(sid, event, payload)

	case TargetGameRoom:
		r.mu.RLock()
		sids := make([]string, 0, len(r.rooms[target.Game]))
		for sid := range r.rooms[target.Game] {
			sids = append(sids, sid)
		}
		r.mu.RUnlock()
		for _, sid := range sids {
			r.sender.Send(sid, event, payload)
		}

	default:
		r.log.Warn("emit to unknown target kind", "kind", target.Kind)
	}
}
