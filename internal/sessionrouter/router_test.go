package sessionrouter

import (
	"context"
	"log/slog"
	"testing"
)

type fakeSender struct {
	sent []sentEvent
}

type sentEvent struct {
	sid     string
	event   string
	payload interface{}
}

func (f *fakeSender) Send(sid string, event string, payload interface{}) {
	f.sent = append(f.sent, sentEvent{sid, event, payload})
}

func TestBindSession_LoggedTwice(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, slog.Default())

	r.BindSession(1, "sid-a")
	r.BindSession(1, "sid-b")

	if len(sender.sent) != 1 {
		t.Fatalf("got %d sends, want 1", len(sender.sent))
	}
	if sender.sent[0].sid != "sid-a" || sender.sent[0].event != "logged_twice" {
		t.Errorf("got %+v, want logged_twice to sid-a", sender.sent[0])
	}

	sid, ok := r.CurrentSession(1)
	if !ok || sid != "sid-b" {
		t.Errorf("current session = %q, ok=%v, want sid-b", sid, ok)
	}
}

func TestBindSession_SameSessionNoDuplicateNotice(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, slog.Default())

	r.BindSession(1, "sid-a")
	r.BindSession(1, "sid-a")

	if len(sender.sent) != 0 {
		t.Errorf("got %d sends, want 0 for rebind of same session", len(sender.sent))
	}
}

func TestEmitLocal_User(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, slog.Default())
	r.BindSession(1, "sid-a")

	r.EmitLocal(context.Background(), ToUser(1), "set_data", map[string]int{"rating": 1200})
	if len(sender.sent) != 1 || sender.sent[0].sid != "sid-a" {
		t.Fatalf("got %+v", sender.sent)
	}

	sender.sent = nil
	r.EmitLocal(context.Background(), ToUser(999), "set_data", nil)
	if len(sender.sent) != 0 {
		t.Errorf("emit to unbound user should be dropped, got %+v", sender.sent)
	}
}

func TestEmitLocal_GameRoom(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, slog.Default())

	r.JoinRoom(42, "spectator-1")
	r.JoinRoom(42, "spectator-2")
	r.JoinRoom(7, "spectator-3")

	r.EmitLocal(context.Background(), ToGameRoom(42), "game_updated", nil)
	if len(sender.sent) != 2 {
		t.Fatalf("got %d sends, want 2", len(sender.sent))
	}

	r.LeaveRoom(42, "spectator-1")
	sender.sent = nil
	r.EmitLocal(context.Background(), ToGameRoom(42), "game_updated", nil)
	if len(sender.sent) != 1 || sender.sent[0].sid != "spectator-2" {
		t.Fatalf("got %+v after leave", sender.sent)
	}
}

func TestUnbindSession_ClearsRoomsAndBinding(t *testing.T) {
	sender := &fakeSender{}
	r := New(sender, slog.Default())

	r.BindSession(1, "sid-a")
	r.JoinRoom(42, "sid-a")
	r.UnbindSession("sid-a")

	if _, ok := r.CurrentSession(1); ok {
		t.Error("expected no current session after unbind")
	}
	sender.sent = nil
	r.EmitLocal(context.Background(), ToGameRoom(42), "game_updated", nil)
	if len(sender.sent) != 0 {
		t.Errorf("expected room membership cleared, got %+v", sender.sent)
	}
}
