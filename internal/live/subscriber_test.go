package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tiliavir/rosterctl/internal/model"
)

// mockLiveServer upgrades every request and hands the connection to the test.
type mockLiveServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	auth     chan string
}

func newMockLiveServer(t *testing.T) *mockLiveServer {
	t.Helper()
	m := &mockLiveServer{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:    make(chan *websocket.Conn, 4),
		auth:     make(chan string, 4),
	}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.auth <- r.Header.Get("Authorization")
		conn, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.conns <- conn
	}))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockLiveServer) url() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func (m *mockLiveServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-m.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func receive(t *testing.T, ch <-chan model.ActivityEvent) model.ActivityEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
		return model.ActivityEvent{}
	}
}

func TestSubscriberDeliversEvents(t *testing.T) {
	srv := newMockLiveServer(t)
	events := make(chan model.ActivityEvent, 4)
	sub := NewSubscriber(srv.url(), func() (string, error) { return "tok", nil }, func(ev model.ActivityEvent) { events <- ev })

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sub.Close()

	if got := <-srv.auth; got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}
	conn := srv.next(t)
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.WriteJSON(model.ActivityEvent{OfficerNIF: 7, RecordKind: model.KindJustification, Action: model.ActionUpdate})

	ev := receive(t, events)
	if ev.OfficerNIF != 7 || ev.RecordKind != model.KindJustification || ev.Action != model.ActionUpdate {
		t.Errorf("event = %+v", ev)
	}
}

func TestSubscriberReconnects(t *testing.T) {
	srv := newMockLiveServer(t)
	events := make(chan model.ActivityEvent, 4)
	sub := NewSubscriber(srv.url(), nil, func(ev model.ActivityEvent) { events <- ev })
	sub.minDelay = 10 * time.Millisecond

	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sub.Close()

	first := srv.next(t)
	first.Close()

	second := srv.next(t)
	defer second.Close()
	second.WriteJSON(model.ActivityEvent{OfficerNIF: 3, RecordKind: model.KindHours, Action: model.ActionAdd})

	if ev := receive(t, events); ev.OfficerNIF != 3 {
		t.Errorf("event = %+v", ev)
	}
}

func TestSubscriberStartFails(t *testing.T) {
	sub := NewSubscriber("ws://127.0.0.1:1/ws", nil, func(model.ActivityEvent) {})
	if err := sub.Start(context.Background()); err == nil {
		sub.Close()
		t.Fatal("Start succeeded against a closed port")
	}
}

func TestSubscriberCloseStopsListener(t *testing.T) {
	srv := newMockLiveServer(t)
	sub := NewSubscriber(srv.url(), nil, func(model.ActivityEvent) {})
	if err := sub.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn := srv.next(t)
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
