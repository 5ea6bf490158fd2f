package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHub_SendDeliversToOnlineUser(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "user-1")
	waitFor(t, "registration", func() bool { return hub.IsOnline("user-1") })

	if !hub.Send("user-1", []byte(`{"kind":"follow"}`)) {
		t.Fatal("send to online user should succeed")
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `{"kind":"follow"}` {
		t.Fatalf("unexpected payload %s", msg)
	}

	if hub.Send("user-2", []byte("x")) {
		t.Fatal("send to offline user should report false")
	}
}

func TestHub_SendJSON(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "user-1")
	waitFor(t, "registration", func() bool { return hub.IsOnline("user-1") })

	ok, err := hub.SendJSON("user-1", map[string]int{"unread_count": 3})
	if err != nil || !ok {
		t.Fatalf("send json: %v, %v", ok, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != `{"unread_count":3}` {
		t.Fatalf("unexpected read %s, %v", msg, err)
	}

	if _, err := hub.SendJSON("user-1", make(chan int)); err == nil {
		t.Fatal("unencodable payload should fail")
	}
}

func TestHub_NewConnectionReplacesOld(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	srv := newTestServer(t, hub)

	first := dial(t, srv, "user-1")
	waitFor(t, "first registration", func() bool { return hub.IsOnline("user-1") })
	second := dial(t, srv, "user-1")

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Fatal("replaced connection should be closed")
	}
	if hub.OnlineCount() != 1 {
		t.Fatalf("expected one online user, got %d", hub.OnlineCount())
	}

	waitFor(t, "delivery on new connection", func() bool { return hub.Send("user-1", []byte("hi")) })
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, msg, err := second.ReadMessage(); err != nil || string(msg) != "hi" {
		t.Fatalf("new connection should receive, got %s, %v", msg, err)
	}
}

func TestHub_DisconnectAndClose(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	srv := newTestServer(t, hub)

	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	waitFor(t, "both registered", func() bool { return hub.OnlineCount() == 2 })

	users := hub.OnlineUsers()
	if len(users) != 2 || users[0] != "a" || users[1] != "b" {
		t.Fatalf("unexpected online users %v", users)
	}

	_ = a.Close()
	waitFor(t, "a offline", func() bool { return !hub.IsOnline("a") })

	hub.Close()
	if hub.OnlineCount() != 0 {
		t.Fatal("close should drop every connection")
	}
	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := b.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
}
