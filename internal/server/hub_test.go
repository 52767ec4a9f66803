package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pueblokc/fail2ban/internal/banlog"
	"github.com/rs/zerolog"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.CloseAll()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Connection registration races with Broadcast; give the handler a beat.
	time.Sleep(50 * time.Millisecond)

	want := banlog.Entry{ID: 1, Jail: "sshd", IP: "1.2.3.4", Action: "ban"}
	hub.Broadcast(want)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got banlog.Entry
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Jail != want.Jail || got.IP != want.IP || got.Action != want.Action {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

// A client that never drains its queue is dropped without blocking the
// broadcaster.
func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.CloseAll()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more than the per-client buffer; must not block even though
		// the client never reads.
		for i := 0; i < 1000; i++ {
			hub.Broadcast(banlog.Entry{ID: int64(i), Jail: "sshd", IP: "1.2.3.4", Action: "ban"})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}
}
