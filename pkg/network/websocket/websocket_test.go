package websocket

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/oceanpulse/livelink/pkg/logger"
)

func TestEchoRoundTrip(t *testing.T) {
	log := logger.Default()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := NewServer(w, r, nil, time.Minute, log)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ws.OnMessage = func(message []byte, err error) {
			if err == nil {
				ws.Write(message)
			}
		}
		ws.Listen()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	client, err := NewClient(*u, log)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	got := make(chan []byte, 1)
	client.OnMessage = func(message []byte, err error) {
		if err == nil {
			got <- message
		}
	}
	client.Listen()

	client.Write([]byte("ping"))
	select {
	case m := <-got:
		if string(m) != "ping" {
			t.Errorf("echo = %q", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no echo")
	}
	client.Close()
}
