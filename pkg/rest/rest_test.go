package rest

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/oceanpulse/livelink/pkg/api"
	"github.com/oceanpulse/livelink/pkg/auth"
	"github.com/oceanpulse/livelink/pkg/config"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/signaling"
	"github.com/oceanpulse/livelink/pkg/store"
)

type env struct {
	srv      *httptest.Server
	verifier *auth.Verifier
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conf := config.Livelink{
		Session: config.Session{
			RequestTimeout:    time.Minute,
			SweepInterval:     time.Second,
			HeartbeatInterval: 20 * time.Second,
		},
		Store: config.Store{QueryTimeout: time.Second},
	}
	log := logger.Default()
	verifier := auth.NewVerifier("test-secret", "livelink")
	history := store.NewMemory()
	hub := signaling.NewHub(conf, history, verifier, log)
	srv := httptest.NewServer(New(hub, history, verifier, conf.Store, log).Routes())
	t.Cleanup(srv.Close)
	return &env{srv: srv, verifier: verifier}
}

func (e *env) token(t *testing.T, user string) string {
	t.Helper()
	tk, err := e.verifier.Issue(user, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return tk
}

// client is one device connected over the websocket endpoint.
type client struct {
	conn *websocket.Conn
}

func (e *env) connect(t *testing.T, user, device string) *client {
	t.Helper()
	u := strings.Replace(e.srv.URL, "http", "ws", 1) +
		"/api/v1/session/ws?token=" + e.token(t, user)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	c := &client{conn: conn}
	c.send(t, api.Hello{DeviceId: device, DeviceName: device, DeviceType: api.DeviceWeb})
	c.waitFor(t, api.DeviceRegistered)
	return c
}

func (c *client) send(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitFor reads frames until the wanted kind shows up.
func (c *client) waitFor(t *testing.T, kind api.Kind) []byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %v: %v", kind, err)
		}
		in, err := api.Decode(data)
		if err != nil {
			t.Fatalf("frame: %v", err)
		}
		if in.T == kind {
			return in.Raw
		}
	}
	t.Fatalf("no %v frame", kind)
	return nil
}

func (e *env) call(t *testing.T, user, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp, body := e.call(t, "", "GET", "/health", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("%v %q", resp.StatusCode, body)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.call(t, "", "GET", "/api/v1/session/active", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %v", resp.StatusCode)
	}

	u := strings.Replace(e.srv.URL, "http", "ws", 1) + "/api/v1/session/ws?token=garbage"
	_, resp2, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("socket opened without a valid token")
	}
	if resp2 == nil || resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("upgrade status: %+v", resp2)
	}
}

func TestErrorStatuses(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"offline target", "POST", "/api/v1/session/request",
			map[string]string{"device_id": "nope"}, http.StatusConflict},
		{"empty request", "POST", "/api/v1/session/request",
			map[string]string{}, http.StatusBadRequest},
		{"unknown request", "POST", "/api/v1/session/respond",
			map[string]any{"request_id": "nope", "accepted": true}, http.StatusNotFound},
		{"unknown session", "POST", "/api/v1/session/nope/end",
			nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := e.call(t, "alice", tc.method, tc.path, tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %v, body %s", resp.StatusCode, body)
			}
		})
	}
}

func TestActiveEmpty(t *testing.T) {
	e := newEnv(t)
	resp, body := e.call(t, "alice", "GET", "/api/v1/session/active", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %v", resp.StatusCode)
	}
	var out struct {
		Pending []json.RawMessage `json:"pending_requests"`
		Active  []json.RawMessage `json:"active_sessions"`
		Ended   []json.RawMessage `json:"ended_sessions"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("%v in %s", err, body)
	}
	if len(out.Pending)+len(out.Active)+len(out.Ended) != 0 {
		t.Fatalf("fresh account has history: %s", body)
	}
}

func TestPairingOverRestAndWs(t *testing.T) {
	e := newEnv(t)
	alice := e.connect(t, "alice", "a1")
	bob := e.connect(t, "bob", "b1")

	resp, body := e.call(t, "alice", "POST", "/api/v1/session/request",
		map[string]string{"device_id": "b1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request: %v %s", resp.StatusCode, body)
	}
	var rq signaling.Request
	if err := json.Unmarshal(body, &rq); err != nil {
		t.Fatal(err)
	}

	raw := bob.waitFor(t, api.SessionRequest)
	ask := api.Unwrap[api.SessionRequestMessage](raw)
	if ask.RequestId != rq.Id || ask.FromUserId != "alice" {
		t.Fatalf("ws notification: %+v", ask)
	}

	// the requester sees the pending request in history
	_, body = e.call(t, "alice", "GET", "/api/v1/session/active", nil)
	var hist struct {
		Pending []signaling.Request `json:"pending_requests"`
	}
	_ = json.Unmarshal(body, &hist)
	if len(hist.Pending) != 1 {
		t.Fatalf("pending history: %s", body)
	}

	bob.send(t, api.SessionResponseAsk{T: api.SessionResponse, RequestId: rq.Id, Accepted: true})
	for name, c := range map[string]*client{"alice": alice, "bob": bob} {
		raw := c.waitFor(t, api.SessionAccepted)
		acc := api.Unwrap[api.SessionAcceptedMessage](raw)
		if acc.SessionId != rq.SessionId {
			t.Fatalf("%s acceptance: %+v", name, acc)
		}
	}

	alice.send(t, api.WebrtcSignalMessage{
		T:          api.WebrtcSignal,
		SignalType: api.SignalOffer,
		SessionId:  rq.SessionId,
		Signal:     json.RawMessage(`{"sdp":"v=0","x":1}`),
	})
	raw = bob.waitFor(t, api.WebrtcSignal)
	sig := api.Unwrap[api.WebrtcSignalMessage](raw)
	if sig.SenderId != "alice" || string(sig.Signal) != `{"sdp":"v=0","x":1}` {
		t.Fatalf("relayed signal: %+v", sig)
	}

	resp, body = e.call(t, "bob", "POST", fmt.Sprintf("/api/v1/session/%s/end", rq.SessionId), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end: %v %s", resp.StatusCode, body)
	}
	raw = alice.waitFor(t, api.SessionEnded)
	ended := api.Unwrap[api.SessionEndedMessage](raw)
	if ended.SessionId != rq.SessionId {
		t.Fatalf("end notification: %+v", ended)
	}

	_, body = e.call(t, "alice", "GET", "/api/v1/session/active", nil)
	var after struct {
		Active []signaling.Session `json:"active_sessions"`
		Ended  []signaling.Session `json:"ended_sessions"`
	}
	_ = json.Unmarshal(body, &after)
	if len(after.Active) != 0 || len(after.Ended) != 1 {
		t.Fatalf("history after end: %s", body)
	}
}

// Signals relayed in one direction arrive in the order they were sent:
// an offer followed by its trickled candidate must not swap in transit.
func TestSignalOrderingOverWs(t *testing.T) {
	e := newEnv(t)
	alice := e.connect(t, "alice", "a1")
	bob := e.connect(t, "bob", "b1")

	resp, body := e.call(t, "alice", "POST", "/api/v1/session/request",
		map[string]string{"device_id": "b1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request: %v %s", resp.StatusCode, body)
	}
	var rq signaling.Request
	if err := json.Unmarshal(body, &rq); err != nil {
		t.Fatal(err)
	}
	bob.waitFor(t, api.SessionRequest)
	bob.send(t, api.SessionResponseAsk{T: api.SessionResponse, RequestId: rq.Id, Accepted: true})
	alice.waitFor(t, api.SessionAccepted)
	bob.waitFor(t, api.SessionAccepted)

	alice.send(t, api.WebrtcSignalMessage{
		T:          api.WebrtcSignal,
		SignalType: api.SignalOffer,
		SessionId:  rq.SessionId,
		Signal:     json.RawMessage(`{"sdp":"v=0"}`),
	})
	alice.send(t, api.WebrtcSignalMessage{
		T:          api.WebrtcSignal,
		SignalType: api.SignalIceCandidate,
		SessionId:  rq.SessionId,
		Signal:     json.RawMessage(`{"candidate":"udp 1"}`),
	})

	first := api.Unwrap[api.WebrtcSignalMessage](bob.waitFor(t, api.WebrtcSignal))
	if first.SignalType != api.SignalOffer {
		t.Fatalf("first signal: %+v", first)
	}
	second := api.Unwrap[api.WebrtcSignalMessage](bob.waitFor(t, api.WebrtcSignal))
	if second.SignalType != api.SignalIceCandidate || string(second.Signal) != `{"candidate":"udp 1"}` {
		t.Fatalf("second signal: %+v", second)
	}
}

// A hello claiming a device id registered to another account is turned
// away at the socket without disturbing the owner.
func TestDeviceOwnershipOverWs(t *testing.T) {
	e := newEnv(t)
	alice := e.connect(t, "alice", "a1")

	u := strings.Replace(e.srv.URL, "http", "ws", 1) +
		"/api/v1/session/ws?token=" + e.token(t, "bob")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	impostor := &client{conn: conn}
	impostor.send(t, api.Hello{DeviceId: "a1", DeviceName: "a1", DeviceType: api.DeviceWeb})

	raw := impostor.waitFor(t, api.Error)
	msg := api.Unwrap[api.ErrorMessage](raw)
	if msg.Code != "not_authorized" {
		t.Fatalf("rejection: %+v", msg)
	}

	// the owner's connection is untouched and still routed to
	alice.send(t, api.HeartbeatMessage{T: api.Heartbeat})
	resp, body := e.call(t, "alice", "GET", "/api/v1/session/devices", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("devices: %v", resp.StatusCode)
	}
	var out struct {
		Devices []api.Device `json:"devices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Devices) != 1 || !out.Devices[0].Online {
		t.Fatalf("owner presence after foreign claim: %s", body)
	}
}

func TestDevicesEndpoint(t *testing.T) {
	e := newEnv(t)
	e.connect(t, "alice", "a1")
	e.connect(t, "alice", "a2")

	resp, body := e.call(t, "alice", "GET", "/api/v1/session/devices", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %v", resp.StatusCode)
	}
	var out struct {
		Devices []api.Device `json:"devices"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Devices) != 2 {
		t.Fatalf("devices: %s", body)
	}
}
