package websocket

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oceanpulse/livelink/pkg/logger"
)

const (
	maxMessageSize = 64 * 1024
	readWait       = 5 * time.Second
	writeWait      = 10 * time.Second
)

type WS struct {
	conn deadlinedConn
	send chan []byte
	log  *logger.Logger

	OnMessage WSMessageHandler
	// OnPong fires on every transport-level pong, used for liveness tracking.
	OnPong func()

	pingPong bool
	pongTime time.Duration

	once     sync.Once
	shutdown *sync.WaitGroup
	Done     chan struct{}
}

type WSMessageHandler func(message []byte, err error)

type Upgrader struct {
	websocket.Upgrader
}

var DefaultUpgrader = Upgrader{
	Upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		WriteBufferPool: &sync.Pool{},
		CheckOrigin:     func(r *http.Request) bool { return true },
	},
}

// NewUpgrader makes an upgrader which accepts only the given origin.
func NewUpgrader(origin string) *Upgrader {
	u := Upgrader{
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			WriteBufferPool: &sync.Pool{},
		},
	}
	if origin != "" && origin != "*" {
		u.CheckOrigin = func(r *http.Request) bool { return r.Header.Get("Origin") == origin }
	} else {
		u.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return &u
}

// NewServer upgrades an incoming HTTP request to a server-side socket.
// The pong param sets the read (pong) deadline for client liveness.
func NewServer(w http.ResponseWriter, r *http.Request, up *Upgrader, pong time.Duration, log *logger.Logger) (*WS, error) {
	if up == nil {
		up = &DefaultUpgrader
	}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, pong, log), nil
}

func NewClient(address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, 0, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, pong time.Duration, log *logger.Logger) *WS {
	shut := sync.WaitGroup{}
	shut.Add(2)

	safeConn := deadlinedConn{sock: conn, wt: writeWait}
	if !pingPong {
		safeConn.rt = readWait
	}

	ws := &WS{
		conn:     safeConn,
		send:     make(chan []byte, 16),
		log:      log,
		pingPong: pingPong,
		pongTime: pong,
		shutdown: &shut,
		Done:     make(chan struct{}, 1),
	}
	if ws.pongTime == 0 {
		ws.pongTime = 60 * time.Second
	}

	go ws.writer()

	return ws
}

// Listen starts the read pump. Call once, after the handlers are set.
func (ws *WS) Listen() { go ws.reader() }

// reader pumps messages from the websocket connection to the OnMessage callback.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer func() {
		ws.closeSend()
		ws.shutdown.Done()
		ws.close()
	}()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(maxMessageSize)
		if ws.pingPong {
			_ = conn.SetReadDeadline(time.Now().Add(ws.pongTime))
			conn.SetPongHandler(func(string) error {
				_ = conn.SetReadDeadline(time.Now().Add(ws.pongTime))
				if ws.OnPong != nil {
					ws.OnPong()
				}
				return nil
			})
		}
	})
	for {
		message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.log.Debug().Err(err).Msg("ws read")
			}
			break
		}
		if ws.pingPong {
			// any client frame counts as liveness
			ws.conn.setup(func(conn *websocket.Conn) { _ = conn.SetReadDeadline(time.Now().Add(ws.pongTime)) })
		}
		ws.OnMessage(message, err)
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Serializes all websocket writes.
func (ws *WS) writer() {
	var ticker *time.Ticker
	if ws.pingPong {
		ticker = time.NewTicker(ws.pongTime * 9 / 10)
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		ws.shutdown.Done()
		ws.close()
	}()
	if ws.pingPong {
		for {
			select {
			case message, ok := <-ws.send:
				if !ws.handleMessage(message, ok) {
					return
				}
			case <-ticker.C:
				if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
	for message := range ws.send {
		if !ws.handleMessage(message, true) {
			return
		}
	}
	_ = ws.conn.write(websocket.CloseMessage, []byte{})
}

func (ws *WS) handleMessage(message []byte, ok bool) bool {
	if !ok {
		_ = ws.conn.write(websocket.CloseMessage, []byte{})
		return false
	}
	if err := ws.conn.write(websocket.TextMessage, message); err != nil {
		return false
	}
	return true
}

// Write queues data for sending; drops when the connection is closing.
func (ws *WS) Write(data []byte) {
	defer func() { recover() }()
	ws.send <- data
}

func (ws *WS) Close() {
	_ = ws.conn.write(websocket.CloseMessage, []byte{})
	_ = ws.conn.close()
}

// Drain flushes queued writes before the close frame goes out, so a
// final message is not lost to the connection teardown.
func (ws *WS) Drain() { ws.closeSend() }

func (ws *WS) closeSend() { ws.once.Do(func() { close(ws.send) }) }

func (ws *WS) close() {
	ws.shutdown.Wait()
	_ = ws.conn.close()
	select {
	case ws.Done <- struct{}{}:
	default:
	}
}
