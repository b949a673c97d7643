package signaling

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/oceanpulse/livelink/pkg/api"
	"github.com/oceanpulse/livelink/pkg/com"
	"github.com/oceanpulse/livelink/pkg/logger"
)

// Sender abstracts the outbound side of one client socket so the
// registry can be exercised without a network.
type Sender interface {
	Notify(kind api.Kind, v any)
	Disconnect()
}

// Conn binds one live transport to a (user, device) identity.
type Conn struct {
	Id         com.Uid
	UserId     string
	DeviceId   string
	DeviceName string
	DeviceType string

	sock     Sender
	lastSeen atomic.Int64
}

func NewConn(id com.Uid, userId string, hello api.Hello, sock Sender) *Conn {
	c := &Conn{
		Id:         id,
		UserId:     userId,
		DeviceId:   hello.DeviceId,
		DeviceName: hello.DeviceName,
		DeviceType: hello.DeviceType,
		sock:       sock,
	}
	c.Touch()
	return c
}

// Touch bumps the liveness timestamp.
func (c *Conn) Touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *Conn) Seen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

func (c *Conn) Notify(kind api.Kind, v any) { c.sock.Notify(kind, v) }

func (c *Conn) Disconnect() { c.sock.Disconnect() }

func (c *Conn) Participant() Participant {
	return Participant{UserId: c.UserId, DeviceId: c.DeviceId, DeviceName: c.DeviceName}
}

// Registry tracks every open connection. At most one connection exists
// per device id; a newcomer for the same device supersedes the old one.
type Registry struct {
	mu       sync.Mutex
	conns    map[com.Uid]*Conn
	byDevice map[string]*Conn
	byUser   map[string]map[com.Uid]*Conn
	log      *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		conns:    make(map[com.Uid]*Conn, 16),
		byDevice: make(map[string]*Conn, 16),
		byUser:   make(map[string]map[com.Uid]*Conn, 16),
		log:      log,
	}
}

// Register adds the connection and returns the superseded connection
// for the same device id, if any. The caller owns closing it.
func (r *Registry) Register(c *Conn) (superseded *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byDevice[c.DeviceId]; ok && prev.Id != c.Id {
		superseded = prev
		r.removeLocked(prev)
	}
	r.conns[c.Id] = c
	r.byDevice[c.DeviceId] = c
	if _, ok := r.byUser[c.UserId]; !ok {
		r.byUser[c.UserId] = make(map[com.Uid]*Conn, 2)
	}
	r.byUser[c.UserId][c.Id] = c
	return superseded
}

// Unregister removes the connection. deviceGone is true when no other
// connection remains for the same device id.
func (r *Registry) Unregister(id com.Uid) (c *Conn, deviceGone bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	r.removeLocked(c)
	_, ok = r.byDevice[c.DeviceId]
	return c, !ok
}

func (r *Registry) removeLocked(c *Conn) {
	delete(r.conns, c.Id)
	if cur, ok := r.byDevice[c.DeviceId]; ok && cur.Id == c.Id {
		delete(r.byDevice, c.DeviceId)
	}
	if users := r.byUser[c.UserId]; users != nil {
		delete(users, c.Id)
		if len(users) == 0 {
			delete(r.byUser, c.UserId)
		}
	}
}

// Send delivers a message to exactly one connection. Best-effort: the
// caller treats ErrConnectionNotFound as a skipped delivery, not a
// fatal condition.
func (r *Registry) Send(id com.Uid, kind api.Kind, v any) error {
	r.mu.Lock()
	c, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return ErrConnectionNotFound
	}
	c.Notify(kind, v)
	return nil
}

// FindDevice returns the open connection for the device id.
func (r *Registry) FindDevice(deviceId string) (*Conn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byDevice[deviceId]; ok {
		return c, nil
	}
	return nil, ErrConnectionNotFound
}

// ConnectionsFor lists every open connection of the user, used to fan
// out notifications to all of their tabs and devices.
func (r *Registry) ConnectionsFor(userId string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.byUser[userId]))
	for _, c := range r.byUser[userId] {
		out = append(out, c)
	}
	return out
}

// Stale returns connections silent for longer than grace.
func (r *Registry) Stale(grace time.Duration) []*Conn {
	deadline := time.Now().Add(-grace)
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Conn
	for _, c := range r.conns {
		if c.Seen().Before(deadline) {
			out = append(out, c)
		}
	}
	return out
}

// All snapshots every open connection.
func (r *Registry) All() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
