package signaling

import (
	"context"
	"net/http"
	"time"

	"github.com/oceanpulse/livelink/pkg/api"
	"github.com/oceanpulse/livelink/pkg/auth"
	"github.com/oceanpulse/livelink/pkg/com"
	"github.com/oceanpulse/livelink/pkg/config"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/monitoring"
	"github.com/oceanpulse/livelink/pkg/network/websocket"
)

// Hub wires the registry, presence directory, session state machine and
// relay together and owns every client connection. Cross-entity
// operations run here sequentially over the components' own locks, so
// no two locks are ever held at once.
type Hub struct {
	conf     config.Livelink
	registry *Registry
	presence *Directory
	sessions *Manager
	relay    *Relay
	verifier *auth.Verifier
	upgrader *websocket.Upgrader
	log      *logger.Logger
	done     chan struct{}
}

func NewHub(conf config.Livelink, history History, verifier *auth.Verifier, log *logger.Logger) *Hub {
	registry := NewRegistry(log)
	sessions := NewManager(conf.Session.RequestTimeout, conf.Store.QueryTimeout, history, log)
	h := &Hub{
		conf:     conf,
		registry: registry,
		presence: NewDirectory(),
		sessions: sessions,
		relay:    NewRelay(sessions, registry, log),
		verifier: verifier,
		upgrader: websocket.NewUpgrader(conf.Server.Origin),
		log:      log,
		done:     make(chan struct{}),
	}
	return h
}

func (h *Hub) Registry() *Registry   { return h.registry }
func (h *Hub) Presence() *Directory  { return h.presence }
func (h *Hub) Sessions() *Manager    { return h.sessions }

// Run starts the stale-request sweep and the connection liveness check.
func (h *Hub) Run() {
	go h.loop(h.conf.Session.SweepInterval, h.expireStalePending)
	go h.loop(h.conf.Session.Grace()/2, h.dropStaleConnections)
}

func (h *Hub) loop(every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-h.done:
			return
		}
	}
}

// Shutdown ends every live session and closes all connections.
func (h *Hub) Shutdown(ctx context.Context) error {
	close(h.done)
	for _, c := range h.registry.All() {
		for _, s := range h.sessions.LiveSessionsWith(c.DeviceId) {
			_, _, _ = h.sessions.End(s.Id, ReasonServerShutdown)
		}
		c.Disconnect()
	}
	return nil
}

// HandleUserConnection upgrades an authenticated client to a persistent
// signaling connection. The first frame must be the device hello.
func (h *Hub) HandleUserConnection(w http.ResponseWriter, r *http.Request) {
	userId, err := h.verifier.Verify(auth.TokenFromRequest(r))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	ws, err := websocket.NewServer(w, r, h.upgrader, h.conf.Session.Grace(), h.log)
	if err != nil {
		h.log.Error().Err(err).Msg("socket upgrade failed")
		return
	}
	client := com.NewSocket(ws, com.NewUid(), h.log)

	var conn *Conn
	client.OnPacket(func(in api.In) error {
		if conn == nil {
			hello := api.Unwrap[api.Hello](in.Raw)
			if hello == nil {
				return ErrInvalidMessage
			}
			c, err := h.register(client.Id(), userId, *hello, client)
			if err != nil {
				client.Notify(api.Error, api.NewError(ErrorCode(err), "device id is registered to another account"))
				client.Drain()
				return err
			}
			conn = c
			return nil
		}
		conn.Touch()
		return h.route(conn, in)
	})
	client.OnPong(func() {
		if conn != nil {
			conn.Touch()
		}
	})
	<-client.Listen()
	if conn != nil {
		h.onDisconnect(conn)
	}
	h.log.Debug().Str("uid", userId).Msg("disconnect")
}

// register binds the socket to its (user, device) identity, closing any
// prior connection of the same user for the same device id. A hello
// claiming a device id owned by another account is rejected before it
// can touch the registry.
func (h *Hub) register(id com.Uid, userId string, hello api.Hello, sock Sender) (*Conn, error) {
	if hello.DeviceId == "" {
		hello.DeviceId = com.NewUid().String()
	}
	if hello.DeviceName == "" {
		hello.DeviceName = "Unknown Device"
	}
	if hello.DeviceType == "" {
		hello.DeviceType = api.DeviceWeb
	}
	conn := NewConn(id, userId, hello, sock)
	if err := h.presence.Claim(conn); err != nil {
		h.log.Warn().Str("uid", userId).Str("did", hello.DeviceId).Msg("device id claim rejected")
		return nil, err
	}
	if superseded := h.registry.Register(conn); superseded != nil {
		h.log.Debug().Str("did", hello.DeviceId).Msg("connection superseded")
		superseded.Disconnect()
	}
	conn.Notify(api.DeviceRegistered, api.DeviceRegisteredMessage{T: api.DeviceRegistered, DeviceId: conn.DeviceId})
	h.pushDevices(userId)
	h.syncGauges()
	return conn, nil
}

// onDisconnect runs after the read loop of a connection stops for any
// reason: client close, heartbeat timeout or supersession.
func (h *Hub) onDisconnect(conn *Conn) {
	c, _, sessionsEnded := h.unregister(conn)
	if c == nil {
		return
	}
	for _, s := range sessionsEnded {
		peer, ok := s.Peer(conn.DeviceId)
		if !ok {
			continue
		}
		h.notifyParticipant(peer, api.SessionEnded,
			api.SessionEndedMessage{T: api.SessionEnded, SessionId: s.Id, Reason: s.Reason})
	}
	h.pushDevices(conn.UserId)
	h.syncGauges()
}

func (h *Hub) unregister(conn *Conn) (*Conn, bool, []Session) {
	c, deviceGone := h.registry.Unregister(conn.Id)
	if c == nil {
		return nil, false, nil
	}
	var ended []Session
	if deviceGone {
		h.presence.MarkOffline(c.DeviceId)
		for _, s := range h.sessions.LiveSessionsWith(c.DeviceId) {
			if out, changed, err := h.sessions.End(s.Id, ReasonPeerDisconnected); err == nil && changed {
				ended = append(ended, *out)
			}
		}
	}
	return c, deviceGone, ended
}

// CreateRequest starts a pairing towards the target device (or the
// freshest online device of the target user). The target must be
// online. fromDeviceId is the requester's own device when the request
// arrives over an established connection; requests routed by user id
// never resolve back to it, so a user can pair two of their own
// devices.
func (h *Hub) CreateRequest(fromUserId, fromDeviceId, targetDeviceId, targetUserId string) (*Request, error) {
	var target DeviceRecord
	var ok bool
	switch {
	case targetDeviceId != "":
		target, ok = h.presence.Resolve(targetDeviceId)
		if ok && !target.Online {
			ok = false
		}
	case targetUserId != "":
		target, ok = h.presence.FreshestOnline(targetUserId, fromDeviceId)
	default:
		return nil, ErrInvalidMessage
	}
	if !ok {
		return nil, ErrDeviceOffline
	}
	if fromDeviceId != "" && fromDeviceId == target.DeviceId {
		return nil, ErrInvalidMessage
	}

	from := Participant{UserId: fromUserId, DeviceId: fromDeviceId}
	if fromDeviceId != "" {
		if rec, ok := h.presence.Resolve(fromDeviceId); ok {
			from.DeviceName = rec.DeviceName
		}
	} else if rec, ok := h.presence.FreshestOnline(fromUserId, target.DeviceId); ok {
		from.DeviceId = rec.DeviceId
		from.DeviceName = rec.DeviceName
	}

	rq, created := h.sessions.CreateRequest(from, Participant{
		UserId:     target.UserId,
		DeviceId:   target.DeviceId,
		DeviceName: target.DeviceName,
	})
	if created {
		h.notifyUser(target.UserId, api.SessionRequest, api.SessionRequestMessage{
			T:              api.SessionRequest,
			RequestId:      rq.Id,
			SessionId:      rq.SessionId,
			FromUserId:     rq.From.UserId,
			FromDeviceName: rq.From.DeviceName,
		})
	}
	return rq, nil
}

// Respond settles a pending request on behalf of the target user and,
// on acceptance, tells both sides the matching session id.
func (h *Hub) Respond(userId, requestId string, accepted bool) (*Request, *Session, error) {
	rq, s, err := h.sessions.Respond(userId, requestId, accepted)
	if err != nil {
		return nil, nil, err
	}
	if s == nil {
		h.notifyParticipant(rq.From, api.SessionRejected,
			api.SessionRejectedMessage{T: api.SessionRejected, RequestId: rq.Id})
		return rq, nil, nil
	}
	// one acceptance per participant, delivered to that participant's
	// device, so same-user sessions do not double up
	h.notifyParticipant(s.From, api.SessionAccepted,
		api.SessionAcceptedMessage{T: api.SessionAccepted, SessionId: s.Id, TargetUserId: s.To.UserId})
	h.notifyParticipant(s.To, api.SessionAccepted,
		api.SessionAcceptedMessage{T: api.SessionAccepted, SessionId: s.Id, TargetUserId: s.From.UserId})
	h.syncGauges()
	return rq, s, nil
}

// EndSession terminates the session for either participant; an empty
// userId means the server itself. deviceId pins down which side asked
// when both belong to one user. Ending an ended session succeeds
// without duplicate notifications.
func (h *Hub) EndSession(userId, deviceId, sessionId, reason string) (*Session, error) {
	s, err := h.sessions.Session(sessionId)
	if err != nil {
		return nil, err
	}
	if userId != "" && !s.Has(userId) {
		return nil, ErrNotAuthorized
	}
	out, changed, err := h.sessions.End(sessionId, reason)
	if err != nil {
		return nil, err
	}
	if changed {
		msg := api.SessionEndedMessage{T: api.SessionEnded, SessionId: out.Id, Reason: out.Reason}
		if peer, ok := out.Peer(deviceId); ok {
			h.notifyParticipant(peer, api.SessionEnded, msg)
		} else {
			switch {
			case userId != "" && userId == out.From.UserId && userId != out.To.UserId:
				h.notifyParticipant(out.To, api.SessionEnded, msg)
			case userId != "" && userId == out.To.UserId && userId != out.From.UserId:
				h.notifyParticipant(out.From, api.SessionEnded, msg)
			default:
				// server-initiated, or a same-user end with no device
				// context: tell both sides
				h.notifyParticipant(out.From, api.SessionEnded, msg)
				h.notifyParticipant(out.To, api.SessionEnded, msg)
			}
		}
		h.syncGauges()
	}
	return out, nil
}

// MarkActive is the explicit client signal that negotiation completed.
func (h *Hub) MarkActive(userId, sessionId string) error {
	s, err := h.sessions.Session(sessionId)
	if err != nil {
		return err
	}
	if !s.Has(userId) {
		return ErrNotAuthorized
	}
	_, _, err = h.sessions.MarkActive(sessionId)
	return err
}

// Devices lists the device records visible to the user.
func (h *Hub) Devices(userId string) []api.Device { return h.presence.DevicesVisibleTo(userId) }

// expireStalePending is the background sweep over pending requests.
func (h *Hub) expireStalePending() {
	for _, rq := range h.sessions.ExpireStale() {
		monitoring.ExpiredRequests.Inc()
		h.notifyParticipant(rq.From, api.SessionRejected,
			api.SessionRejectedMessage{T: api.SessionRejected, RequestId: rq.Id, Expired: true})
	}
}

// dropStaleConnections unregisters connections past the heartbeat grace.
func (h *Hub) dropStaleConnections() {
	for _, c := range h.registry.Stale(h.conf.Session.Grace()) {
		h.log.Info().Str("did", c.DeviceId).Msg("heartbeat timeout")
		c.Disconnect()
		h.onDisconnect(c)
	}
}

// pushDevices fans the fresh device list out to every connection of the
// user.
func (h *Hub) pushDevices(userId string) {
	list := api.DevicesListMessage{T: api.DevicesList, Devices: h.presence.DevicesVisibleTo(userId)}
	for _, c := range h.registry.ConnectionsFor(userId) {
		c.Notify(api.DevicesList, list)
	}
}

func (h *Hub) notifyUser(userId string, kind api.Kind, v any) {
	for _, c := range h.registry.ConnectionsFor(userId) {
		c.Notify(kind, v)
	}
}

// notifyParticipant delivers to the participant's device connection,
// falling back to the user-wide fan-out when the device is unknown.
func (h *Hub) notifyParticipant(p Participant, kind api.Kind, v any) {
	if p.DeviceId != "" {
		if c, err := h.registry.FindDevice(p.DeviceId); err == nil {
			c.Notify(kind, v)
			return
		}
	}
	h.notifyUser(p.UserId, kind, v)
}

func (h *Hub) syncGauges() {
	monitoring.SetOpenConnections(h.registry.Len())
	monitoring.SetOnlineDevices(h.presence.OnlineCount())
	monitoring.SetActiveSessions(h.sessions.LiveCount())
}
