package signaling

import (
	"github.com/oceanpulse/livelink/pkg/api"
	"github.com/oceanpulse/livelink/pkg/logger"
	"github.com/oceanpulse/livelink/pkg/monitoring"
)

// Relay forwards opaque negotiation payloads between the participants
// of a live session without interpreting them. No retries and no
// ordering of its own: per-connection transport order is all there is.
type Relay struct {
	sessions *Manager
	registry *Registry
	log      *logger.Logger
}

func NewRelay(sessions *Manager, registry *Registry, log *logger.Logger) *Relay {
	return &Relay{sessions: sessions, registry: registry, log: log}
}

// Forward routes the signal to the sender's peer. The peer is resolved
// by the sender's device, so signals flow the right way even when both
// sides of the session belong to one user. The first relayed answer
// marks the session active.
func (r *Relay) Forward(senderUserId, senderDeviceId string, in api.WebrtcSignalMessage) error {
	s, err := r.sessions.Session(in.SessionId)
	if err != nil {
		return err
	}
	if !s.Live() {
		return ErrSessionNotFound
	}
	if !s.Has(senderUserId) {
		return ErrNotAuthorized
	}
	peer, ok := s.Peer(senderDeviceId)
	if !ok {
		return ErrNotAuthorized
	}
	conn, err := r.registry.FindDevice(peer.DeviceId)
	if err != nil {
		r.log.Warn().
			Str("sid", in.SessionId).
			Str("peer", peer.UserId).
			Msg("signal dropped: peer unreachable")
		return ErrPeerUnreachable
	}
	conn.Notify(api.WebrtcSignal, api.WebrtcSignalMessage{
		T:          api.WebrtcSignal,
		SignalType: in.SignalType,
		SessionId:  in.SessionId,
		SenderId:   senderUserId,
		Signal:     in.Signal,
	})
	monitoring.RelayedSignals.WithLabelValues(in.SignalType).Inc()
	if in.SignalType == api.SignalAnswer {
		if _, _, err := r.sessions.MarkActive(in.SessionId); err == nil {
			monitoring.SetActiveSessions(r.sessions.LiveCount())
		}
	}
	return nil
}
