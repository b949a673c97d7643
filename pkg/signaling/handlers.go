package signaling

import (
	"errors"

	"github.com/oceanpulse/livelink/pkg/api"
)

// route dispatches one inbound frame of a registered connection.
// State and authorization errors go back to the sender as a single
// error notification; nothing is ever silently swallowed.
func (h *Hub) route(conn *Conn, in api.In) error {
	switch in.T {
	case api.Heartbeat:
		// Touch already done by the caller
		return nil
	case api.SessionRequest:
		ask := api.Unwrap[api.SessionRequestAsk](in.Raw)
		if ask == nil {
			return h.fail(conn, ErrInvalidMessage)
		}
		if _, err := h.CreateRequest(conn.UserId, conn.DeviceId, ask.TargetDeviceId, ask.TargetUserId); err != nil {
			return h.fail(conn, err)
		}
	case api.SessionResponse:
		ask := api.Unwrap[api.SessionResponseAsk](in.Raw)
		if ask == nil {
			return h.fail(conn, ErrInvalidMessage)
		}
		id := ask.RequestId
		if id == "" {
			id = ask.SessionId
		}
		if _, _, err := h.Respond(conn.UserId, id, ask.Accepted); err != nil {
			return h.fail(conn, err)
		}
	case api.EndSession:
		ask := api.Unwrap[api.EndSessionAsk](in.Raw)
		if ask == nil {
			return h.fail(conn, ErrInvalidMessage)
		}
		if _, err := h.EndSession(conn.UserId, conn.DeviceId, ask.SessionId, ReasonEndedByPeer); err != nil {
			return h.fail(conn, err)
		}
	case api.SessionActive:
		ask := api.Unwrap[api.SessionActiveAsk](in.Raw)
		if ask == nil {
			return h.fail(conn, ErrInvalidMessage)
		}
		if err := h.MarkActive(conn.UserId, ask.SessionId); err != nil {
			return h.fail(conn, err)
		}
	case api.WebrtcSignal:
		msg := api.Unwrap[api.WebrtcSignalMessage](in.Raw)
		if msg == nil {
			return h.fail(conn, ErrInvalidMessage)
		}
		if err := h.relay.Forward(conn.UserId, conn.DeviceId, *msg); err != nil {
			// non-fatal for the session; the sender decides whether to
			// retransmit or end
			return h.fail(conn, err)
		}
	default:
		h.log.Debug().Msgf("unhandled message type: %v", in.T)
	}
	return nil
}

// fail maps the error to its wire code and reports it to the sender.
func (h *Hub) fail(conn *Conn, err error) error {
	conn.Notify(api.Error, api.NewError(ErrorCode(err), err.Error()))
	return err
}

// ErrorCode gives the stable wire identifier of a signaling error.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDeviceOffline):
		return "device_offline"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrConnectionNotFound):
		return "connection_not_found"
	case errors.Is(err, ErrPeerUnreachable):
		return "peer_unreachable"
	case errors.Is(err, ErrRequestNotFound):
		return "request_not_found"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionExists):
		return "session_exists"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	}
	return "internal"
}
