package signaling

import (
	"context"
	"errors"
	"time"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
	RequestExpired  RequestStatus = "expired"
)

type SessionStatus string

const (
	SessionConnecting SessionStatus = "connecting"
	SessionActive     SessionStatus = "active"
	SessionEnded      SessionStatus = "ended"
)

// Session end reasons.
const (
	ReasonEndedByPeer      = "ended_by_peer"
	ReasonPeerDisconnected = "peer_disconnected"
	ReasonServerShutdown   = "server_shutdown"
)

// Participant is one side of a pairing: a user acting through one device.
type Participant struct {
	UserId     string `json:"user_id"`
	DeviceId   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

// Request is a pairing negotiation offer. The session id is allocated
// up front so that a terminal request maps to at most one session.
type Request struct {
	Id        string        `json:"request_id"`
	SessionId string        `json:"session_id"`
	From      Participant   `json:"from"`
	To        Participant   `json:"to"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Session is an agreed pairing between two participants.
// Records are never deleted, only marked ended.
type Session struct {
	Id        string        `json:"session_id"`
	RequestId string        `json:"request_id"`
	From      Participant   `json:"from"`
	To        Participant   `json:"to"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Live reports whether the session still routes negotiation traffic.
func (s *Session) Live() bool { return s.Status == SessionConnecting || s.Status == SessionActive }

// Peer returns the other participant relative to the given device.
// Participants are identified by device, not by user: both sides of a
// session may belong to the same account (a user pairing their own
// browser with their own phone).
func (s *Session) Peer(deviceId string) (Participant, bool) {
	if deviceId == "" {
		return Participant{}, false
	}
	switch deviceId {
	case s.From.DeviceId:
		return s.To, true
	case s.To.DeviceId:
		return s.From, true
	}
	return Participant{}, false
}

func (s *Session) Has(userId string) bool {
	return userId == s.From.UserId || userId == s.To.UserId
}

var (
	ErrDeviceOffline      = errors.New("device offline")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrPeerUnreachable    = errors.New("peer unreachable")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrRequestNotFound    = errors.New("request not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("active session exists for this pair")
)

// History is the durable session store contract. Writes are append-only
// and must never block live signaling; read failures surface as the
// implementation's unavailability error.
type History interface {
	RecordRequest(ctx context.Context, r Request) error
	RecordSession(ctx context.Context, s Session) error

	ActiveSessionsFor(ctx context.Context, userId string) ([]Session, error)
	EndedSessionsFor(ctx context.Context, userId string, limit int) ([]Session, error)
	PendingRequestsFor(ctx context.Context, userId string) ([]Request, error)
}
