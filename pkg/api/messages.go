package api

import "github.com/goccy/go-json"

// Device classes a client may report in its hello.
const (
	DeviceMobile  = "mobile"
	DeviceWeb     = "web"
	DeviceDesktop = "desktop"
)

// Hello is the first frame a client sends after the socket opens.
// It carries no type discriminator.
type Hello struct {
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	DeviceId   string `json:"device_id"`
}

// Device is the presence view of one device record.
type Device struct {
	DeviceId   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
	Online     bool   `json:"online"`
	LastActive int64  `json:"last_active"`
}

type DeviceRegisteredMessage struct {
	T        Kind   `json:"type"`
	DeviceId string `json:"device_id"`
}

type DevicesListMessage struct {
	T       Kind     `json:"type"`
	Devices []Device `json:"devices"`
}

// SessionRequestMessage notifies the target user about an incoming pairing request.
type SessionRequestMessage struct {
	T              Kind   `json:"type"`
	RequestId      string `json:"request_id"`
	SessionId      string `json:"session_id"`
	FromUserId     string `json:"from_user_id"`
	FromDeviceName string `json:"from_device_name"`
}

// SessionRequestAsk is the client-side pairing request.
// Either the target device or a target user (routed to its freshest
// online device) must be set.
type SessionRequestAsk struct {
	T              Kind   `json:"type"`
	TargetDeviceId string `json:"target_device_id,omitempty"`
	TargetUserId   string `json:"target_user_id,omitempty"`
}

// SessionResponseAsk answers a pending request. The request id is
// preferred; session_id is kept for older clients which echo the
// pre-allocated session id back instead.
type SessionResponseAsk struct {
	T         Kind   `json:"type"`
	RequestId string `json:"request_id,omitempty"`
	SessionId string `json:"session_id,omitempty"`
	Accepted  bool   `json:"accepted"`
}

type SessionAcceptedMessage struct {
	T            Kind   `json:"type"`
	SessionId    string `json:"session_id"`
	TargetUserId string `json:"target_user_id"`
}

type SessionRejectedMessage struct {
	T         Kind   `json:"type"`
	RequestId string `json:"request_id,omitempty"`
	Expired   bool   `json:"expired,omitempty"`
}

type EndSessionAsk struct {
	T         Kind   `json:"type"`
	SessionId string `json:"session_id"`
}

type SessionEndedMessage struct {
	T         Kind   `json:"type"`
	SessionId string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

type SessionActiveAsk struct {
	T         Kind   `json:"type"`
	SessionId string `json:"session_id"`
}

// WebrtcSignalMessage wraps an opaque negotiation payload. The server
// never looks inside Signal.
type WebrtcSignalMessage struct {
	T            Kind            `json:"type"`
	SignalType   string          `json:"signal_type"`
	SessionId    string          `json:"session_id"`
	SenderId     string          `json:"sender_id,omitempty"`
	TargetUserId string          `json:"target_user_id,omitempty"`
	Signal       json.RawMessage `json:"signal"`
}

type HeartbeatMessage struct {
	T Kind `json:"type"`
}

type ErrorMessage struct {
	T       Kind   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func NewError(code, message string) ErrorMessage {
	return ErrorMessage{T: Error, Code: code, Message: message}
}
