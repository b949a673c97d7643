// Package api defines the wire contract between the signaling server and its clients.
//
// Every frame after the initial device hello is a flat JSON object carrying a
// "type" discriminator next to the message fields:
//
//	{"type":"webrtc_signal","signal_type":"offer","session_id":"...","signal":{...}}
//
// Payloads are decoded in two passes: first the type alone, then the full
// message into its concrete struct.
package api

import (
	"github.com/goccy/go-json"
)

type Kind string

// Server to client.
const (
	DeviceRegistered Kind = "device_registered"
	DevicesList      Kind = "devices_list"
	SessionAccepted  Kind = "session_accepted"
	SessionRejected  Kind = "session_rejected"
	SessionEnded     Kind = "session_ended"
	Error            Kind = "error"
)

// Client to server.
const (
	SessionResponse Kind = "session_response"
	EndSession      Kind = "end_session"
	SessionActive   Kind = "session_active"
	Heartbeat       Kind = "heartbeat"
)

// Both directions.
const (
	SessionRequest Kind = "session_request"
	WebrtcSignal   Kind = "webrtc_signal"
)

// Signal types relayed verbatim between peers.
const (
	SignalOffer        = "offer"
	SignalAnswer       = "answer"
	SignalIceCandidate = "ice_candidate"
)

// In is the first-pass decode of an incoming frame. Raw always holds
// the whole frame; it is kept out of the decode so no key in the
// payload can clobber it.
type In struct {
	T   Kind            `json:"type"`
	Raw json.RawMessage `json:"-"`
}

func Decode(data []byte) (In, error) {
	in := In{Raw: data}
	err := json.Unmarshal(data, &in)
	return in, err
}

func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}

func Marshal(v any) ([]byte, error) { return json.Marshal(v) }
