package api

import (
	"testing"
)

func TestDecode(t *testing.T) {
	frame := []byte(`{"type":"webrtc_signal","signal_type":"offer","session_id":"s1","signal":{"sdp":"v=0"}}`)
	in, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if in.T != WebrtcSignal {
		t.Fatalf("type = %v", in.T)
	}
	msg := Unwrap[WebrtcSignalMessage](in.Raw)
	if msg == nil {
		t.Fatal("second pass failed")
	}
	if msg.SignalType != SignalOffer || msg.SessionId != "s1" {
		t.Errorf("message: %+v", msg)
	}
	// the payload stays opaque
	if string(msg.Signal) != `{"sdp":"v=0"}` {
		t.Errorf("signal = %s", msg.Signal)
	}
}

func TestDecodeUntyped(t *testing.T) {
	// the device hello carries no discriminator
	in, err := Decode([]byte(`{"device_name":"Pixel","device_type":"mobile"}`))
	if err != nil {
		t.Fatal(err)
	}
	if in.T != "" {
		t.Errorf("type = %v", in.T)
	}
	hello := Unwrap[Hello](in.Raw)
	if hello == nil || hello.DeviceName != "Pixel" || hello.DeviceType != DeviceMobile {
		t.Errorf("hello: %+v", hello)
	}
}

func TestDecodeKeepsWholeFrame(t *testing.T) {
	// hostile or coincidental "raw" keys in the payload must not
	// displace the captured frame before the second pass
	frame := `{"type":"heartbeat","Raw":"bogus","raw":[1,2]}`
	in, err := Decode([]byte(frame))
	if err != nil {
		t.Fatal(err)
	}
	if in.T != Heartbeat {
		t.Fatalf("type = %v", in.T)
	}
	if string(in.Raw) != frame {
		t.Errorf("frame = %s", in.Raw)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{`{`, `[1,2]`, `"x"`, ``} {
		if _, err := Decode([]byte(frame)); err == nil {
			t.Errorf("accepted %q", frame)
		}
	}
	if got := Unwrap[Hello]([]byte(`{`)); got != nil {
		t.Errorf("unwrap of garbage: %+v", got)
	}
}

func TestErrorMessage(t *testing.T) {
	data, err := Marshal(NewError("device_offline", "target device is offline"))
	if err != nil {
		t.Fatal(err)
	}
	in, _ := Decode(data)
	if in.T != Error {
		t.Fatalf("type = %v", in.T)
	}
	msg := Unwrap[ErrorMessage](in.Raw)
	if msg.Code != "device_offline" {
		t.Errorf("code = %v", msg.Code)
	}
}
