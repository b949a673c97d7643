package signaling

import (
	"testing"
	"time"
)

func TestPresenceLifecycle(t *testing.T) {
	d := NewDirectory()
	c, _ := newConn("alice", "a1")

	if err := d.Claim(c); err != nil {
		t.Fatalf("claim: %v", err)
	}
	rec, ok := d.Resolve("a1")
	if !ok || !rec.Online || rec.UserId != "alice" {
		t.Fatalf("online record: %+v", rec)
	}

	d.MarkOffline("a1")
	rec, ok = d.Resolve("a1")
	if !ok {
		t.Fatalf("offline device disappeared from the directory")
	}
	if rec.Online {
		t.Errorf("record still online after disconnect")
	}

	if _, ok := d.FreshestOnline("alice", ""); ok {
		t.Errorf("offline device picked as a pairing target")
	}
}

func TestPresenceFreshestOnline(t *testing.T) {
	d := NewDirectory()
	older, _ := newConn("alice", "a1")
	newer, _ := newConn("alice", "a2")

	d.Claim(older)
	time.Sleep(time.Millisecond)
	d.Claim(newer)

	rec, ok := d.FreshestOnline("alice", "")
	if !ok || rec.DeviceId != "a2" {
		t.Fatalf("freshest = %+v", rec)
	}
}

func TestDevicesVisibleTo(t *testing.T) {
	d := NewDirectory()
	a1, _ := newConn("alice", "a1")
	a2, _ := newConn("alice", "a2")
	b1, _ := newConn("bob", "b1")

	d.Claim(a1)
	time.Sleep(time.Millisecond)
	d.Claim(a2)
	d.Claim(b1)
	time.Sleep(time.Millisecond)
	d.MarkOffline("a2")

	list := d.DevicesVisibleTo("alice")
	if len(list) != 2 {
		t.Fatalf("devices = %+v", list)
	}
	// offline device stays listed, most recently active first
	if list[0].DeviceId != "a2" || list[0].Online {
		t.Errorf("head of the list: %+v", list[0])
	}
	if list[1].DeviceId != "a1" || !list[1].Online {
		t.Errorf("tail of the list: %+v", list[1])
	}
	for _, dev := range list {
		if dev.DeviceId == "b1" {
			t.Errorf("another user's device leaked into the list")
		}
	}

	if d.OnlineCount() != 2 {
		t.Errorf("online count = %d", d.OnlineCount())
	}
}

func TestPresenceFreshestOnlineExcept(t *testing.T) {
	d := NewDirectory()
	a1, _ := newConn("alice", "a1")
	a2, _ := newConn("alice", "a2")
	d.Claim(a1)
	time.Sleep(time.Millisecond)
	d.Claim(a2)

	rec, ok := d.FreshestOnline("alice", "a2")
	if !ok || rec.DeviceId != "a1" {
		t.Fatalf("freshest except a2 = %+v", rec)
	}
	if _, ok := d.FreshestOnline("alice", "a1"); !ok {
		t.Errorf("exclusion dropped the other device too")
	}
}

func TestPresenceClaimOwnership(t *testing.T) {
	d := NewDirectory()
	owner, _ := newConn("alice", "a1")
	if err := d.Claim(owner); err != nil {
		t.Fatalf("claim: %v", err)
	}

	impostor, _ := newConn("bob", "a1")
	if err := d.Claim(impostor); err != ErrNotAuthorized {
		t.Fatalf("foreign claim: err = %v", err)
	}
	rec, _ := d.Resolve("a1")
	if rec.UserId != "alice" {
		t.Fatalf("record reassigned: %+v", rec)
	}

	// ownership survives the owner going offline
	d.MarkOffline("a1")
	if err := d.Claim(impostor); err != ErrNotAuthorized {
		t.Errorf("offline record reclaimed by another user: %v", err)
	}
	again, _ := newConn("alice", "a1")
	if err := d.Claim(again); err != nil {
		t.Errorf("owner reclaim: %v", err)
	}
}
