package com

import (
	"sync"
	"testing"
)

func TestMap(t *testing.T) {
	m := NewMap[string, int]()
	if !m.IsEmpty() {
		t.Fatalf("fresh map is not empty")
	}
	m.Put("a", 1)
	m.Put("b", 2)
	m.Put("a", 3)
	if m.Len() != 2 {
		t.Errorf("len = %v", m.Len())
	}
	if v, err := m.Find("a"); err != nil || v != 3 {
		t.Errorf("find = %v, %v", v, err)
	}
	if _, err := m.Find(""); err != ErrNotFound {
		t.Errorf("empty key: %v", err)
	}
	if v, err := m.FindBy(func(v int) bool { return v == 2 }); err != nil || v != 2 {
		t.Errorf("find by = %v, %v", v, err)
	}
	m.RemoveByKey("a")
	if m.Has("a") {
		t.Errorf("removed key still present")
	}
}

func TestMapConcurrent(t *testing.T) {
	m := NewMap[int, int]()
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Put(i, i)
			m.ForEach(func(int) {})
		}(i)
	}
	wg.Wait()
	if m.Len() != 100 {
		t.Errorf("len = %v", m.Len())
	}
}

func TestUid(t *testing.T) {
	u := NewUid()
	if u.IsEmpty() {
		t.Fatalf("fresh uid is empty")
	}
	back, err := UidFrom(u.String())
	if err != nil || back != u {
		t.Errorf("round trip: %v, %v", back, err)
	}
	if len(u.Short()) >= len(u.String()) {
		t.Errorf("short form isn't short: %v", u.Short())
	}
	if !NilUid.IsEmpty() {
		t.Errorf("nil uid not empty")
	}
}
