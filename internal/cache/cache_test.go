package cache

import (
	"testing"
	"time"
)

func TestHasSet(t *testing.T) {
	c := New()
	if c.Has(EventKey("evt_1")) {
		t.Error("empty cache reports key present")
	}
	c.Set(EventKey("evt_1"), EventTTL)
	if !c.Has(EventKey("evt_1")) {
		t.Error("key missing after Set")
	}
	if c.Has(EventKey("evt_2")) {
		t.Error("unrelated key present")
	}
}

func TestExpiry(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("event:evt_1", time.Hour)
	now = now.Add(59 * time.Minute)
	if !c.Has("event:evt_1") {
		t.Error("key expired early")
	}
	now = now.Add(2 * time.Minute)
	if c.Has("event:evt_1") {
		t.Error("key survived past TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after lazy eviction, want 0", c.Len())
	}
}

func TestSetIfAbsent(t *testing.T) {
	c := New()
	now := time.Now()
	c.now = func() time.Time { return now }

	key := PaidEmailKey("ord_1")
	if !c.SetIfAbsent(key, PaidEmailTTL) {
		t.Error("first SetIfAbsent did not claim the key")
	}
	if c.SetIfAbsent(key, PaidEmailTTL) {
		t.Error("second SetIfAbsent claimed an existing key")
	}

	now = now.Add(PaidEmailTTL + time.Minute)
	if !c.SetIfAbsent(key, PaidEmailTTL) {
		t.Error("SetIfAbsent did not reclaim an expired key")
	}
}
