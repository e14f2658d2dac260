package dht

import "testing"

func TestResultCacheGetPut(t *testing.T) {
	c := newResultCache(2)
	if _, ok := c.get("k"); ok {
		t.Fatal("expected empty cache miss")
	}
	c.put("k", "v")
	v, ok := c.get("k")
	if !ok || v != "v" {
		t.Fatalf("expected hit v, got ok=%v v=%q", ok, v)
	}
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newResultCache(1)
	c.put("a", "1")
	c.put("b", "2") // evicts "a"
	if _, ok := c.get("a"); ok {
		t.Fatal("expected 'a' to be evicted once capacity exceeded")
	}
	if v, ok := c.get("b"); !ok || v != "2" {
		t.Fatalf("expected 'b' to remain cached, got ok=%v v=%q", ok, v)
	}
}
