package cache

import (
	"testing"
	"time"

	"finanzen/internal/core"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "w")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired too early")
	}

	now = now.Add(time.Minute)
	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("CleanExpired() = %d, want 2", removed)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
}

func TestCategoryCache(t *testing.T) {
	c := NewCategoryCache(10, time.Minute)
	cats := []core.Category{{Name: "Miete"}, {Name: "Gehalt"}}
	c.Put("u1", cats)
	cats[0].Name = "changed"

	got, ok := c.Get("u1")
	if !ok || len(got) != 2 || got[0].Name != "Miete" {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}
	got[1].Name = "mutated"
	again, _ := c.Get("u1")
	if again[1].Name != "Gehalt" {
		t.Error("cached slice was mutated through a returned copy")
	}

	c.Invalidate("u1")
	if _, ok := c.Get("u1"); ok {
		t.Error("entry should be gone after Invalidate")
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager(nil)
	m.Register(NewCategoryCache(1, time.Millisecond))
	m.StartCleanup(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.Stop()
	m.Stop()
}
