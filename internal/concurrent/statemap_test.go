package concurrent

import (
	"sync"
	"testing"
)

func TestKeyedStateMapInsertGet(t *testing.T) {
	m := NewKeyedStateMap[string, int]()
	m.Insert("a", 1)
	if v := m.GetArc("a"); v == nil || *v != 1 {
		t.Fatalf("expected 1, got %v", v)
	}
	if v := m.GetArc("missing"); v != nil {
		t.Fatalf("expected nil, got %v", v)
	}
}

func TestKeyedStateMapRemoveTake(t *testing.T) {
	m := NewKeyedStateMap[string, int]()
	m.Insert("a", 1)
	m.Remove("a")
	if v := m.GetArc("a"); v != nil {
		t.Fatalf("expected removed key to be absent")
	}

	m.Insert("b", 2)
	v := m.Take("b")
	if v == nil || *v != 2 {
		t.Fatalf("expected Take to return 2, got %v", v)
	}
	if v := m.GetArc("b"); v != nil {
		t.Fatalf("expected key gone after Take")
	}
	if v := m.Take("b"); v != nil {
		t.Fatalf("expected second Take to return nil")
	}
}

func TestKeyedStateMapTryInsertDeferredReturningRunsOnce(t *testing.T) {
	m := NewKeyedStateMap[string, int]()
	var calls int
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.TryInsertDeferredReturning("k", func() int {
				mu.Lock()
				calls++
				mu.Unlock()
				return 7
			})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected make to run exactly once, ran %d times", calls)
	}
	v := m.GetArc("k")
	if v == nil || *v != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
}

func TestKeyedStateMapList(t *testing.T) {
	m := NewKeyedStateMap[string, int]()
	m.Insert("a", 1)
	m.Insert("b", 2)
	keys := m.List()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}
