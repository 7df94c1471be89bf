package lockmap

import (
	"sync"
	"testing"
)

func TestLockMapSerializesPerKey(t *testing.T) {
	var m Map[string]
	counters := map[string]*int{"a": new(int), "b": new(int)}
	var wg sync.WaitGroup
	for range 50 {
		for key, cnt := range counters {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := m.Lock(key)
				defer unlock()
				v := *cnt
				v++
				*cnt = v
			}()
		}
	}
	wg.Wait()
	for key, cnt := range counters {
		if *cnt != 50 {
			t.Fatalf("key %v: expected 50, got %v", key, *cnt)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("entries leaked: %v", m.Len())
	}
}
