package ids

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestCounterIsMonotonic(t *testing.T) {
	c := NewCounter("kf-")
	if got := c.Next(); got != "kf-1" {
		t.Fatalf("first id = %q, want kf-1", got)
	}
	if got := c.Next(); got != "kf-2" {
		t.Fatalf("second id = %q, want kf-2", got)
	}
}

func TestCounterConcurrentUnique(t *testing.T) {
	c := NewCounter("")
	const workers, per = 8, 100

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				id := c.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != workers*per {
		t.Fatalf("expected %d unique ids, got %d", workers*per, len(seen))
	}
}

func TestUUIDParses(t *testing.T) {
	id := UUID{}.Next()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("uuid generator produced %q: %v", id, err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"", false},
		{"uuid", false},
		{"Counter", false},
		{"sequential", true},
	}
	for _, tc := range tests {
		gen, err := New(tc.format)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("New(%q) expected error", tc.format)
			}
			continue
		}
		if err != nil || gen == nil {
			t.Fatalf("New(%q) = %v, %v", tc.format, gen, err)
		}
	}
}
