package httputil

import (
	"sync"
	"testing"
	"time"
)

func TestLimiterPerIP(t *testing.T) {
	limiter := NewLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.Acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}

	if limiter.Acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}

	// Different IP should still work.
	if !limiter.Acquire("10.0.0.2") {
		t.Error("different IP should not be limited")
	}

	limiter.Release("10.0.0.1")
	if !limiter.Acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.Count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.Count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
	if c := limiter.Total(); c != 4 {
		t.Errorf("total = %d, want 4", c)
	}
}

func TestLimiterGlobalCap(t *testing.T) {
	limiter := NewLimiter(10, 2)
	if !limiter.Acquire("a") || !limiter.Acquire("b") {
		t.Fatal("first two acquires should succeed")
	}
	if limiter.Acquire("c") {
		t.Error("acquire beyond global cap should fail")
	}
	limiter.Release("a")
	if !limiter.Acquire("c") {
		t.Error("acquire after release should succeed")
	}
}

func TestLimiterReleaseUnknown(t *testing.T) {
	limiter := NewLimiter(1, 1)
	limiter.Release("10.0.0.9")
	if limiter.Total() != 0 {
		t.Errorf("total = %d after stray release", limiter.Total())
	}
	if !limiter.Acquire("10.0.0.1") {
		t.Error("stray release must not consume capacity")
	}
}

func TestLimiterConcurrent(t *testing.T) {
	limiter := NewLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Acquire("10.0.0.1") {
				defer limiter.Release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.Count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}
