package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLockSerializesSameKey(t *testing.T) {
	l := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.With("c1", func() error {
				v := counter
				time.Sleep(time.Microsecond)
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("lost updates: %d", counter)
	}
	if l.size() != 0 {
		t.Fatalf("entries leaked: %d", l.size())
	}
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	l := New()
	unlock := l.Lock("a")
	defer unlock()
	done := make(chan struct{})
	go func() {
		u := l.Lock("b")
		u()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
}
