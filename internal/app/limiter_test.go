package app

import (
	"sync"
	"testing"
)

func TestStudentLocks(t *testing.T) {
	l := NewStudentLocks()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("s1")
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d", maxSeen)
	}
	if n := l.held(); n != 0 {
		t.Fatalf("entries left = %d", n)
	}

	a := l.lock("a")
	b := l.lock("b") // different students never block each other
	if l.held() != 2 {
		t.Fatalf("held = %d", l.held())
	}
	a()
	b()
}
