package app

import "sync"

// StudentLocks serializes ledger writes per student so two concurrent
// payments cannot both allocate against the same outstanding amount.
// Entries are dropped once nobody holds or waits for them.
type StudentLocks struct {
	mu   sync.Mutex
	byID map[string]*studentLock
}

type studentLock struct {
	sync.Mutex
	refs int
}

func NewStudentLocks() *StudentLocks {
	return &StudentLocks{byID: make(map[string]*studentLock)}
}

func (l *StudentLocks) lock(studentID string) func() {
	l.mu.Lock()
	m, ok := l.byID[studentID]
	if !ok {
		m = &studentLock{}
		l.byID[studentID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		if m.refs--; m.refs == 0 {
			delete(l.byID, studentID)
		}
		l.mu.Unlock()
	}
}

func (l *StudentLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byID)
}
