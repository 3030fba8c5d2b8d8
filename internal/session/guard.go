package session

import "sync"

// Guard serializes access per case ID. The store itself performs no
// in-process locking; callers hold a Guard around Process/Resume so that at
// most one writer touches a case at a time.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*caseLock
}

type caseLock struct {
	mu   sync.Mutex
	refs int
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{locks: make(map[string]*caseLock)}
}

// Acquire blocks until the per-case lock is held and returns the release
// function. Locks for idle cases are reclaimed once released.
func (g *Guard) Acquire(caseID string) func() {
	g.mu.Lock()
	cl, ok := g.locks[caseID]
	if !ok {
		cl = &caseLock{}
		g.locks[caseID] = cl
	}
	cl.refs++
	g.mu.Unlock()

	cl.mu.Lock()

	return func() {
		cl.mu.Unlock()
		g.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(g.locks, caseID)
		}
		g.mu.Unlock()
	}
}
