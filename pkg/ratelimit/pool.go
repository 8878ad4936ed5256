package ratelimit

import "sync"

// ConnectionPool tracks a bounded set of identifiers holding a slot.
type ConnectionPool struct {
	mu     sync.Mutex
	size   int
	active map[string]struct{}
}

// NewConnectionPool creates a pool with size slots. Panics if size <= 0.
func NewConnectionPool(size int) *ConnectionPool {
	if size <= 0 {
		panic("ratelimit: connection pool size must be positive")
	}
	return &ConnectionPool{size: size, active: make(map[string]struct{}, size)}
}

// Acquire takes a slot for id. It returns false, without side effects, when
// every slot is taken. An id that already holds a slot acquires again
// without consuming another one.
func (p *ConnectionPool) Acquire(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.active[id]; ok {
		return true
	}
	if len(p.active) >= p.size {
		return false
	}
	p.active[id] = struct{}{}
	return true
}

// Release frees the slot held by id. Releasing an id that holds no slot is a no-op.
func (p *ConnectionPool) Release(id string) {
	p.mu.Lock()
	delete(p.active, id)
	p.mu.Unlock()
}

// InUse returns the number of held slots.
func (p *ConnectionPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Size returns the pool capacity.
func (p *ConnectionPool) Size() int {
	return p.size
}
