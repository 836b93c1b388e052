package service

import "sync"

type streamGate struct {
	mu      sync.Mutex
	active  map[string]struct{}
	waiters map[string][]func()
}

// NewStreamGate constructs an in-memory [StreamGate]. Streaming state is
// process-local; a restart mid-stream simply leaves the partial record to the
// next save.
func NewStreamGate() StreamGate {
	return &streamGate{
		active:  map[string]struct{}{},
		waiters: map[string][]func(){},
	}
}

// Begin implements [StreamGate].
func (g *streamGate) Begin(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[id] = struct{}{}
}

// End implements [StreamGate]. Callbacks run outside the lock, in
// registration order, so a callback may safely call back into the gate.
func (g *streamGate) End(id string) {
	g.mu.Lock()
	delete(g.active, id)
	callbacks := g.waiters[id]
	delete(g.waiters, id)
	g.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// IsActive implements [StreamGate].
func (g *streamGate) IsActive(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[id]
	return ok
}

// OnEnd implements [StreamGate].
func (g *streamGate) OnEnd(id string, cb func()) {
	g.mu.Lock()
	if _, ok := g.active[id]; !ok {
		g.mu.Unlock()
		cb()
		return
	}
	g.waiters[id] = append(g.waiters[id], cb)
	g.mu.Unlock()
}
