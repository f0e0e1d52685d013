// Package callgroup provides call deduplication by key.
//
// If multiple goroutines request the same key concurrently, only one
// executes the function. The others wait and receive the same result.
// Once the function returns, the key is forgotten and future calls
// trigger a new execution. Used to keep an expensive build, such as
// indexing a large file, from running twice for the same target.
package callgroup

import "sync"

// Group deduplicates concurrent function calls by key.
type Group[K comparable] struct {
	mu    sync.Mutex
	calls map[K]*call
}

type call struct {
	done chan struct{}
	err  error
}

// Do executes fn if no call is in flight for key, then returns its error.
// If a call is already in flight, Do blocks until it finishes and returns
// that call's error instead.
func (g *Group[K]) Do(key K, fn func() error) error {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call)
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		<-c.done
		return c.err
	}

	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)

	return c.err
}
