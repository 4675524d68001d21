package resilience

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// SingleFlight collapses concurrent calls for the same key into one execution.
type SingleFlight struct {
	mu    sync.Mutex
	calls map[string]*call
}

type call struct {
	done chan struct{}
	val  any
	err  error
	dups int
}

// Do runs fn once per in-flight key. shared reports whether the result was
// handed to more than one caller. A panic in fn is returned as an error to
// every caller.
func (g *SingleFlight) Do(key string, fn func() (any, error)) (v any, err error, shared bool) {
	return g.DoContext(context.Background(), key, fn)
}

// DoContext is Do, except that a waiting caller gives up when ctx is done.
// The leader keeps running so that other waiters still receive its result.
func (g *SingleFlight) DoContext(ctx context.Context, key string, fn func() (any, error)) (any, error, bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call)
	}

	if c, ok := g.calls[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			return nil, ctx.Err(), true
		}
	}

	c := &call{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	var catcher panics.Catcher
	catcher.Try(func() {
		c.val, c.err = fn()
	})
	if recovered := catcher.Recovered(); recovered != nil {
		c.val, c.err = nil, recovered.AsError()
	}

	g.mu.Lock()
	delete(g.calls, key)
	shared := c.dups > 0
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err, shared
}
