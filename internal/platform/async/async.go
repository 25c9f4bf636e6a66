// Package async runs fire-and-forget work on its own goroutine with panic recovery at the task boundary.
package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Group spawns tasks and lets the owner wait for the ones still running.
// The zero value is not usable; call NewGroup.
type Group struct {
	log zerolog.Logger
	wg  sync.WaitGroup
}

// NewGroup returns a Group that logs recovered panics to log.
func NewGroup(log zerolog.Logger) *Group {
	return &Group{log: log}
}

// Go runs fn on a new goroutine. The caller is never blocked and never sees the outcome.
// A panic in fn is recovered and logged with name.
func (g *Group) Go(ctx context.Context, name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.log.Error().
					Str("task", name).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("async: task panicked")
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until every spawned task has returned or ctx is done. Returns ctx.Err() on timeout.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
