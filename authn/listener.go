package authn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/AmmannChristian/go-extauth/user"
)

// EventListener observes authentication outcomes. Exactly one method is
// invoked per authentication attempt, synchronously and in registration order.
type EventListener interface {
	OnSuccess(ctx context.Context, u *user.InternalUser)
	OnDenied(ctx context.Context, err *DeniedError)
	OnError(ctx context.Context, err *InfrastructureError)
}

// ListenerFuncs implements EventListener with optional callbacks. Nil
// callbacks are no-ops.
type ListenerFuncs struct {
	Success func(ctx context.Context, u *user.InternalUser)
	Denied  func(ctx context.Context, err *DeniedError)
	Error   func(ctx context.Context, err *InfrastructureError)
}

// OnSuccess calls Success if set.
func (l ListenerFuncs) OnSuccess(ctx context.Context, u *user.InternalUser) {
	if l.Success != nil {
		l.Success(ctx, u)
	}
}

// OnDenied calls Denied if set.
func (l ListenerFuncs) OnDenied(ctx context.Context, err *DeniedError) {
	if l.Denied != nil {
		l.Denied(ctx, err)
	}
}

// OnError calls Error if set.
func (l ListenerFuncs) OnError(ctx context.Context, err *InfrastructureError) {
	if l.Error != nil {
		l.Error(ctx, err)
	}
}

type listenerEntry struct {
	listener EventListener
}

// listenerRegistry holds an immutable snapshot that is swapped on every
// mutation, so readers never lock.
type listenerRegistry struct {
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[[]*listenerEntry]
}

func (r *listenerRegistry) add(listener EventListener) func() {
	entry := &listenerEntry{listener: listener}

	r.mu.Lock()
	current := r.load()
	next := make([]*listenerEntry, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, entry)
	r.snapshot.Store(&next)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(entry) })
	}
}

func (r *listenerRegistry) remove(entry *listenerEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	next := make([]*listenerEntry, 0, len(current))
	for _, e := range current {
		if e != entry {
			next = append(next, e)
		}
	}
	r.snapshot.Store(&next)
}

func (r *listenerRegistry) load() []*listenerEntry {
	if p := r.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

func (r *listenerRegistry) listeners() []EventListener {
	entries := r.load()
	result := make([]EventListener, len(entries))
	for i, e := range entries {
		result[i] = e.listener
	}
	return result
}
