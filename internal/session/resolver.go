package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCreateTimeout bounds a shared session create once it is detached from
// the request that started it.
const DefaultCreateTimeout = 30 * time.Second

// CreateFunc opens a new upstream conversation and returns its id.
type CreateFunc func(ctx context.Context) (string, error)

// Resolver looks up a sender's session and creates one on a miss. Concurrent
// misses for the same sender share a single CreateFunc call, so a burst of
// messages from a new sender opens exactly one upstream conversation.
type Resolver struct {
	store         Store
	group         singleflight.Group
	createTimeout time.Duration
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithCreateTimeout overrides DefaultCreateTimeout. Non-positive values are ignored.
func WithCreateTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.createTimeout = d
		}
	}
}

// NewResolver wraps store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	if store == nil {
		panic("session: store cannot be nil")
	}
	r := &Resolver{store: store, createTimeout: DefaultCreateTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type resolved struct {
	id      string
	created bool
}

// Resolve returns the session id for senderID. created is true when this call
// (or the flight it joined) created the session. A failed create stores nothing
// and the error is returned to every caller waiting on that sender.
//
// The create runs detached from any single caller's cancellation, bounded by the
// create timeout. A caller whose ctx ends stops waiting and gets ctx.Err(); the
// create still completes and stores its result for the others.
func (r *Resolver) Resolve(ctx context.Context, senderID string, create CreateFunc) (string, bool, error) {
	if senderID == "" {
		return "", false, errors.New("session: sender id required")
	}
	if id, ok := r.store.Get(senderID); ok {
		return id, false, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(senderID, func() (any, error) {
		if id, ok := r.store.Get(senderID); ok {
			return resolved{id: id}, nil
		}
		cctx, cancel := context.WithTimeout(flightCtx, r.createTimeout)
		defer cancel()
		id, err := create(cctx)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, errors.New("session: create returned empty session id")
		}
		stored := r.store.Put(senderID, id)
		return resolved{id: stored, created: stored == id}, nil
	})

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		v := res.Val.(resolved)
		return v.id, v.created, nil
	}
}

// Store returns the underlying store.
func (r *Resolver) Store() Store {
	return r.store
}
