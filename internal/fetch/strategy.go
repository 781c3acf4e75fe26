package fetch

import (
	"context"
	"sync"
)

// Strategy acquires a body and hands it to done. Both variants deliver the
// same Response; only the point at which done runs differs.
type Strategy interface {
	Fetch(req Request, done func(Response, error))
}

// Poster schedules fn on the loader's thread.
type Poster interface {
	Post(fn func())
}

// Sync blocks the caller for the duration of the fetch and calls done before
// returning.
type Sync struct {
	Getter   Getter
	Recorder Recorder
	// Context bounds every fetch; nil means context.Background.
	Context context.Context
}

// Fetch performs the request and calls done inline.
func (s *Sync) Fetch(req Request, done func(Response, error)) {
	ctx := s.Context
	if ctx == nil {
		ctx = context.Background()
	}
	req.Async = false
	done(do(ctx, s.Getter, req, s.Recorder))
}

// Async runs each fetch on its own goroutine and posts done back to the
// loader's thread. done never runs before Fetch returns.
type Async struct {
	getter   Getter
	poster   Poster
	recorder Recorder
	ctx      context.Context
	wg       sync.WaitGroup
}

// NewAsync creates an async strategy. Fetches in flight observe ctx.
func NewAsync(ctx context.Context, g Getter, p Poster, rec Recorder) *Async {
	return &Async{
		getter:   g,
		poster:   p,
		recorder: rec,
		ctx:      ctx,
	}
}

// Fetch starts the request in the background.
func (a *Async) Fetch(req Request, done func(Response, error)) {
	req.Async = true
	a.wg.Go(func() {
		resp, err := do(a.ctx, a.getter, req, a.recorder)
		a.poster.Post(func() { done(resp, err) })
	})
}

// Wait blocks until every started fetch has posted its result.
func (a *Async) Wait() {
	a.wg.Wait()
}
