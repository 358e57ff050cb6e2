package sluice

import (
	"context"
	"sync"
)

// Body is a single-resolution future holding the buffered request payload.
//
// It resolves with the full text once the request stream ends, or with
// whatever arrived so far if the stream is destroyed first. A partial body
// is not an error: reading the body is optional for handlers.
type Body struct {
	once sync.Once
	done chan struct{}
	text string
}

// NewBody returns an unresolved Body and the function that resolves it.
// Only the first call to resolve has any effect.
func NewBody() (*Body, func(text string)) {
	b := &Body{done: make(chan struct{})}
	return b, b.resolve
}

func (b *Body) resolve(text string) {
	b.once.Do(func() {
		b.text = text
		close(b.done)
	})
}

// Done is closed once the body has resolved.
func (b *Body) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the body resolves and returns its text. It returns
// ctx.Err() only if ctx ends before the body resolves.
func (b *Body) Wait(ctx context.Context) (string, error) {
	select {
	case <-b.done:
		return b.text, nil
	default:
	}

	select {
	case <-b.done:
		return b.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
