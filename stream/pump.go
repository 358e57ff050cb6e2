package stream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sagarc03/sluice"
)

type pipe struct {
	src *Reader
	dst *Duplex
	log *slog.Logger

	mu       sync.Mutex
	resolved bool
	result   chan sluice.Outcome
}

// Pipe moves everything src produces into dst and ends dst after src ends.
// dst must already have sent its headers. Pipe blocks until the transfer
// resolves and returns:
//
//   - Success once dst was ended after the last chunk
//   - FailedHeadersNotSent if dst had no headers; src is destroyed
//   - FailedNoFurtherAction if either side went away first, or ctx ended;
//     src is destroyed and dst is ended or destroyed
//
// Backpressure from dst pauses src until dst drains.
func Pipe(ctx context.Context, src *Reader, dst *Duplex) sluice.Outcome {
	p := &pipe{
		src:    src,
		dst:    dst,
		log:    dst.log,
		result: make(chan sluice.Outcome, 1),
	}

	if !dst.OnDuplexDestroy(p.sinkDestroyed).OK() {
		p.sinkDestroyed()
		return <-p.result
	}

	registered := src.OnDestroy(p.sourceDestroyed).OK() &&
		src.OnEnd(p.sourceEnded).OK() &&
		src.OnData(p.chunk).OK()
	if !registered {
		p.sourceDestroyed()
	}

	select {
	case o := <-p.result:
		return o
	case <-ctx.Done():
		if p.claim() {
			src.Destroy()
			dst.Destroy()
			p.result <- sluice.FailedNoFurtherAction
		}
		return <-p.result
	}
}

// claim reports whether the caller is the one to resolve the pipe.
func (p *pipe) claim() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved {
		return false
	}
	p.resolved = true
	return true
}

func (p *pipe) isResolved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}

func (p *pipe) chunk(chunk []byte) {
	if p.isResolved() {
		return
	}

	switch o := p.dst.Write(chunk); o {
	case sluice.Success:
	case sluice.SuccessDrain:
		p.src.Pause()
		if !p.dst.OnceDrain(p.drained).OK() {
			p.abort(sluice.FailedNoFurtherAction)
		}
	case sluice.FailedHeadersNotSent:
		p.abort(o)
	default:
		p.abort(sluice.FailedNoFurtherAction)
	}
}

func (p *pipe) drained() {
	p.src.Resume()
}

func (p *pipe) sourceEnded() {
	if !p.claim() {
		return
	}

	switch o := p.dst.EndAndDestroyDuplex(); o {
	case sluice.Success:
		p.result <- sluice.Success
	case sluice.FailedHeadersNotSent:
		p.src.Destroy()
		p.result <- o
	default:
		p.src.Destroy()
		p.result <- sluice.FailedNoFurtherAction
	}
}

func (p *pipe) sourceDestroyed() {
	if !p.claim() {
		return
	}

	p.log.Warn("pipe source destroyed before it ended")
	if !p.dst.IsEndedOrDestroyed() {
		if p.dst.HeadersSent() {
			p.dst.EndAndDestroyDuplex()
		} else {
			p.dst.Destroy()
		}
	}
	p.result <- sluice.FailedNoFurtherAction
}

func (p *pipe) sinkDestroyed() {
	p.abort(sluice.FailedNoFurtherAction)
}

func (p *pipe) abort(o sluice.Outcome) {
	if !p.claim() {
		return
	}
	p.src.Destroy()
	p.result <- o
}
