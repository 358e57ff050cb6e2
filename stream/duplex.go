package stream

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sagarc03/sluice"
)

var (
	errDestroyed    = errors.New("stream destroyed")
	errCloseTimeout = errors.New("stream did not close in time")
)

type opKind int

const (
	opRespond opKind = iota
	opWrite
	opEnd
)

type writeOp struct {
	kind   opKind
	status int
	header http.Header
	chunk  []byte
}

// Duplex guards one request stream: the request body as its readable side
// and the response as its writable side.
//
// Writes never block. They are queued and flushed by a single writer
// goroutine, and Write reports SuccessDrain once the queue holds more than
// the high-water mark. The Duplex is destroyed when the peer goes away, a
// transport write fails, Destroy is called, or an ended response finishes
// flushing.
type Duplex struct {
	w   http.ResponseWriter
	rc  *http.ResponseController
	in  *Reader
	log *slog.Logger

	highWaterMark int
	closeTimeout  time.Duration

	mu            sync.Mutex
	destroyed     bool
	headersSent   bool
	writableEnded bool
	needDrain     bool
	queue         []writeOp
	buffered      int
	drainCbs      []func()
	destroyCbs    []func()
	closeDog      *Watchdog

	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// NewDuplex starts guarding w and r. The caller must not use w or r.Body
// directly afterwards, and must call Wait before returning from its
// http.Handler.
func NewDuplex(w http.ResponseWriter, r *http.Request, opts ...Option) *Duplex {
	o := buildOptions(bodyChunkSize, opts)

	d := &Duplex{
		w:             w,
		rc:            http.NewResponseController(w),
		log:           o.logger,
		highWaterMark: o.highWaterMark,
		closeTimeout:  o.closeTimeout,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		exited:        make(chan struct{}),
	}

	// HTTP/1 otherwise stops body reads once the response starts.
	if err := d.rc.EnableFullDuplex(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		d.log.Debug("enable full duplex", "err", err)
	}

	body := r.Body
	if body == nil {
		body = http.NoBody
	}
	d.in = newBodyReader(body, o, d.readFailed)

	go d.writeLoop()
	go d.watch(r.Context())

	return d
}

// Respond queues the status line and headers. Returns Success,
// FailedDestroyed, FailedWritableEnded or FailedHeadersSent.
func (d *Duplex) Respond(status int, header http.Header) sluice.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	if o := d.writableOutcome(); o != sluice.Success {
		return reject(d.log, o, "cannot respond")
	}
	if d.headersSent {
		return reject(d.log, sluice.FailedHeadersSent, "cannot respond")
	}

	d.headersSent = true
	d.enqueue(writeOp{kind: opRespond, status: status, header: header.Clone()})
	return sluice.Success
}

// Write queues a copy of a body chunk, so the caller may reuse chunk once
// Write returns. Returns Success, SuccessDrain, FailedDestroyed,
// FailedWritableEnded or FailedHeadersNotSent. After SuccessDrain the caller
// should wait for OnceDrain before writing more.
func (d *Duplex) Write(chunk []byte) sluice.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	if o := d.writableOutcome(); o != sluice.Success {
		return reject(d.log, o, "cannot write")
	}
	if !d.headersSent {
		return reject(d.log, sluice.FailedHeadersNotSent, "cannot write")
	}

	d.buffered += len(chunk)
	d.enqueue(writeOp{kind: opWrite, chunk: bytes.Clone(chunk)})

	if d.buffered >= d.highWaterMark {
		d.needDrain = true
		return sluice.SuccessDrain
	}
	return sluice.Success
}

// OnceDrain registers a callback fired once when the write queue empties.
// If there is no write pressure the callback runs immediately.
// Returns Success, FailedDestroyed or FailedWritableEnded.
func (d *Duplex) OnceDrain(cb func()) sluice.Outcome {
	d.mu.Lock()
	if o := d.writableOutcome(); o != sluice.Success {
		d.mu.Unlock()
		return reject(d.log, o, "cannot register drain callback")
	}
	if d.needDrain {
		d.drainCbs = append(d.drainCbs, cb)
		d.mu.Unlock()
		return sluice.Success
	}
	d.mu.Unlock()

	cb()
	return sluice.Success
}

// EndAndDestroyDuplex queues the end of the response. The Duplex is
// destroyed once everything queued has been flushed, or by force after the
// close timeout. Returns Success, FailedDestroyed, FailedWritableEnded or
// FailedHeadersNotSent.
func (d *Duplex) EndAndDestroyDuplex() sluice.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	if o := d.writableOutcome(); o != sluice.Success {
		return reject(d.log, o, "cannot end")
	}
	if !d.headersSent {
		return reject(d.log, sluice.FailedHeadersNotSent, "cannot end")
	}

	d.writableEnded = true
	d.enqueue(writeOp{kind: opEnd})
	d.closeDog = StartWatchdog(d.closeTimeout, func() {
		if d.destroy(errCloseTimeout) {
			d.log.Error("ended stream did not close, destroyed", "timeout", d.closeTimeout)
		}
	})
	return sluice.Success
}

// OnDuplexDestroy registers a callback fired exactly once when the Duplex
// is destroyed. Returns Success or FailedDestroyed.
func (d *Duplex) OnDuplexDestroy(cb func()) sluice.Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return reject(d.log, sluice.FailedDestroyed, "cannot register destroy callback")
	}

	d.destroyCbs = append(d.destroyCbs, cb)
	return sluice.Success
}

// Destroy tears the stream down without finishing the response.
// Returns Success or FailedDestroyed.
func (d *Duplex) Destroy() sluice.Outcome {
	if !d.destroy(errDestroyed) {
		return reject(d.log, sluice.FailedDestroyed, "cannot destroy")
	}
	d.log.Debug("stream destroyed")
	return sluice.Success
}

// OnData registers a request body chunk callback and starts reading the
// body. Returns Success, FailedDestroyed or FailedReadableEnded.
func (d *Duplex) OnData(cb func(chunk []byte)) sluice.Outcome {
	if d.IsDestroyed() {
		return reject(d.log, sluice.FailedDestroyed, "cannot register data callback")
	}
	return d.in.OnData(cb)
}

// OnEnd registers a callback fired once the request body has been read.
// Returns Success, FailedDestroyed or FailedReadableEnded.
func (d *Duplex) OnEnd(cb func()) sluice.Outcome {
	if d.IsDestroyed() {
		return reject(d.log, sluice.FailedDestroyed, "cannot register end callback")
	}
	return d.in.OnEnd(cb)
}

// SetEncoding sets how request body chunks are cut.
func (d *Duplex) SetEncoding(enc Encoding) sluice.Outcome {
	if d.IsDestroyed() {
		return reject(d.log, sluice.FailedDestroyed, "cannot set encoding")
	}
	return d.in.SetEncoding(enc)
}

// Pause stops request body delivery.
func (d *Duplex) Pause() sluice.Outcome {
	if d.IsDestroyed() {
		return reject(d.log, sluice.FailedDestroyed, "cannot pause")
	}
	return d.in.Pause()
}

// Resume restarts request body delivery.
func (d *Duplex) Resume() sluice.Outcome {
	if d.IsDestroyed() {
		return reject(d.log, sluice.FailedDestroyed, "cannot resume")
	}
	return d.in.Resume()
}

// HeadersSent reports whether Respond has succeeded.
func (d *Duplex) HeadersSent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.headersSent
}

// IsDestroyed reports whether the stream has been destroyed.
func (d *Duplex) IsDestroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// IsEndedOrDestroyed reports whether the writable side accepts no more data.
func (d *Duplex) IsEndedOrDestroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed || d.writableEnded
}

// Done is closed when the Duplex is destroyed.
func (d *Duplex) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the Duplex is destroyed and the writer goroutine has
// stopped touching the http.ResponseWriter.
func (d *Duplex) Wait() {
	<-d.done
	<-d.exited
}

// writableOutcome must be called with mu held.
func (d *Duplex) writableOutcome() sluice.Outcome {
	switch {
	case d.destroyed:
		return sluice.FailedDestroyed
	case d.writableEnded:
		return sluice.FailedWritableEnded
	default:
		return sluice.Success
	}
}

// enqueue must be called with mu held.
func (d *Duplex) enqueue(op writeOp) {
	d.queue = append(d.queue, op)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// destroy runs the single teardown path. A nil cause is a normal close after
// the response was flushed; any other cause also aborts pending transport
// writes. It reports whether this call did the teardown.
func (d *Duplex) destroy(cause error) bool {
	// Silence the readable side first so no chunk is delivered after the
	// Duplex reports destroyed.
	d.in.destroy()

	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return false
	}

	d.destroyed = true
	d.queue = nil
	d.buffered = 0
	d.drainCbs = nil
	cbs := d.destroyCbs
	d.destroyCbs = nil
	dog := d.closeDog
	d.mu.Unlock()

	dog.Stop()
	if cause != nil {
		if err := d.rc.SetWriteDeadline(time.Now()); err != nil && !errors.Is(err, http.ErrNotSupported) {
			d.log.Debug("abort stream writes", "err", err)
		}
	}
	close(d.done)

	for _, cb := range cbs {
		cb()
	}
	return true
}

func (d *Duplex) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		if d.destroy(ctx.Err()) {
			d.log.Info("peer closed stream, destroyed", "err", context.Cause(ctx))
		}
	case <-d.done:
	}
}

func (d *Duplex) readFailed(err error) {
	if d.destroy(err) {
		d.log.Info("stream read failed, destroyed", "err", err)
	}
}

func (d *Duplex) writeLoop() {
	defer close(d.exited)

	for {
		op, ok := d.next()
		if !ok {
			return
		}

		if err := d.apply(op); err != nil {
			if d.destroy(err) {
				d.log.Info("stream write failed, destroyed", "err", err)
			}
			return
		}

		if op.kind == opEnd {
			d.destroy(nil)
			return
		}
		d.flushed(op)
	}
}

func (d *Duplex) next() (writeOp, bool) {
	for {
		d.mu.Lock()
		if d.destroyed {
			d.mu.Unlock()
			return writeOp{}, false
		}
		if len(d.queue) > 0 {
			op := d.queue[0]
			d.queue[0] = writeOp{}
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return op, true
		}
		d.mu.Unlock()

		select {
		case <-d.wake:
		case <-d.done:
		}
	}
}

func (d *Duplex) apply(op writeOp) error {
	switch op.kind {
	case opRespond:
		h := d.w.Header()
		for k, vs := range op.header {
			h[k] = vs
		}
		d.w.WriteHeader(op.status)
		return d.flush()
	case opWrite:
		if _, err := d.w.Write(op.chunk); err != nil {
			return err
		}
		return d.flush()
	default:
		return d.flush()
	}
}

func (d *Duplex) flush() error {
	err := d.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func (d *Duplex) flushed(op writeOp) {
	if op.kind != opWrite {
		return
	}

	d.mu.Lock()
	d.buffered -= len(op.chunk)
	var cbs []func()
	if d.buffered <= 0 && d.needDrain {
		d.buffered = 0
		d.needDrain = false
		cbs = d.drainCbs
		d.drainCbs = nil
	}
	d.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}
