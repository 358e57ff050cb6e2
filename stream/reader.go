package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/sagarc03/sluice"
)

// Encoding selects how chunks are cut before they reach OnData.
type Encoding string

const (
	// EncodingNone delivers raw byte chunks.
	EncodingNone Encoding = ""

	// EncodingUTF8 never splits a multi-byte rune across two chunks.
	EncodingUTF8 Encoding = "utf-8"
)

// Reader guards a readable byte source. The source is opened lazily when
// the first OnData callback starts the flow, so an open failure surfaces as
// a destroy.
//
// A standalone Reader destroys itself after its end (closing the source and
// firing OnDestroy). A Reader embedded in a Duplex leaves the source to the
// HTTP server and only ends.
type Reader struct {
	log       *slog.Logger
	open      func() (io.ReadCloser, error)
	chunkSize int

	// owned readers close their source and destroy themselves after end.
	owned  bool
	onFail func(error)

	mu         sync.Mutex
	src        io.ReadCloser
	closeOnce  sync.Once
	started    bool
	paused     bool
	ended      bool
	destroyed  bool
	encoding   Encoding
	dataCbs    []func([]byte)
	endCbs     []func()
	destroyCbs []func()

	wake chan struct{}
}

// NewReader guards src. The Reader owns src and closes it when destroyed.
func NewReader(src io.ReadCloser, opts ...Option) *Reader {
	return newOwnedReader(func() (io.ReadCloser, error) { return src, nil }, opts)
}

// OpenFile returns a Reader over name in fsys, limited to rng when rng is
// non-nil. The file is opened when flow starts.
func OpenFile(fsys sluice.FileSystem, name string, rng *sluice.ByteRange, opts ...Option) *Reader {
	return newOwnedReader(func() (io.ReadCloser, error) {
		f, err := fsys.Open(name)
		if err != nil {
			return nil, err
		}

		section := io.NewSectionReader(f, 0, math.MaxInt64)
		if rng != nil {
			section = io.NewSectionReader(f, rng.Start, rng.Len())
		}

		return fileSource{Reader: section, Closer: f}, nil
	}, opts)
}

type fileSource struct {
	io.Reader
	io.Closer
}

func newOwnedReader(open func() (io.ReadCloser, error), opts []Option) *Reader {
	o := buildOptions(DefaultFileChunkSize, opts)
	return &Reader{
		log:       o.logger,
		open:      open,
		chunkSize: o.chunkSize,
		owned:     true,
		wake:      make(chan struct{}, 1),
	}
}

// newBodyReader reads a request body on behalf of a Duplex. Read failures
// go to onFail and the body is left for the server to close.
func newBodyReader(body io.ReadCloser, o options, onFail func(error)) *Reader {
	return &Reader{
		log:       o.logger,
		open:      func() (io.ReadCloser, error) { return body, nil },
		chunkSize: bodyChunkSize,
		onFail:    onFail,
		wake:      make(chan struct{}, 1),
	}
}

// OnData registers a chunk callback and starts the flow if it has not
// started yet. Returns Success, FailedDestroyed or FailedReadableEnded.
func (r *Reader) OnData(cb func(chunk []byte)) sluice.Outcome {
	r.mu.Lock()
	if o := r.closedOutcome(); o != sluice.Success {
		r.mu.Unlock()
		return reject(r.log, o, "cannot register data callback")
	}

	r.dataCbs = append(r.dataCbs, cb)
	start := !r.started
	r.started = true
	r.mu.Unlock()

	if start {
		go r.run()
	}
	return sluice.Success
}

// OnEnd registers a callback fired once after the last chunk.
// Returns Success, FailedDestroyed or FailedReadableEnded.
func (r *Reader) OnEnd(cb func()) sluice.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o := r.closedOutcome(); o != sluice.Success {
		return reject(r.log, o, "cannot register end callback")
	}

	r.endCbs = append(r.endCbs, cb)
	return sluice.Success
}

// OnDestroy registers a callback fired exactly once when the Reader is
// destroyed. Returns Success or FailedDestroyed.
func (r *Reader) OnDestroy(cb func()) sluice.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return reject(r.log, sluice.FailedDestroyed, "cannot register destroy callback")
	}

	r.destroyCbs = append(r.destroyCbs, cb)
	return sluice.Success
}

// SetEncoding switches chunk delivery mode. Returns Success, FailedDestroyed
// or FailedReadableEnded.
func (r *Reader) SetEncoding(enc Encoding) sluice.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o := r.closedOutcome(); o != sluice.Success {
		return reject(r.log, o, "cannot set encoding")
	}

	r.encoding = enc
	return sluice.Success
}

// Pause stops chunk delivery until Resume. Returns Success, FailedDestroyed,
// FailedReadableEnded or FailedPaused.
func (r *Reader) Pause() sluice.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o := r.closedOutcome(); o != sluice.Success {
		return reject(r.log, o, "cannot pause")
	}
	if r.paused {
		return reject(r.log, sluice.FailedPaused, "cannot pause")
	}

	r.paused = true
	return sluice.Success
}

// Resume restarts chunk delivery. Returns Success, FailedDestroyed,
// FailedReadableEnded or FailedNotPaused.
func (r *Reader) Resume() sluice.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o := r.closedOutcome(); o != sluice.Success {
		return reject(r.log, o, "cannot resume")
	}
	if !r.paused {
		return reject(r.log, sluice.FailedNotPaused, "cannot resume")
	}

	r.paused = false
	r.signal()
	return sluice.Success
}

// Destroy tears the Reader down. Returns Success or FailedDestroyed.
func (r *Reader) Destroy() sluice.Outcome {
	if !r.destroy() {
		return reject(r.log, sluice.FailedDestroyed, "cannot destroy")
	}
	return sluice.Success
}

// IsDestroyed reports whether the Reader has been destroyed.
func (r *Reader) IsDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// IsEndedOrDestroyed reports whether the Reader can deliver no more data.
func (r *Reader) IsEndedOrDestroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended || r.destroyed
}

// closedOutcome must be called with mu held.
func (r *Reader) closedOutcome() sluice.Outcome {
	switch {
	case r.destroyed:
		return sluice.FailedDestroyed
	case r.ended:
		return sluice.FailedReadableEnded
	default:
		return sluice.Success
	}
}

// signal must be called with mu held or after a state change it guards.
func (r *Reader) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reader) destroy() bool {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return false
	}

	r.destroyed = true
	cbs := r.destroyCbs
	r.destroyCbs = nil
	r.dataCbs = nil
	r.endCbs = nil
	src := r.src
	r.signal()
	r.mu.Unlock()

	if r.owned && src != nil {
		r.closeSource(src)
	}

	for _, cb := range cbs {
		cb()
	}
	return true
}

func (r *Reader) closeSource(src io.Closer) {
	r.closeOnce.Do(func() {
		if err := src.Close(); err != nil {
			r.log.Debug("close stream source", "err", err)
		}
	})
}

func (r *Reader) fail(err error) {
	if r.onFail != nil {
		r.onFail(err)
		return
	}

	if r.destroy() {
		r.log.Info("stream source failed, destroyed", "err", err)
	}
}

func (r *Reader) run() {
	src, err := r.open()
	if err != nil {
		r.fail(err)
		return
	}

	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		if r.owned {
			r.closeSource(src)
		}
		return
	}
	r.src = src
	r.mu.Unlock()

	var carry []byte
	for {
		if !r.waitFlowing() {
			return
		}

		buf := make([]byte, r.chunkSize)
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if r.textMode() {
				chunk, carry = splitUTF8(append(carry, chunk...))
			}
			if len(chunk) > 0 {
				r.emit(chunk)
			}
		}

		if errors.Is(err, io.EOF) {
			if len(carry) > 0 {
				r.emit(carry)
			}
			r.finish()
			return
		}
		if err != nil {
			r.fail(err)
			return
		}
	}
}

// waitFlowing blocks while paused. It returns false once destroyed.
func (r *Reader) waitFlowing() bool {
	for {
		r.mu.Lock()
		destroyed, paused := r.destroyed, r.paused
		r.mu.Unlock()

		if destroyed {
			return false
		}
		if !paused {
			return true
		}
		<-r.wake
	}
}

func (r *Reader) textMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.encoding == EncodingUTF8
}

func (r *Reader) emit(chunk []byte) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	cbs := r.dataCbs
	r.mu.Unlock()

	for _, cb := range cbs {
		cb(chunk)
	}
}

func (r *Reader) finish() {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return
	}
	r.ended = true
	cbs := r.endCbs
	r.endCbs = nil
	r.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}

	if r.owned {
		r.destroy()
	}
}

// splitUTF8 returns the longest prefix of b that does not end inside a
// multi-byte rune, and the incomplete tail.
func splitUTF8(b []byte) (complete, tail []byte) {
	// A rune is at most utf8.UTFMax bytes, so only the last few can be partial.
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if !utf8.RuneStart(c) {
			continue
		}
		if !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i], append([]byte(nil), b[len(b)-i:]...)
		}
		break
	}
	return b, nil
}

func reject(log *slog.Logger, o sluice.Outcome, msg string) sluice.Outcome {
	level := slog.LevelWarn
	if o == sluice.FailedDestroyed {
		level = slog.LevelDebug
	}
	log.Log(context.Background(), level, msg, "outcome", o)
	return o
}
