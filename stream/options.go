package stream

import (
	"log/slog"
	"time"
)

const (
	// DefaultHighWaterMark is the queued byte count above which Write
	// reports SuccessDrain.
	DefaultHighWaterMark = 16 * 1024

	// DefaultCloseTimeout is how long an ended duplex may take to close
	// before it is destroyed by force.
	DefaultCloseTimeout = 20 * time.Second

	// DefaultFileChunkSize is the read size for file sources.
	DefaultFileChunkSize = 64 * 1024

	bodyChunkSize = 16 * 1024
)

type options struct {
	logger        *slog.Logger
	highWaterMark int
	closeTimeout  time.Duration
	chunkSize     int
}

// Option configures a Duplex or a Reader.
type Option func(*options)

// WithLogger sets the logger guard rejections and transport failures go to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithHighWaterMark sets the Duplex write queue threshold.
func WithHighWaterMark(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.highWaterMark = n
		}
	}
}

// WithCloseTimeout sets how long EndAndDestroyDuplex waits for the stream to
// close before forcing it.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}

// WithChunkSize sets the read size of a Reader.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

func buildOptions(chunkSize int, opts []Option) options {
	o := options{
		logger:        slog.Default(),
		highWaterMark: DefaultHighWaterMark,
		closeTimeout:  DefaultCloseTimeout,
		chunkSize:     chunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
