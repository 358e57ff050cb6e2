package stream_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sagarc03/sluice"
)

const waitFor = 2 * time.Second

// trackingCloser counts Close calls on a wrapped reader.
type trackingCloser struct {
	io.Reader
	closed atomic.Int32
}

func (c *trackingCloser) Close() error {
	c.closed.Add(1)
	return nil
}

// countingReader counts Read calls on a wrapped reader.
type countingReader struct {
	io.Reader
	reads atomic.Int32
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads.Add(1)
	return c.Reader.Read(p)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes and reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// blockingWriter is a ResponseWriter whose body writes block until release
// is closed or a write deadline aborts them.
type blockingWriter struct {
	header  http.Header
	release chan struct{}
	aborted chan struct{}
	once    sync.Once

	mu     sync.Mutex
	status int
	body   bytes.Buffer
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{
		header:  make(http.Header),
		release: make(chan struct{}),
		aborted: make(chan struct{}),
	}
}

func (w *blockingWriter) Header() http.Header { return w.header }

func (w *blockingWriter) WriteHeader(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	select {
	case <-w.release:
	case <-w.aborted:
		return 0, errors.New("write deadline exceeded")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.body.Write(p)
}

func (w *blockingWriter) Flush() {}

func (w *blockingWriter) SetWriteDeadline(time.Time) error {
	w.once.Do(func() { close(w.aborted) })
	return nil
}

func (w *blockingWriter) Body() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.body.String()
}

// memFS is an in-memory sluice.FileSystem.
type memFS struct {
	files  map[string][]byte
	opened atomic.Int32
	closed atomic.Int32
}

type memFile struct {
	*bytes.Reader
	fsys *memFS
}

func (f memFile) Close() error {
	f.fsys.closed.Add(1)
	return nil
}

func (m *memFS) Stat(_ context.Context, name string) (fs.FileInfo, error) {
	return nil, fs.ErrNotExist
}

func (m *memFS) Open(name string) (sluice.File, error) {
	data, ok := m.files[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	m.opened.Add(1)
	return memFile{Reader: bytes.NewReader(data), fsys: m}, nil
}

// collector gathers chunks delivered to an OnData callback.
type collector struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (c *collector) add(chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, append([]byte(nil), chunk...))
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(bytes.Join(c.chunks, nil))
}

func (c *collector) Chunks() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.chunks...)
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func signal() (chan struct{}, func()) {
	ch := make(chan struct{})
	var once sync.Once
	return ch, func() { once.Do(func() { close(ch) }) }
}
