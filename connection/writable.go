package connection

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/sagarc03/sluice"
	"github.com/sagarc03/sluice/stream"
)

const defaultDataContentType = "text/plain; charset=utf-8"

// Writable is the response side of one request stream.
type Writable struct {
	d   *stream.Duplex
	r   *http.Request
	log *slog.Logger

	fsys           sluice.FileSystem
	table          sluice.ContentTable
	redirectStatus int
	rangeWindow    int64

	mu     sync.Mutex
	status int
}

var _ sluice.WritableConnection = (*Writable)(nil)

// Option configures a Writable.
type Option func(*Writable)

// WithFileSystem sets the tree SendFile delivers from.
func WithFileSystem(fsys sluice.FileSystem) Option {
	return func(w *Writable) { w.fsys = fsys }
}

// WithContentTable sets the extension lookup used by SendFile.
func WithContentTable(t sluice.ContentTable) Option {
	return func(w *Writable) {
		if t != nil {
			w.table = t
		}
	}
}

// WithRedirectStatus sets the SendHref status used when none is given.
func WithRedirectStatus(status int) Option {
	return func(w *Writable) {
		if status != 0 {
			w.redirectStatus = status
		}
	}
}

// WithRangeWindow sets how many bytes an open-ended range request gets.
func WithRangeWindow(n int64) Option {
	return func(w *Writable) {
		if n > 0 {
			w.rangeWindow = n
		}
	}
}

// WithLogger sets the connection logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writable) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWritable binds the response operations to d. r supplies the request
// headers SendFile reacts to.
func NewWritable(d *stream.Duplex, r *http.Request, opts ...Option) *Writable {
	w := &Writable{
		d:              d,
		r:              r,
		log:            slog.Default(),
		table:          sluice.DefaultContentTable(),
		redirectStatus: http.StatusTemporaryRedirect,
		rangeWindow:    sluice.DefaultRangeWindow,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SendData responds with an in-memory payload. Empty data without an
// explicit status is answered with 204 and no content headers.
func (w *Writable) SendData(opts sluice.SendDataOptions) sluice.Outcome {
	h := http.Header{}
	setCookie(h, opts.Cookie)

	status := opts.Status
	if len(opts.Data) == 0 && status == 0 {
		if !w.respond(http.StatusNoContent, h) {
			return sluice.FailedNoFurtherAction
		}
		return w.end()
	}

	if status == 0 {
		status = http.StatusOK
	}

	h.Set("Cache-Control", orDefault(opts.CacheControl, sluice.CacheNoCache))
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Type", orDefault(opts.ContentType, defaultDataContentType))
	if len(opts.Data) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(opts.Data)))
	}

	if !w.respond(status, h) {
		return sluice.FailedNoFurtherAction
	}

	if len(opts.Data) > 0 && w.r.Method != http.MethodHead {
		if !w.d.Write(opts.Data).OK() {
			return sluice.FailedNoFurtherAction
		}
	}

	return w.end()
}

// SendHref responds with a redirect to opts.Href and no body.
func (w *Writable) SendHref(opts sluice.SendHrefOptions) sluice.Outcome {
	status := opts.Status
	if status == 0 {
		status = w.redirectStatus
	}

	h := http.Header{}
	h.Set("Location", opts.Href)
	setCookie(h, opts.Cookie)

	if !w.respond(status, h) {
		return sluice.FailedNoFurtherAction
	}
	return w.end()
}

// Status returns the status sent, StatusClientClosed when the stream was
// destroyed before any headers went out, or 0.
func (w *Writable) Status() int {
	w.mu.Lock()
	status := w.status
	w.mu.Unlock()

	if status == 0 && w.d.IsDestroyed() {
		return sluice.StatusClientClosed
	}
	return status
}

func (w *Writable) respond(status int, h http.Header) bool {
	if !w.d.Respond(status, h).OK() {
		return false
	}

	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
	return true
}

func (w *Writable) end() sluice.Outcome {
	if !w.d.EndAndDestroyDuplex().OK() {
		return sluice.FailedNoFurtherAction
	}
	return sluice.Success
}

func setCookie(h http.Header, cookie map[string]string) {
	for _, v := range sluice.FormatSetCookie(cookie) {
		h.Add("Set-Cookie", v)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
