// Package connection adapts a stream.Duplex into the ReadableConnection and
// WritableConnection pair a sluice.Handler works with.
package connection

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sagarc03/sluice"
	"github.com/sagarc03/sluice/stream"
)

// ReadableOption configures BuildReadable.
type ReadableOption func(*readableOptions)

type readableOptions struct {
	maxBodySize int64
}

// WithMaxBodySize caps the buffered request body at n bytes. Zero or less
// means no limit.
func WithMaxBodySize(n int64) ReadableOption {
	return func(o *readableOptions) { o.maxBodySize = n }
}

// BuildReadable extracts the request metadata of r and starts buffering its
// body from d. The body resolves with the full text when the request ends,
// or with whatever arrived when d is destroyed first. With a size cap the
// body resolves as soon as the cap is reached, truncated to it, and the rest
// of the request body is left unread.
func BuildReadable(d *stream.Duplex, r *http.Request, opts ...ReadableOption) *sluice.ReadableConnection {
	var o readableOptions
	for _, opt := range opts {
		opt(&o)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	pathname, search := sluice.SplitTarget(requestTarget(r))
	if decoded, err := url.PathUnescape(pathname); err == nil {
		pathname = decoded
	}

	return &sluice.ReadableConnection{
		Method:       method,
		Pathname:     sluice.SanitizePathname(pathname),
		Search:       search,
		SearchParams: sluice.ParseSearchParams(search),
		Cookie:       sluice.ParseCookie(strings.Join(r.Header.Values("Cookie"), "; ")),
		Body:         bufferBody(d, o.maxBodySize),
	}
}

// requestTarget returns the raw origin-form target: the :path pseudo-header
// on HTTP/2, the request line target on HTTP/1.
func requestTarget(r *http.Request) string {
	if strings.HasPrefix(r.RequestURI, "/") {
		return r.RequestURI
	}
	if r.URL != nil {
		return r.URL.RequestURI()
	}
	return "/"
}

func bufferBody(d *stream.Duplex, limit int64) *sluice.Body {
	body, resolve := sluice.NewBody()

	var (
		mu   sync.Mutex
		buf  strings.Builder
		full bool
	)
	settle := func() {
		mu.Lock()
		text := buf.String()
		mu.Unlock()
		resolve(text)
	}

	if !d.OnDuplexDestroy(settle).OK() {
		resolve("")
		return body
	}

	d.SetEncoding(stream.EncodingUTF8)
	d.OnEnd(settle)
	d.OnData(func(chunk []byte) {
		mu.Lock()
		if full {
			mu.Unlock()
			return
		}
		if room := limit - int64(buf.Len()); limit > 0 && int64(len(chunk)) >= room {
			buf.Write(trimPartialRune(chunk[:room]))
			full = true
		} else {
			buf.Write(chunk)
		}
		capped := full
		mu.Unlock()

		if capped {
			settle()
			d.Pause()
		}
	})

	return body
}

// trimPartialRune drops a multi-byte rune cut off at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i]
		}
		break
	}
	return b
}
