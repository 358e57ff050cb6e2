// Package proxy forwards request streams to HTTP/2 backends chosen by the
// request authority.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sagarc03/sluice"
	"github.com/sagarc03/sluice/connection"
	sluicehttp "github.com/sagarc03/sluice/http"
	"github.com/sagarc03/sluice/stream"
	"golang.org/x/net/http2"
)

const defaultDialTimeout = 5 * time.Second

var errClientGone = errors.New("client stream destroyed")

// Router maps authorities to backend addresses and keeps one cleartext
// HTTP/2 connection per backend. A connection that can no longer take
// requests is replaced on next use.
type Router struct {
	backends    map[string]string
	log         *slog.Logger
	dialTimeout time.Duration
	transport   *http2.Transport
	dial        DialFunc

	// dialing holds one slot per authority so a backend is dialed by at
	// most one request at a time. Its key set never changes.
	dialing map[string]chan struct{}

	mu      sync.Mutex
	clients map[string]*http2.ClientConn
}

// DialFunc opens the transport connection to a backend address.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

var _ sluicehttp.StreamHandler = (*Router)(nil)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDialTimeout bounds how long connecting to a backend may take.
func WithDialTimeout(d time.Duration) Option {
	return func(r *Router) {
		if d > 0 {
			r.dialTimeout = d
		}
	}
}

// WithDialer replaces the TCP dialer used to reach backends.
func WithDialer(dial DialFunc) Option {
	return func(r *Router) {
		if dial != nil {
			r.dial = dial
		}
	}
}

// NewRouter creates a Router for backends, a map of authority to host:port.
func NewRouter(backends map[string]string, opts ...Option) *Router {
	r := &Router{
		backends:    make(map[string]string, len(backends)),
		log:         slog.Default(),
		dialTimeout: defaultDialTimeout,
		transport:   &http2.Transport{AllowHTTP: true},
		dial:        (&net.Dialer{}).DialContext,
		dialing:     make(map[string]chan struct{}, len(backends)),
		clients:     make(map[string]*http2.ClientConn),
	}
	for authority, addr := range backends {
		r.backends[authority] = addr
		r.dialing[authority] = make(chan struct{}, 1)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect dials every backend up front. Backends that cannot be reached are
// logged and dialed again on first use.
func (r *Router) Connect(ctx context.Context) {
	for authority := range r.backends {
		if _, _, err := r.client(ctx, authority); err != nil {
			r.log.Info("backend not reachable yet", "authority", authority, "err", err)
		}
	}
}

// Close closes every backend connection.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for authority, cc := range r.clients {
		if err := cc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend %s: %w", authority, err))
		}
		delete(r.clients, authority)
	}
	return errors.Join(errs...)
}

// ServeStream forwards the stream in d to the backend for r.Host.
func (r *Router) ServeStream(ctx context.Context, d *stream.Duplex, req *http.Request) {
	log := sluicehttp.LoggerFromContext(ctx)
	wc := connection.NewWritable(d, req, connection.WithLogger(log))

	authority, cc, err := r.client(ctx, req.Host)
	if errors.Is(err, sluice.ErrUnknownAuthority) {
		sluicehttp.RespondError(wc, http.StatusNotFound, fmt.Sprintf("Authority %s is not available", req.Host))
		return
	}
	if err != nil {
		log.Info("backend connection failed", "authority", authority, "err", err)
		sluicehttp.RespondError(wc, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := r.outgoing(ctx, d, req, authority)
	if err != nil {
		sluicehttp.RespondError(wc, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := cc.RoundTrip(out)
	if err != nil {
		if ctx.Err() != nil || d.IsEndedOrDestroyed() {
			return
		}
		log.Info("backend request failed", "authority", authority, "err", err)
		sluicehttp.RespondError(wc, http.StatusInternalServerError, err.Error())
		return
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	if !d.Respond(resp.StatusCode, header).OK() {
		_ = resp.Body.Close()
		return
	}

	src := stream.NewReader(resp.Body, stream.WithLogger(log), stream.WithChunkSize(stream.DefaultHighWaterMark))
	stream.Pipe(ctx, src, d)
}

// outgoing builds the backend request. Its body is fed from the readable
// side of d; a blocked write is the backpressure on the client.
func (r *Router) outgoing(ctx context.Context, d *stream.Duplex, req *http.Request, authority string) (*http.Request, error) {
	target := &url.URL{
		Scheme:   "http",
		Host:     authority,
		Path:     req.URL.Path,
		RawPath:  req.URL.RawPath,
		RawQuery: req.URL.RawQuery,
	}

	var body io.ReadCloser = http.NoBody
	if req.Body != nil && req.Body != http.NoBody {
		pr, pw := io.Pipe()
		body = pr

		closePipe := func() {
			_ = pw.CloseWithError(errClientGone)
			_ = pr.CloseWithError(errClientGone)
		}
		if !d.OnDuplexDestroy(closePipe).OK() {
			closePipe()
			return nil, errClientGone
		}
		d.OnEnd(func() { _ = pw.Close() })
		d.OnData(func(chunk []byte) {
			// Fails only once the backend stopped reading; the rest of the
			// body is dropped.
			_, _ = pw.Write(chunk)
		})
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}

	out.Host = req.Host
	out.Header = req.Header.Clone()
	out.ContentLength = req.ContentLength
	removeHopHeaders(out.Header)

	return out, nil
}

// client returns the connection for authority, dialing a new one if there
// is none or the current one is no longer usable. The returned authority is
// the backend table key that matched. Dialing happens outside r.mu so a slow
// backend only holds up requests for its own authority.
func (r *Router) client(ctx context.Context, host string) (string, *http2.ClientConn, error) {
	authority, addr, ok := r.lookup(host)
	if !ok {
		return host, nil, fmt.Errorf("%w: %s", sluice.ErrUnknownAuthority, host)
	}

	if cc := r.cached(authority); cc != nil {
		return authority, cc, nil
	}

	slot := r.dialing[authority]
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return authority, nil, fmt.Errorf("dial backend %s: %w", addr, ctx.Err())
	}
	defer func() { <-slot }()

	// Another request may have connected while this one waited.
	if cc := r.cached(authority); cc != nil {
		return authority, cc, nil
	}

	cc, err := r.connect(ctx, addr)
	if err != nil {
		return authority, nil, err
	}

	r.mu.Lock()
	r.clients[authority] = cc
	r.mu.Unlock()

	return authority, cc, nil
}

// cached returns the usable connection for authority, evicting a stale one.
func (r *Router) cached(authority string) *http2.ClientConn {
	r.mu.Lock()
	defer r.mu.Unlock()

	cc := r.clients[authority]
	if cc == nil {
		return nil
	}
	if cc.CanTakeNewRequest() {
		return cc
	}

	_ = cc.Close()
	delete(r.clients, authority)
	return nil
}

func (r *Router) connect(ctx context.Context, addr string) (*http2.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, r.dialTimeout)
	defer cancel()

	conn, err := r.dial(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial backend %s: %w", addr, err)
	}

	cc, err := r.transport.NewClientConn(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("start backend session %s: %w", addr, err)
	}
	return cc, nil
}

// lookup matches host against the table, first as given, then without its
// port.
func (r *Router) lookup(host string) (authority, addr string, ok bool) {
	if addr, ok := r.backends[host]; ok {
		return host, addr, true
	}
	if name, _, err := net.SplitHostPort(host); err == nil {
		if addr, ok := r.backends[name]; ok {
			return name, addr, true
		}
	}
	return "", "", false
}
