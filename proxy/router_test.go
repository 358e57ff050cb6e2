package proxy_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sagarc03/sluice"
	sluicehttp "github.com/sagarc03/sluice/http"
	"github.com/sagarc03/sluice/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// newBackend starts a cleartext HTTP/2 (prior knowledge) server.
func newBackend(t *testing.T, handler http.Handler) string {
	t.Helper()

	srv := httptest.NewUnstartedServer(h2c.NewHandler(handler, &http2.Server{}))
	srv.Start()
	t.Cleanup(srv.Close)

	return srv.Listener.Addr().String()
}

func deadAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newProxy(t *testing.T, backends map[string]string, opts ...proxy.Option) (*proxy.Router, http.Handler) {
	t.Helper()

	router := proxy.NewRouter(backends, opts...)
	t.Cleanup(func() { _ = router.Close() })

	handler := sluicehttp.NewHandler(&sluicehttp.HandlerConfig{Mode: sluice.ModeProxy}, router)
	return router, handler.Router()
}

func echoBackend(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	w.Header().Set("X-Method", r.Method)
	w.Header().Set("X-Path", r.URL.Path)
	w.Header().Set("X-Query", r.URL.RawQuery)
	w.Header().Set("X-Host", r.Host)
	w.Header().Set("X-Custom", r.Header.Get("X-Custom"))
	w.Header().Set("X-Foo", r.Header.Get("X-Foo"))
	w.Header().Set("X-Keep-Alive", r.Header.Get("Keep-Alive"))
	w.Header().Set("X-Proto", r.Proto)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

func TestRouter_ForwardsStream(t *testing.T) {
	addr := newBackend(t, http.HandlerFunc(echoBackend))
	_, handler := newProxy(t, map[string]string{"app.test": addr})

	req := httptest.NewRequest(http.MethodPost, "http://app.test/echo?x=1", strings.NewReader("hello backend"))
	req.Header.Set("X-Custom", "yes")
	req.Header.Set("Connection", "X-Foo")
	req.Header.Set("X-Foo", "bar")
	req.Header.Set("Keep-Alive", "timeout=5")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "hello backend", rec.Body.String())
	assert.Equal(t, http.MethodPost, rec.Header().Get("X-Method"))
	assert.Equal(t, "/echo", rec.Header().Get("X-Path"))
	assert.Equal(t, "x=1", rec.Header().Get("X-Query"))
	assert.Equal(t, "app.test", rec.Header().Get("X-Host"))
	assert.Equal(t, "HTTP/2.0", rec.Header().Get("X-Proto"))
	assert.Equal(t, "yes", rec.Header().Get("X-Custom"))
	assert.Empty(t, rec.Header().Get("X-Foo"), "headers named by Connection are dropped")
	assert.Empty(t, rec.Header().Get("X-Keep-Alive"))
}

func TestRouter_LargeResponse(t *testing.T) {
	payload := strings.Repeat("sluice!", 150_000)
	addr := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, payload)
	}))
	_, handler := newProxy(t, map[string]string{"app.test": addr})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://app.test/big", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, len(payload), rec.Body.Len())
	assert.Equal(t, payload, rec.Body.String())
}

func TestRouter_UnknownAuthority(t *testing.T) {
	_, handler := newProxy(t, map[string]string{"app.test": deadAddr(t)})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://nope.test/", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Error 404: Authority nope.test is not available", rec.Body.String())
}

func TestRouter_BackendDown(t *testing.T) {
	_, handler := newProxy(t, map[string]string{"app.test": deadAddr(t)})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://app.test/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Error 500: dial backend"), rec.Body.String())
}

func TestRouter_AuthorityWithPort(t *testing.T) {
	addr := newBackend(t, http.HandlerFunc(echoBackend))
	_, handler := newProxy(t, map[string]string{"app.test": addr})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://app.test:8443/", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "app.test:8443", rec.Header().Get("X-Host"))
}

func TestRouter_ReusesBackendConnection(t *testing.T) {
	var (
		mu      sync.Mutex
		remotes = map[string]bool{}
	)
	addr := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		remotes[r.RemoteAddr] = true
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	router, handler := newProxy(t, map[string]string{"app.test": addr})
	router.Connect(context.Background())

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://app.test/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, remotes, 1)
}

func TestRouter_ReconnectsAfterClose(t *testing.T) {
	addr := newBackend(t, http.HandlerFunc(echoBackend))
	router, handler := newProxy(t, map[string]string{"app.test": addr, "down.test": deadAddr(t)})
	router.Connect(context.Background())

	require.NoError(t, router.Close())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://app.test/again", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/again", rec.Header().Get("X-Path"))
}

func TestRouter_StalledBackendDoesNotBlockOthers(t *testing.T) {
	addr := newBackend(t, http.HandlerFunc(echoBackend))
	const stalled = "stalled.invalid:80"

	dialing := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	var dialer net.Dialer
	dial := func(ctx context.Context, network, target string) (net.Conn, error) {
		if target != stalled {
			return dialer.DialContext(ctx, network, target)
		}
		close(dialing)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, context.DeadlineExceeded
	}

	_, handler := newProxy(t,
		map[string]string{"app.test": addr, "slow.test": stalled},
		proxy.WithDialer(dial),
		proxy.WithDialTimeout(time.Minute),
	)

	slowDone := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://slow.test/", nil))
		slowDone <- rec.Code
	}()

	select {
	case <-dialing:
	case <-time.After(5 * time.Second):
		t.Fatal("stalled backend was never dialed")
	}

	served := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://app.test/fast", nil))
		served <- rec
	}()

	select {
	case rec := <-served:
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "/fast", rec.Header().Get("X-Path"))
	case <-time.After(5 * time.Second):
		t.Fatal("request to a healthy backend waited on a stalled dial")
	}

	select {
	case <-slowDone:
		t.Fatal("stalled request resolved before its dial returned")
	default:
	}
}
