package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sagarc03/sluice"
	"github.com/sagarc03/sluice/connection"
	"github.com/sagarc03/sluice/stream"
)

// DefaultHandlerWarnAfter is how long a connection handler may run before
// it is reported as stalled.
const DefaultHandlerWarnAfter = 20 * time.Second

// StreamHandler takes over a whole request stream. Proxy mode uses it to
// forward the stream instead of dispatching a connection pair.
type StreamHandler interface {
	ServeStream(ctx context.Context, d *stream.Duplex, r *http.Request)
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type HandlerConfig struct {
	Mode sluice.ServerMode

	// Dispatcher decides what static and spa connections receive.
	// Nil selects a StaticDispatcher for Mode.
	Dispatcher sluice.Handler

	FileSystem              sluice.FileSystem
	ContentTable            sluice.ContentTable
	RedirectStatus          int
	DirectoryRedirectStatus int
	RangeWindow             int64

	// MaxBodySize caps the request body handed to the dispatcher. Zero
	// means no limit.
	MaxBodySize int64

	HighWaterMark    int
	CloseTimeout     time.Duration
	HandlerWarnAfter time.Duration

	CORS   CORSConfig
	Logger *slog.Logger
}

// Handler turns every request into a guarded stream and hands it to the
// dispatcher, or to the proxy in proxy mode.
type Handler struct {
	config     HandlerConfig
	proxy      StreamHandler
	dispatcher sluice.Handler
	log        *slog.Logger
}

// NewHandler creates a new Handler with the given configuration. proxy is
// only used in proxy mode.
func NewHandler(config *HandlerConfig, proxy StreamHandler) *Handler {
	h := &Handler{
		config:     *config,
		proxy:      proxy,
		dispatcher: config.Dispatcher,
		log:        config.Logger,
	}

	if h.log == nil {
		h.log = slog.Default()
	}
	if h.config.HandlerWarnAfter == 0 {
		h.config.HandlerWarnAfter = DefaultHandlerWarnAfter
	}
	if h.dispatcher == nil {
		h.dispatcher = NewStaticDispatcher(config.Mode, config.DirectoryRedirectStatus)
	}

	return h
}

// Router returns an http.Handler that routes every method and path to the
// connection handler.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(ConnectionLogger(h.log))

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.HandleFunc("/*", h.serveStream)

	return r
}

func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := LoggerFromContext(ctx)

	d := stream.NewDuplex(w, r,
		stream.WithLogger(log),
		stream.WithHighWaterMark(h.config.HighWaterMark),
		stream.WithCloseTimeout(h.config.CloseTimeout),
	)
	// The ResponseWriter must not outlive this call.
	defer d.Wait()

	dog := stream.StartWatchdog(h.config.HandlerWarnAfter, func() {
		log.Error("connection handler still running", "after", h.config.HandlerWarnAfter, "path", r.URL.Path)
	})
	defer dog.Stop()

	wc := connection.NewWritable(d, r,
		connection.WithLogger(log),
		connection.WithFileSystem(h.config.FileSystem),
		connection.WithContentTable(h.config.ContentTable),
		connection.WithRedirectStatus(h.config.RedirectStatus),
		connection.WithRangeWindow(h.config.RangeWindow),
	)

	err := h.run(func() {
		if h.config.Mode == sluice.ModeProxy {
			h.serveProxy(ctx, d, r, wc)
			return
		}
		h.dispatcher.ServeConnection(ctx, connection.BuildReadable(d, r, connection.WithMaxBodySize(h.config.MaxBodySize)), wc)
	})

	if d.IsEndedOrDestroyed() {
		if err != nil {
			log.Error("connection handler failed after responding", "err", err)
		}
		return
	}

	if err == nil {
		err = ErrNoResponse
	}
	log.Error("connection handler left the stream open", "err", err)

	if d.HeadersSent() {
		d.Destroy()
		return
	}
	RespondError(wc, http.StatusInternalServerError, err.Error())
}

func (h *Handler) serveProxy(ctx context.Context, d *stream.Duplex, r *http.Request, wc sluice.WritableConnection) {
	if h.proxy == nil {
		RespondError(wc, http.StatusNotFound, "No backends are configured")
		return
	}
	h.proxy.ServeStream(ctx, d, r)
}

// run calls fn, turning a panic into an error.
func (h *Handler) run(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()

	fn()
	return nil
}
