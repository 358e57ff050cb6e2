package sluice

import (
	"context"
	"fmt"
	"io"
	"io/fs"
)

// StatusClientClosed is reported for a connection whose peer went away
// before any response could be sent.
const StatusClientClosed = 499

type ServerMode string

const (
	ModeStatic ServerMode = "static"
	ModeSPA    ServerMode = "spa"
	ModeProxy  ServerMode = "proxy"
)

func (m ServerMode) IsValid() bool {
	switch m {
	case ModeStatic, ModeSPA, ModeProxy:
		return true
	default:
		return false
	}
}

func ParseServerMode(s string) (ServerMode, error) {
	mode := ServerMode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("%w: %s (valid modes: static, spa, proxy)", ErrInvalidMode, s)
	}
	return mode, nil
}

// ByteRange is an inclusive [Start, End] byte window of a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by the range.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// File is an open file handle that supports positional reads.
type File interface {
	io.ReaderAt
	io.Closer
}

// FileSystem is the tree a server delivers files from.
// Names are slash-separated pathnames rooted at the served directory.
type FileSystem interface {
	// Stat returns file info for name. Missing entries must wrap fs.ErrNotExist.
	Stat(ctx context.Context, name string) (fs.FileInfo, error)

	// Open opens name for reading. The caller closes the returned File.
	Open(name string) (File, error)
}

// ReadableConnection is the read-only view of one request.
type ReadableConnection struct {
	Method       string
	Pathname     string
	Search       string
	SearchParams map[string]string
	Cookie       map[string]string
	Body         *Body
}

// SendFileOptions describes a file response. Zero values select defaults:
// content type and cache control from the content table, status 200 or 206.
type SendFileOptions struct {
	Pathname     string
	ContentType  string
	CacheControl string
	Status       int
	Cookie       map[string]string
}

// SendDataOptions describes an in-memory response. Status defaults to 200,
// or 204 when Data is empty.
type SendDataOptions struct {
	Data         []byte
	ContentType  string
	CacheControl string
	Status       int
	Cookie       map[string]string
}

// SendHrefOptions describes a redirect. Status defaults to the configured
// redirect status.
type SendHrefOptions struct {
	Href   string
	Status int
	Cookie map[string]string
}

// WritableConnection is the response side of one request. All methods are
// safe to call after the peer disconnected; they report
// FailedNoFurtherAction instead of failing loudly.
type WritableConnection interface {
	// SendFile returns Success, FailedNoFurtherAction, FailedDirectory,
	// FailedUnknownStats or FailedStatsNotFound.
	SendFile(ctx context.Context, opts SendFileOptions) Outcome

	// SendData returns Success or FailedNoFurtherAction.
	SendData(opts SendDataOptions) Outcome

	// SendHref returns Success or FailedNoFurtherAction.
	SendHref(opts SendHrefOptions) Outcome

	// Status returns the response status sent so far, StatusClientClosed if
	// the peer left before headers went out, or 0 if nothing happened yet.
	Status() int
}

// Handler decides what a connection receives.
type Handler interface {
	ServeConnection(ctx context.Context, rc *ReadableConnection, wc WritableConnection)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rc *ReadableConnection, wc WritableConnection)

func (f HandlerFunc) ServeConnection(ctx context.Context, rc *ReadableConnection, wc WritableConnection) {
	f(ctx, rc, wc)
}
