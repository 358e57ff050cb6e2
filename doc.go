// Package sluice provides a static file server and virtual-host reverse
// proxy built on a connection-stream safety layer.
//
// Every operation on a request stream returns an explicit Outcome instead of
// panicking or returning an error, so a handler can always tell what happened
// to a response, even when the peer disconnected halfway through it.
//
// # Key Components
//
//   - Outcome: closed set of result tags shared by all stream operations
//   - ReadableConnection: method, pathname, search, cookies and a lazily
//     resolving Body of one request
//   - WritableConnection: SendFile (with byte ranges), SendData and SendHref
//   - Handler: the dispatcher that decides what a connection receives
//   - ContentTable: extension to content-type/cache-control lookup
//   - FileSystem: the served tree (see the filesystem package)
//
// # Server Modes
//
//   - ModeStatic: serve files, redirect directories to a trailing slash
//   - ModeSPA: like static, but unknown paths fall back to /index.html
//   - ModeProxy: forward streams to backends selected by :authority
//
// # Example Usage
//
//	root, _ := os.OpenRoot("./public")
//	handler := sluicehttp.NewHandler(&sluicehttp.HandlerConfig{
//	    Mode:       sluice.ModeStatic,
//	    FileSystem: filesystem.NewFileStorage(root),
//	}, nil)
//	http.ListenAndServe(":8080", handler.Router())
//
// See the stream package for the guards and the pump, the connection package
// for the adapter and the file responder, and the proxy package for the
// authority router.
package sluice
