// Package http provides the HTTP server side of sluice.
//
// Every request becomes a stream.Duplex. In static and spa modes the
// duplex is adapted into a connection pair and handed to a sluice.Handler;
// in proxy mode the whole stream goes to a StreamHandler.
//
// # Features
//
//   - One chi catch-all route for every method and path
//   - Connection ids and request logging (ConnectionLogger)
//   - Configurable CORS support
//   - Panic recovery and a best-effort "Error 500" for handlers that return
//     without responding
//   - A watchdog that logs handlers running longer than HandlerWarnAfter
//
// # Server Modes
//
// Static Mode: serves files, redirecting directories to their trailing-slash
// form (308 by default).
//
// SPA Mode: like static, but missing files are answered with /index.html to
// support client-side routing.
//
// Proxy Mode: streams are forwarded to the backend selected by the request
// authority. See the proxy package.
//
// # Usage
//
//	root, _ := os.OpenRoot("./public")
//	handlerCfg := http.HandlerConfig{
//	    Mode:       sluice.ModeStatic,
//	    FileSystem: filesystem.NewFileStorage(root),
//	}
//	handler := http.NewHandler(&handlerCfg, nil)
//	router := handler.Router()
//	http.ListenAndServe(":8080", router)
//
// A custom sluice.Handler can replace the StaticDispatcher through
// HandlerConfig.Dispatcher.
package http
