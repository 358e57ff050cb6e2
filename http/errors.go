package http

import "errors"

var (
	// ErrNoResponse is reported when a handler returns without ending its
	// response.
	ErrNoResponse = errors.New("handler returned without responding")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("handler panicked")
)
