package sluice

import "errors"

var (
	// ErrUnknownAuthority is returned when no backend serves the requested authority
	ErrUnknownAuthority = errors.New("unknown authority")
	// ErrInvalidMode is returned when a server mode string is not recognised
	ErrInvalidMode = errors.New("invalid server mode")
	// ErrInvalidContentTable is returned when a content table file cannot be used
	ErrInvalidContentTable = errors.New("invalid content table")
)
