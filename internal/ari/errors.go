package ari

import "errors"

var (
	// ErrUnexpectedStatus is wrapped with the actual status code and response
	// body when a REST call returns a non-2xx status.
	ErrUnexpectedStatus = errors.New("ari: unexpected status")

	// ErrEventStreamClosed is returned by SubscribeEvents callers once the
	// underlying WebSocket connection has been read to EOF or closed.
	ErrEventStreamClosed = errors.New("ari: event stream closed")
)
