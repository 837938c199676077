package s2s

import "errors"

// ErrProviderHandshakeFailed is returned by Start when the provider does not
// acknowledge the session within Config.HandshakeTimeout, or Connect itself
// fails for any other reason.
var ErrProviderHandshakeFailed = errors.New("s2s: provider handshake failed")

// ErrNotStarted is returned by Engine methods that require an open session
// when Start has not yet been called (or has failed).
var ErrNotStarted = errors.New("s2s: engine has no open session")
