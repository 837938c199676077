// Package ari is a client for the PBX Control Interface: an HTTP-for-commands
// plus WebSocket-for-events control surface modeled on Asterisk's REST
// Interface (ARI). It covers exactly the operations the Call Engine needs:
// event subscription, channel answer/hangup/dialplan-continue/redirect,
// bridge create/join/leave, outbound origination, and playback start/stop.
//
// The WebSocket event client is grounded on pkg/provider/s2s/gemini's
// session: dial, a single receive-loop goroutine that decodes JSON frames
// and closes its output channel on read error, and a context-cancellation
// driven Close. The HTTP command surface has no teacher analogue (the
// teacher never made outbound REST calls to an external control plane) and
// is built directly against net/http in the same idiom — small per-call
// helper, JSON in/out, non-2xx mapped to a typed error.
package ari

// Channel is the subset of an ARI channel resource the engine consumes.
type Channel struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	State        string            `json:"state"`
	CallerNumber string            `json:"caller_number,omitempty"`
	CallerName   string            `json:"caller_name,omitempty"`
	Dialplan     ChannelDialplan   `json:"dialplan,omitempty"`
	ChannelVars  map[string]string `json:"channelvars,omitempty"`
}

// ChannelDialplan identifies a channel's current dialplan location.
type ChannelDialplan struct {
	Context  string `json:"context"`
	Exten    string `json:"exten"`
	Priority int    `json:"priority"`
}

// Bridge is the subset of an ARI bridge resource the engine consumes.
type Bridge struct {
	ID         string   `json:"id"`
	BridgeType string   `json:"bridge_type"`
	Channels   []string `json:"channels"`
}

// Playback is the subset of an ARI playback resource the engine consumes.
type Playback struct {
	ID       string `json:"id"`
	MediaURI string `json:"media_uri"`
	State    string `json:"state"`
}

// OriginateRequest describes an outbound channel to create, for either an
// outbound campaign dial or a blind-transfer target channel.
type OriginateRequest struct {
	// Endpoint is the PBX dial string, e.g. "SIP/6000" or "PJSIP/18005551212@trunk".
	Endpoint string

	// App is the Stasis application name the new channel enters once answered.
	App string

	// AppArgs are passed through to the Stasis application on entry.
	AppArgs []string

	// CallerID sets the caller identity presented to the dialed endpoint.
	// For a blind transfer this is the configured virtual extension, per
	// the requirement that the transfer-target channel's presented
	// identity is the virtual extension, not the original caller.
	CallerID string

	// ChannelVars are set on the new channel before it begins ringing.
	ChannelVars map[string]string

	// TimeoutSeconds bounds how long the PBX rings the endpoint before
	// giving up. Zero means the PBX default.
	TimeoutSeconds int
}

// ExternalMediaRequest describes a channel that streams call audio to/from
// this engine's own media transport instead of a SIP/PJSIP endpoint.
type ExternalMediaRequest struct {
	// ExternalHost is the host:port of this engine's AudioSocket or RTP
	// listener, advertised to the PBX as the media peer.
	ExternalHost string

	// Format is the wire codec the PBX will encode/decode (e.g. "ulaw", "alaw", "slin16").
	Format string

	// Transport selects "tcp" (AudioSocket framing) or "udp" (raw RTP).
	Transport string

	// Encapsulation is "audiosocket" or "rtp", matching Transport.
	Encapsulation string

	// ChannelVars are set on the new channel before the PBX connects it,
	// used to carry the AudioSocket session UUID the engine correlates its
	// accepted TCP connection against.
	ChannelVars map[string]string
}
