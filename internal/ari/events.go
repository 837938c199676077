package ari

// EventType names a PBX event type as reported over the WebSocket event
// stream. Names match the underlying ARI wire vocabulary so operators
// reading PBX logs can correlate them directly.
type EventType string

const (
	// EventChannelEnteredApplication fires when a channel (inbound or the far
	// leg of an outbound originate) enters the Stasis application this
	// engine is registered as. This is the call-started signal for inbound
	// calls and the answered signal for outbound ones.
	EventChannelEnteredApplication EventType = "StasisStart"

	// EventChannelLeftApplication fires when a channel leaves the
	// application, either via hangup or an explicit continue-in-dialplan.
	EventChannelLeftApplication EventType = "StasisEnd"

	// EventChannelDestroyed fires when a channel is fully torn down.
	EventChannelDestroyed EventType = "ChannelDestroyed"

	// EventChannelStateChanged fires on ringing/up/down transitions.
	EventChannelStateChanged EventType = "ChannelStateChange"

	// EventPlaybackStarted fires when a StartPlayback call begins emitting media.
	EventPlaybackStarted EventType = "PlaybackStarted"

	// EventPlaybackFinished fires when a playback completes, is stopped, or
	// errors out. The engine relies on this to sequence hangup-after-farewell
	// for play-and-hangup announcements (voicemail drop, busy/no-answer
	// recordings) that don't go through a live provider session.
	EventPlaybackFinished EventType = "PlaybackFinished"

	// EventDTMFReceived fires when the PBX reports an in-band or RFC4733 DTMF digit.
	EventDTMFReceived EventType = "ChannelDtmfReceived"
)

// Event is the typed envelope for one PBX event delivered over the
// WebSocket stream. Only the fields relevant to a given Type are populated.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp string    `json:"timestamp"`

	Channel  *Channel  `json:"channel,omitempty"`
	Playback *Playback `json:"playback,omitempty"`

	// Digit holds the DTMF digit for EventDTMFReceived.
	Digit string `json:"digit,omitempty"`

	// Application is the Stasis application name the event was routed to.
	Application string `json:"application,omitempty"`

	// Args carries the Stasis application arguments for a StasisStart event,
	// as passed on the dialplan's Stasis() invocation. A plain inbound call
	// enters with no args; a leg re-entering after an outbound AMD dialplan
	// hop carries ["outbound_amd", attemptID, status, cause, ...].
	Args []string `json:"args,omitempty"`
}

// ChannelID returns the channel the event pertains to, or "" if none.
func (e Event) ChannelID() string {
	if e.Channel == nil {
		return ""
	}
	return e.Channel.ID
}
