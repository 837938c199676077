package ari

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRequestTimeout = 10 * time.Second

// Client is an HTTP client for the PBX's REST command surface, paired with
// SubscribeEvents (ws.go) for the event stream half of the control
// interface. One Client is shared across every call the engine is driving;
// it holds no per-call state.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	appName    string
}

// NewClient builds a Client against baseURL (e.g. "http://127.0.0.1:8088/ari")
// authenticating with HTTP Basic Auth, the same scheme Asterisk's ARI uses.
// appName is the Stasis application this engine answers calls for.
func NewClient(baseURL, username, password, appName string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    baseURL,
		username:   username,
		password:   password,
		appName:    appName,
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ari: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("ari: build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ari: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ari: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnexpectedStatus, method, path, resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("ari: decode response: %w", err)
		}
	}
	return nil
}

// AnswerChannel answers an inbound channel currently ringing into the Stasis application.
func (c *Client) AnswerChannel(ctx context.Context, channelID string) error {
	return c.doRequest(ctx, http.MethodPost, "/channels/"+channelID+"/answer", nil, nil)
}

// HangupChannel terminates a channel. reason is passed through for PBX logs
// (e.g. "normal", "busy", "congestion").
func (c *Client) HangupChannel(ctx context.Context, channelID, reason string) error {
	path := "/channels/" + channelID
	if reason != "" {
		path += "?reason=" + reason
	}
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

// ContinueInDialplan releases a channel from the Stasis application back
// into the dialplan at the given context/extension/priority, used when a
// call falls through to a destination this engine doesn't handle.
func (c *Client) ContinueInDialplan(ctx context.Context, channelID, dialplanContext, extension string, priority int) error {
	body := map[string]any{
		"context":  dialplanContext,
		"extension": extension,
		"priority": priority,
	}
	return c.doRequest(ctx, http.MethodPost, "/channels/"+channelID+"/continue", body, nil)
}

// RedirectChannel moves a channel into a different Stasis application,
// used for a blind transfer handoff to an operator queue application.
func (c *Client) RedirectChannel(ctx context.Context, channelID, endpoint string) error {
	body := map[string]any{"endpoint": endpoint}
	return c.doRequest(ctx, http.MethodPost, "/channels/"+channelID+"/redirect", body, nil)
}

// GetChannel fetches the current state of a channel.
func (c *Client) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	var ch Channel
	err := c.doRequest(ctx, http.MethodGet, "/channels/"+channelID, nil, &ch)
	return ch, err
}

// CreateBridge creates a new mixing bridge, used to join the caller's
// channel with a blind-transfer target channel.
func (c *Client) CreateBridge(ctx context.Context, bridgeType string) (Bridge, error) {
	var b Bridge
	body := map[string]any{"type": bridgeType}
	err := c.doRequest(ctx, http.MethodPost, "/bridges", body, &b)
	return b, err
}

// AddChannelToBridge joins a channel to an existing bridge.
func (c *Client) AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error {
	body := map[string]any{"channel": channelID}
	return c.doRequest(ctx, http.MethodPost, "/bridges/"+bridgeID+"/addChannel", body, nil)
}

// RemoveChannelFromBridge removes a channel from a bridge without hanging it up.
func (c *Client) RemoveChannelFromBridge(ctx context.Context, bridgeID, channelID string) error {
	body := map[string]any{"channel": channelID}
	return c.doRequest(ctx, http.MethodPost, "/bridges/"+bridgeID+"/removeChannel", body, nil)
}

// DestroyBridge tears down a bridge. Any channels still joined are
// disconnected from each other but not hung up.
func (c *Client) DestroyBridge(ctx context.Context, bridgeID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/bridges/"+bridgeID, nil, nil)
}

// OriginateChannel places an outbound channel, used both for campaign dials
// and for the transfer-target leg of a blind transfer.
func (c *Client) OriginateChannel(ctx context.Context, req OriginateRequest) (Channel, error) {
	body := map[string]any{
		"endpoint":    req.Endpoint,
		"app":         req.App,
		"appArgs":     req.AppArgs,
		"callerId":    req.CallerID,
		"variables":   req.ChannelVars,
		"timeout":     req.TimeoutSeconds,
	}
	var ch Channel
	err := c.doRequest(ctx, http.MethodPost, "/channels", body, &ch)
	return ch, err
}

// CreateExternalMediaChannel creates a channel whose audio is streamed to
// this engine's own AudioSocket/RTP listener rather than a dialed endpoint.
// The returned Channel is joined to a bridge with the caller's channel the
// same way any other channel is, via AddChannelToBridge.
func (c *Client) CreateExternalMediaChannel(ctx context.Context, req ExternalMediaRequest) (Channel, error) {
	body := map[string]any{
		"app":             c.appName,
		"external_host":   req.ExternalHost,
		"format":          req.Format,
		"transport":       req.Transport,
		"encapsulation":   req.Encapsulation,
		"connection_type": "client",
		"direction":       "both",
		"variables":       req.ChannelVars,
	}
	var ch Channel
	err := c.doRequest(ctx, http.MethodPost, "/channels/externalMedia", body, &ch)
	return ch, err
}

// StartPlayback begins streaming mediaURI (e.g. "sound:welcome" or a
// recording URI) to the target, which is a channel or bridge ARI resource
// path such as "channels/abc123" or "bridges/xyz789".
func (c *Client) StartPlayback(ctx context.Context, target, mediaURI string) (Playback, error) {
	var pb Playback
	body := map[string]any{"media": mediaURI}
	err := c.doRequest(ctx, http.MethodPost, "/"+target+"/play", body, &pb)
	return pb, err
}

// StopPlayback halts a single in-progress playback by ID.
func (c *Client) StopPlayback(ctx context.Context, playbackID string) error {
	return c.doRequest(ctx, http.MethodDelete, "/playbacks/"+playbackID, nil, nil)
}

// StopAllPlaybacks stops every playback ID given. The PBX has no
// bulk-stop-by-channel endpoint, so the caller (the Playback Manager) is
// expected to track the IDs it started and pass all of them here, e.g. when
// a caller barges in mid-announcement.
func (c *Client) StopAllPlaybacks(ctx context.Context, playbackIDs []string) error {
	var firstErr error
	for _, id := range playbackIDs {
		if err := c.StopPlayback(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
