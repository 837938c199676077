package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// TransferClient is the minimal PBX surface a blind-transfer built-in needs.
// internal/ari's client satisfies this.
type TransferClient interface {
	// OriginateTransfer dials dialString identified as virtualExtension,
	// waits for it to join the control app, removes the AI media endpoint
	// from callID's bridge, and adds the new channel in its place. It must
	// never route through an intermediate "local" channel.
	OriginateTransfer(ctx context.Context, callID, dialString, virtualExtension string) error
}

// HangupGate is the minimal call-session surface the hangup-with-farewell
// built-in needs: it only marks intent, since the actual hangup happens on
// the engine's agent_audio_done handling, never before farewell audio
// completes.
type HangupGate interface {
	MarkHangupPending(callID string)
}

// NewBlindTransferHandler returns the blind_transfer built-in. Expected args
// shape: {"call_id","dial_string","virtual_extension"}.
func NewBlindTransferHandler(client TransferClient) Handler {
	return func(ctx context.Context, args string) (string, error) {
		parsed := gjson.Parse(args)
		callID := parsed.Get("call_id").String()
		dialString := parsed.Get("dial_string").String()
		virtualExt := parsed.Get("virtual_extension").String()

		if callID == "" || dialString == "" {
			return "", fmt.Errorf("tools: blind_transfer requires call_id and dial_string")
		}
		if err := client.OriginateTransfer(ctx, callID, dialString, virtualExt); err != nil {
			return "", fmt.Errorf("tools: blind_transfer: %w", err)
		}
		return `{"status":"transferred"}`, nil
	}
}

// NewHangupHandler returns the hangup_call built-in. Expected args shape:
// {"call_id","farewell"}. It never hangs up directly — it marks the call's
// hangup_pending flag so the engine hangs up only after the farewell audio
// finishes playing.
func NewHangupHandler(gate HangupGate) Handler {
	return func(ctx context.Context, args string) (string, error) {
		parsed := gjson.Parse(args)
		callID := parsed.Get("call_id").String()
		farewell := parsed.Get("farewell").String()

		if callID == "" {
			return "", fmt.Errorf("tools: hangup_call requires call_id")
		}
		gate.MarkHangupPending(callID)
		return fmt.Sprintf(`{"status":"hangup_pending","farewell":%q}`, farewell), nil
	}
}

// NewHTTPLookupHandler returns the http_lookup built-in. Expected args
// shape: {"url","method","headers":{...},"body"}; an output_mode field is
// not read. url, headers, and body are used as given — this built-in
// performs no {call_id}-style or ${VAR}-style substitution — and the raw
// response body is returned.
func NewHTTPLookupHandler(client *http.Client) Handler {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, args string) (string, error) {
		parsed := gjson.Parse(args)
		url := parsed.Get("url").String()
		method := strings.ToUpper(parsed.Get("method").String())
		if method == "" {
			method = http.MethodGet
		}
		body := parsed.Get("body").String()

		var bodyReader io.Reader
		if body != "" {
			bodyReader = strings.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return "", fmt.Errorf("tools: http_lookup: build request: %w", err)
		}
		parsed.Get("headers").ForEach(func(k, v gjson.Result) bool {
			req.Header.Set(k.String(), v.String())
			return true
		})

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("tools: http_lookup: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("tools: http_lookup: read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return "", fmt.Errorf("tools: http_lookup: status %d", resp.StatusCode)
		}
		return string(respBody), nil
	}
}

// ExpandEnv resolves ${VAR} placeholders against the process environment,
// per tool, at request build time rather than globally in configuration.
func ExpandEnv(s string) string {
	return os.Expand(s, os.Getenv)
}
