package tools_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corvidlabs/voxcore/internal/tools"
)

type stubTransferClient struct {
	called     bool
	callID     string
	dialString string
	err        error
}

func (s *stubTransferClient) OriginateTransfer(ctx context.Context, callID, dialString, virtualExtension string) error {
	s.called = true
	s.callID = callID
	s.dialString = dialString
	return s.err
}

func TestBlindTransferHandler_CallsClient(t *testing.T) {
	client := &stubTransferClient{}
	h := tools.NewBlindTransferHandler(client)

	out, err := h(context.Background(), `{"call_id":"call-1","dial_string":"SIP/6000","virtual_extension":"9000"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !client.called || client.callID != "call-1" || client.dialString != "SIP/6000" {
		t.Errorf("client = %+v", client)
	}
	if out != `{"status":"transferred"}` {
		t.Errorf("out = %q", out)
	}
}

func TestBlindTransferHandler_MissingFieldsErrors(t *testing.T) {
	h := tools.NewBlindTransferHandler(&stubTransferClient{})
	if _, err := h(context.Background(), `{}`); err == nil {
		t.Fatal("expected error for missing call_id/dial_string")
	}
}

type stubHangupGate struct {
	marked string
}

func (s *stubHangupGate) MarkHangupPending(callID string) { s.marked = callID }

func TestHangupHandler_MarksPendingNeverHangsUpDirectly(t *testing.T) {
	gate := &stubHangupGate{}
	h := tools.NewHangupHandler(gate)

	out, err := h(context.Background(), `{"call_id":"call-1","farewell":"Goodbye!"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if gate.marked != "call-1" {
		t.Errorf("marked = %q, want call-1", gate.marked)
	}
	if out == "" {
		t.Error("expected a non-empty farewell acknowledgment")
	}
}

func TestHTTPLookupHandler_PerformsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order_status":"shipped"}`))
	}))
	defer srv.Close()

	h := tools.NewHTTPLookupHandler(nil)
	out, err := h(context.Background(), `{"url":"`+srv.URL+`","method":"GET"}`)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if out != `{"order_status":"shipped"}` {
		t.Errorf("out = %q", out)
	}
}

func TestHTTPLookupHandler_ErrorStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := tools.NewHTTPLookupHandler(nil)
	if _, err := h(context.Background(), `{"url":"`+srv.URL+`"}`); err == nil {
		t.Fatal("expected error for 5xx response")
	}
}

func TestExpandEnv_ResolvesVariables(t *testing.T) {
	t.Setenv("TOOLS_TEST_VAR", "resolved")
	if got := tools.ExpandEnv("value=${TOOLS_TEST_VAR}"); got != "value=resolved" {
		t.Errorf("got %q", got)
	}
}
