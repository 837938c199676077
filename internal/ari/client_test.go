package ari_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/corvidlabs/voxcore/internal/ari"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *ari.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := ari.NewClient(srv.URL, "asterisk", "secret", "voxengine")
	return srv, c
}

func TestAnswerChannel_SendsPostAndBasicAuth(t *testing.T) {
	var gotMethod, gotPath string
	var gotUser, gotPass string
	var gotOK bool
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotUser, gotPass, gotOK = r.BasicAuth()
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.AnswerChannel(context.Background(), "chan-1"); err != nil {
		t.Fatalf("AnswerChannel: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/channels/chan-1/answer" {
		t.Fatalf("unexpected request: %s %s", gotMethod, gotPath)
	}
	if !gotOK || gotUser != "asterisk" || gotPass != "secret" {
		t.Fatalf("expected basic auth asterisk/secret, got %q/%q ok=%v", gotUser, gotPass, gotOK)
	}
}

func TestHangupChannel_IncludesReasonQueryParam(t *testing.T) {
	var gotQuery string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	})
	if err := c.HangupChannel(context.Background(), "chan-1", "busy"); err != nil {
		t.Fatalf("HangupChannel: %v", err)
	}
	if gotQuery != "reason=busy" {
		t.Fatalf("expected reason=busy query, got %q", gotQuery)
	}
}

func TestOriginateChannel_DecodesResponse(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/channels" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["endpoint"] != "PJSIP/18005551212@trunk" {
			t.Errorf("unexpected endpoint: %v", body["endpoint"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ari.Channel{ID: "chan-2", State: "Ring"})
	})

	ch, err := c.OriginateChannel(context.Background(), ari.OriginateRequest{
		Endpoint: "PJSIP/18005551212@trunk",
		App:      "voxengine",
		CallerID: "Campaign <1000>",
	})
	if err != nil {
		t.Fatalf("OriginateChannel: %v", err)
	}
	if ch.ID != "chan-2" || ch.State != "Ring" {
		t.Fatalf("unexpected channel: %+v", ch)
	}
}

func TestCreateBridge_DecodesResponse(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ari.Bridge{ID: "bridge-1", BridgeType: "mixing"})
	})
	b, err := c.CreateBridge(context.Background(), "mixing")
	if err != nil {
		t.Fatalf("CreateBridge: %v", err)
	}
	if b.ID != "bridge-1" {
		t.Fatalf("unexpected bridge: %+v", b)
	}
}

func TestStartPlayback_BuildsTargetPath(t *testing.T) {
	var gotPath string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(ari.Playback{ID: "pb-1", State: "playing"})
	})
	pb, err := c.StartPlayback(context.Background(), "bridges/bridge-1", "sound:welcome")
	if err != nil {
		t.Fatalf("StartPlayback: %v", err)
	}
	if gotPath != "/bridges/bridge-1/play" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if pb.ID != "pb-1" {
		t.Fatalf("unexpected playback: %+v", pb)
	}
}

func TestStopAllPlaybacks_StopsEveryIDAndReturnsFirstError(t *testing.T) {
	var stopped []string
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		stopped = append(stopped, r.URL.Path)
		if r.URL.Path == "/playbacks/bad" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	err := c.StopAllPlaybacks(context.Background(), []string{"good-1", "bad", "good-2"})
	if err == nil {
		t.Fatalf("expected an error from the failing stop")
	}
	if len(stopped) != 3 {
		t.Fatalf("expected all three stops attempted, got %v", stopped)
	}
}

func TestCreateExternalMediaChannel_SendsAppAndConnectionFields(t *testing.T) {
	var body map[string]any
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/externalMedia" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(ari.Channel{ID: "chan-ext"})
	})

	ch, err := c.CreateExternalMediaChannel(context.Background(), ari.ExternalMediaRequest{
		ExternalHost:  "127.0.0.1:9000",
		Format:        "ulaw",
		Transport:     "tcp",
		Encapsulation: "audiosocket",
		ChannelVars:   map[string]string{"AUDIOSOCKET_UUID": "abc-123"},
	})
	if err != nil {
		t.Fatalf("CreateExternalMediaChannel: %v", err)
	}
	if ch.ID != "chan-ext" {
		t.Fatalf("unexpected channel: %+v", ch)
	}
	if body["app"] != "voxengine" {
		t.Fatalf("expected app name to be sent, got %v", body["app"])
	}
	if body["external_host"] != "127.0.0.1:9000" || body["encapsulation"] != "audiosocket" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestDoRequest_NonSuccessStatusReturnsUnexpectedStatus(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	})
	err := c.AnswerChannel(context.Background(), "chan-1")
	if err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}
