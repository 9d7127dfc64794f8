package controller

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"mxfleet/internal/session"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	cfg := &Config{HTTPPort: 8080, HTTPSPort: 8443, DisableDiscovery: true}
	st, err := NewState(cfg, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	return st
}

func TestHandleListEmpty(t *testing.T) {
	st := newTestState(t)
	rec := httptest.NewRecorder()
	st.handleList(rec, httptest.NewRequest("GET", "/api/list", nil))

	var body struct {
		OK       bool     `json:"ok"`
		Sessions []string `json:"sessions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || len(body.Sessions) != 0 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestHandleInfoUnknownHost(t *testing.T) {
	st := newTestState(t)
	req := httptest.NewRequest("GET", "/api/info?host=nope", nil)
	rec := httptest.NewRecorder()
	st.handleInfo(rec, req)
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSendRequestThenResult(t *testing.T) {
	st := newTestState(t)
	sess := st.Sessions.CreateSession("host-1", session.ExtraInfo{SessionID: "sess-1"})

	req := httptest.NewRequest("POST", "/api/task/exec", bytes.NewBufferString(`{"host":"host-1","command":"echo hi","use_shell":true}`))
	rec := httptest.NewRecorder()
	st.handleTaskExec(rec, req)

	var sent struct {
		OK     bool   `json:"ok"`
		TaskID uint64 `json:"task_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&sent); err != nil {
		t.Fatalf("decode send response: %v", err)
	}
	if !sent.OK {
		t.Fatalf("expected ok send response")
	}

	// The request is now sitting on sess's outgoing channel.
	got, ok := sess.RecvReq(req.Context())
	if !ok || got.ID != sent.TaskID {
		t.Fatalf("expected to receive the queued request with id %d, got %+v ok=%v", sent.TaskID, got, ok)
	}

	resultReq := httptest.NewRequest("GET", "/api/result?host=host-1&task_id=999999", nil)
	resultRec := httptest.NewRecorder()
	st.handleResult(resultRec, resultReq)
	if resultRec.Code != 404 {
		t.Fatalf("expected 404 for unknown task, got %d", resultRec.Code)
	}
}

func TestSendRequestUnknownHost(t *testing.T) {
	st := newTestState(t)
	req := httptest.NewRequest("POST", "/api/task/exec", bytes.NewBufferString(`{"host":"missing","command":"echo hi"}`))
	rec := httptest.NewRecorder()
	st.handleTaskExec(rec, req)
	if rec.Code != 404 {
		t.Fatalf("expected 404 for unknown host, got %d", rec.Code)
	}
}

func TestDiscoveryStartsDisabledPerConfig(t *testing.T) {
	st := newTestState(t)

	rec := httptest.NewRecorder()
	st.handleDiscoveryGet(rec, httptest.NewRequest("GET", "/api/discovery", nil))
	var got struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Enabled {
		t.Fatal("expected discovery to start disabled per config")
	}
}
