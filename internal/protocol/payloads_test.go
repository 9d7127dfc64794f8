package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeRequestPayloadCommandExecution(t *testing.T) {
	raw, err := MarshalPayload(CommandExecutionRequest{
		Type:     RequestCommandExecution,
		Command:  "echo hi",
		UseShell: true,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := DecodeRequestPayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cmd, ok := decoded.(CommandExecutionRequest)
	if !ok {
		t.Fatalf("expected CommandExecutionRequest, got %T", decoded)
	}
	if cmd.Command != "echo hi" || !cmd.UseShell {
		t.Fatalf("unexpected payload: %+v", cmd)
	}
}

func TestDecodeRequestPayloadFileTransfer(t *testing.T) {
	raw, _ := MarshalPayload(FileTransferRequest{
		Type:      RequestFileTransfer,
		Operation: FileOpWrite,
		DestPath:  "/tmp/x",
		Content:   "hello",
	})

	decoded, err := DecodeRequestPayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ft, ok := decoded.(FileTransferRequest)
	if !ok {
		t.Fatalf("expected FileTransferRequest, got %T", decoded)
	}
	if ft.Operation != FileOpWrite || ft.Content != "hello" {
		t.Fatalf("unexpected payload: %+v", ft)
	}
}

func TestDecodeRequestPayloadUnknownType(t *testing.T) {
	if _, err := DecodeRequestPayload([]byte(`{"type":"bogus"}`)); err == nil {
		t.Fatal("expected error for unknown payload type")
	}
}

func TestDecodeResponsePayloadError(t *testing.T) {
	raw, _ := MarshalPayload(ErrorPayload{Type: ResponseError, Code: "TASK_NOT_FOUND", Message: "no such task"})
	decoded, err := DecodeResponsePayload(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	errPayload, ok := decoded.(ErrorPayload)
	if !ok || errPayload.Code != "TASK_NOT_FOUND" {
		t.Fatalf("unexpected payload: %+v (ok=%v)", decoded, ok)
	}
}

func TestStatusRoundTripsThroughJSON(t *testing.T) {
	statuses := []Status{
		StatusOk(),
		StatusErr(),
		StatusNotAccepted(),
		StatusPartialOk(3),
		StatusPartialFail(2),
		StatusFinished(9),
		StatusFinishedWithError(1),
		StatusFailFast(4),
	}

	for _, s := range statuses {
		resp := AgentResponse{ID: 1, Status: s, Payload: []byte(`{}`)}
		raw, err := MarshalPayload(resp)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var decoded AgentResponse
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded.Status != s {
			t.Fatalf("status mismatch: got %+v, want %+v", decoded.Status, s)
		}
	}
}
