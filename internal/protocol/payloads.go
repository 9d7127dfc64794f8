package protocol

import (
	"encoding/json"
	"fmt"
)

// RequestPayloadType discriminates ControllerRequest.Payload.
type RequestPayloadType string

const (
	RequestCommandExecution RequestPayloadType = "command_exec"
	RequestScriptEval       RequestPayloadType = "script_eval"
	RequestFileTransfer     RequestPayloadType = "file_transfer"
)

// FileOperationKind discriminates FileTransferRequest/FileOperationResponse.
type FileOperationKind string

const (
	FileOpDownload FileOperationKind = "download"
	FileOpUpload   FileOperationKind = "upload"
	FileOpRead     FileOperationKind = "read"
	FileOpWrite    FileOperationKind = "write"
)

// ControllerRequest is the request half of the message envelope.
type ControllerRequest struct {
	Version int             `json:"version"`
	ID      uint64          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// CommandExecutionRequest runs a shell command or a binary directly.
type CommandExecutionRequest struct {
	Type          RequestPayloadType `json:"type"`
	Command       string             `json:"command"`
	Args          []string           `json:"args,omitempty"`
	UseScriptFile bool               `json:"use_script_file,omitempty"`
	UseShell      bool               `json:"use_shell,omitempty"`
}

// ScriptEvalRequest hands a script to the embedded scripting host.
type ScriptEvalRequest struct {
	Type   RequestPayloadType `json:"type"`
	Script string              `json:"script"`
}

// FileTransferRequest covers all four file operations; only the
// fields relevant to Operation are populated.
type FileTransferRequest struct {
	Type      RequestPayloadType `json:"type"`
	Operation FileOperationKind  `json:"operation"`
	SrcURL    string             `json:"src_url,omitempty"`
	DestPath  string             `json:"dest_path,omitempty"`
	SrcPath   string             `json:"src_path,omitempty"`
	DestURL   string             `json:"dest_url,omitempty"`
	SizeLimit int64              `json:"size_limit,omitempty"`
	Content   string             `json:"content,omitempty"`
}

// MarshalPayload marshals a typed request payload for use as
// ControllerRequest.Payload.
func MarshalPayload(payload any) (json.RawMessage, error) {
	return json.Marshal(payload)
}

// DecodeRequestPayload inspects the "type" discriminator of raw and
// returns the concrete payload type it names.
func DecodeRequestPayload(raw json.RawMessage) (any, error) {
	var head struct {
		Type RequestPayloadType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode request payload type: %w", err)
	}
	switch head.Type {
	case RequestCommandExecution:
		var v CommandExecutionRequest
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case RequestScriptEval:
		var v ScriptEvalRequest
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case RequestFileTransfer:
		var v FileTransferRequest
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown request payload type %q", head.Type)
	}
}

// ResponsePayloadType discriminates AgentResponse.Payload.
type ResponsePayloadType string

const (
	ResponseCommandExecution ResponsePayloadType = "command_exec"
	ResponseScriptEval       ResponsePayloadType = "script_eval"
	ResponseFileOperation    ResponsePayloadType = "file_operation"
	ResponseError            ResponsePayloadType = "error"
)

// AgentResponse is the response half of the message envelope.
type AgentResponse struct {
	ID      uint64          `json:"id"`
	Status  Status          `json:"status"`
	Payload json.RawMessage `json:"payload"`
}

// CommandExecutionResponse carries a completed command's exit code and output.
type CommandExecutionResponse struct {
	Type   ResponsePayloadType `json:"type"`
	Code   int32               `json:"code"`
	Stdout string              `json:"stdout"`
	Stderr string              `json:"stderr"`
}

// ScriptEvalResponse carries the embedded scripting host's result.
type ScriptEvalResponse struct {
	Type   ResponsePayloadType `json:"type"`
	OK     bool                `json:"ok"`
	Result string              `json:"result"`
}

// FileOperationResponse covers Download/Upload/Read/Write results;
// only the fields relevant to Operation are populated.
type FileOperationResponse struct {
	Type      ResponsePayloadType `json:"type"`
	Operation FileOperationKind   `json:"operation"`
	OK        bool                `json:"ok"`
	Hash      string              `json:"hash,omitempty"`
	Size      int64               `json:"size,omitempty"`
	Content   string              `json:"content,omitempty"`
}

// ErrorPayload reports a request that could not be carried out.
type ErrorPayload struct {
	Type    ResponsePayloadType `json:"type"`
	Code    string              `json:"code"`
	Message string              `json:"message"`
}

// DecodeResponsePayload inspects the "type" discriminator of raw and
// returns the concrete payload type it names.
func DecodeResponsePayload(raw json.RawMessage) (any, error) {
	var head struct {
		Type ResponsePayloadType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode response payload type: %w", err)
	}
	switch head.Type {
	case ResponseCommandExecution:
		var v CommandExecutionResponse
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ResponseScriptEval:
		var v ScriptEvalResponse
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ResponseFileOperation:
		var v FileOperationResponse
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	case ResponseError:
		var v ErrorPayload
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown response payload type %q", head.Type)
	}
}

// StatusKind discriminates Status.
type StatusKind string

const (
	StatusKindOk                 StatusKind = "ok"
	StatusKindError              StatusKind = "error"
	StatusKindPartialOk          StatusKind = "partial_ok"
	StatusKindPartialFail        StatusKind = "partial_fail"
	StatusKindFinished           StatusKind = "finished"
	StatusKindFinishedWithError  StatusKind = "finished_with_error"
	StatusKindFailFast           StatusKind = "fail_fast"
	StatusKindNotAccepted        StatusKind = "not_accepted"
)

// Status is the tagged union described in spec §6. Kinds other than
// Ok/Error/NotAccepted carry a Count; round-tripping is the only
// guarantee (see spec §9 Open Questions).
type Status struct {
	Kind  StatusKind `json:"kind"`
	Count uint32     `json:"count,omitempty"`
}

func StatusOk() Status                      { return Status{Kind: StatusKindOk} }
func StatusErr() Status                     { return Status{Kind: StatusKindError} }
func StatusNotAccepted() Status             { return Status{Kind: StatusKindNotAccepted} }
func StatusPartialOk(n uint32) Status       { return Status{Kind: StatusKindPartialOk, Count: n} }
func StatusPartialFail(n uint32) Status     { return Status{Kind: StatusKindPartialFail, Count: n} }
func StatusFinished(n uint32) Status        { return Status{Kind: StatusKindFinished, Count: n} }
func StatusFinishedWithError(n uint32) Status {
	return Status{Kind: StatusKindFinishedWithError, Count: n}
}
func StatusFailFast(n uint32) Status { return Status{Kind: StatusKindFailFast, Count: n} }
