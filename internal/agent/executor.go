package agent

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"

	"mxfleet/internal/protocol"
)

// ScriptEvaluator runs a ScriptEvalRequest's script and returns its
// textual result. The embedded scripting host and its library
// bindings (HTTP fetch, JSON/YAML, subprocess) are an external
// collaborator the executor consumes only through this interface.
type ScriptEvaluator interface {
	Eval(ctx context.Context, script string) (string, error)
}

// ShellEvaluator is a minimal ScriptEvaluator that hands the script
// straight to the system shell. It stands in for the real embedded
// scripting host, which this module treats as out of scope.
type ShellEvaluator struct{}

// Eval runs script via "sh -c" and returns its stdout; stderr is not
// included in the result.
func (ShellEvaluator) Eval(ctx context.Context, script string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", script).Output()
	return string(out), err
}

// Executor dispatches decoded ControllerRequest payloads to their
// concrete handlers and builds the matching AgentResponse.
type Executor struct {
	Script ScriptEvaluator
	HTTP   *http.Client
}

// NewExecutor builds an Executor with the default shell-backed script
// evaluator and a plain HTTP client for file transfers.
func NewExecutor() *Executor {
	return &Executor{Script: ShellEvaluator{}, HTTP: http.DefaultClient}
}

// Handle runs req and returns the AgentResponse to send back,
// choosing Status/payload per the request's outcome (spec §6).
func (e *Executor) Handle(ctx context.Context, req protocol.ControllerRequest) protocol.AgentResponse {
	payload, err := protocol.DecodeRequestPayload(req.Payload)
	if err != nil {
		return e.errorResponse(req.ID, "ERR_DECODE", err.Error())
	}

	switch p := payload.(type) {
	case protocol.CommandExecutionRequest:
		return e.handleCommand(req.ID, p)
	case protocol.ScriptEvalRequest:
		return e.handleScript(ctx, req.ID, p)
	case protocol.FileTransferRequest:
		return e.handleFileTransfer(ctx, req.ID, p)
	default:
		return e.errorResponse(req.ID, "ERR_UNSUPPORTED", fmt.Sprintf("unsupported payload %T", payload))
	}
}

func (e *Executor) handleCommand(id uint64, req protocol.CommandExecutionRequest) protocol.AgentResponse {
	var cmd *exec.Cmd
	if req.UseShell {
		cmd = exec.Command("sh", "-c", req.Command)
	} else {
		cmd = exec.Command(req.Command, req.Args...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := int32(0)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = int32(exitErr.ExitCode())
		} else {
			return e.errorResponse(id, "ERR_COMMAND_EXECUTION", err.Error())
		}
	}

	resp := protocol.CommandExecutionResponse{
		Type:   protocol.ResponseCommandExecution,
		Code:   code,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	return e.okResponse(id, resp)
}

func (e *Executor) handleScript(ctx context.Context, id uint64, req protocol.ScriptEvalRequest) protocol.AgentResponse {
	result, err := e.Script.Eval(ctx, req.Script)
	if err != nil {
		return e.errorResponse(id, "ERR_SCRIPT_EVAL", err.Error())
	}
	resp := protocol.ScriptEvalResponse{Type: protocol.ResponseScriptEval, OK: true, Result: result}
	return e.okResponse(id, resp)
}

func (e *Executor) handleFileTransfer(ctx context.Context, id uint64, req protocol.FileTransferRequest) protocol.AgentResponse {
	switch req.Operation {
	case protocol.FileOpDownload:
		return e.fileOpResult(id, req.Operation, e.download(ctx, req.SrcURL, req.DestPath))
	case protocol.FileOpUpload:
		return e.fileOpResult(id, req.Operation, e.upload(ctx, req.SrcPath, req.DestURL))
	case protocol.FileOpRead:
		return e.fileOpResult(id, req.Operation, e.read(req.SrcPath, req.SizeLimit))
	case protocol.FileOpWrite:
		return e.fileOpResult(id, req.Operation, e.write(req.DestPath, req.Content))
	default:
		return e.errorResponse(id, "ERR_UNSUPPORTED", fmt.Sprintf("unknown file operation %q", req.Operation))
	}
}

type fileOpOutcome struct {
	resp protocol.FileOperationResponse
	err  error
}

func (e *Executor) fileOpResult(id uint64, op protocol.FileOperationKind, outcome fileOpOutcome) protocol.AgentResponse {
	if outcome.err != nil {
		return e.errorResponse(id, "ERR_FILE_OPERATION", outcome.err.Error())
	}
	outcome.resp.Type = protocol.ResponseFileOperation
	outcome.resp.Operation = op
	outcome.resp.OK = true
	return e.okResponse(id, outcome.resp)
}

func (e *Executor) download(ctx context.Context, url, destPath string) fileOpOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	resp, err := e.HTTP.Do(req)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fileOpOutcome{err: fmt.Errorf("download %s: status %d", url, resp.StatusCode)}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	defer out.Close()

	hasher := sha256.New()
	size, err := io.Copy(out, io.TeeReader(resp.Body, hasher))
	if err != nil {
		return fileOpOutcome{err: err}
	}

	return fileOpOutcome{resp: protocol.FileOperationResponse{
		Hash: hex.EncodeToString(hasher.Sum(nil)),
		Size: size,
	}}
}

func (e *Executor) upload(ctx context.Context, srcPath, destURL string) fileOpOutcome {
	f, err := os.Open(srcPath)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fileOpOutcome{err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, destURL, f)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	req.ContentLength = info.Size()

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fileOpOutcome{err: fmt.Errorf("upload %s: status %d", destURL, resp.StatusCode)}
	}
	return fileOpOutcome{resp: protocol.FileOperationResponse{Size: info.Size()}}
}

func (e *Executor) read(srcPath string, sizeLimit int64) fileOpOutcome {
	f, err := os.Open(srcPath)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	defer f.Close()

	var reader io.Reader = f
	if sizeLimit > 0 {
		reader = io.LimitReader(f, sizeLimit)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return fileOpOutcome{err: err}
	}
	return fileOpOutcome{resp: protocol.FileOperationResponse{Content: string(data), Size: int64(len(data))}}
}

func (e *Executor) write(destPath, content string) fileOpOutcome {
	if err := os.WriteFile(destPath, []byte(content), 0o644); err != nil {
		return fileOpOutcome{err: err}
	}
	return fileOpOutcome{resp: protocol.FileOperationResponse{Size: int64(len(content))}}
}

func (e *Executor) okResponse(id uint64, payload any) protocol.AgentResponse {
	raw, err := protocol.MarshalPayload(payload)
	if err != nil {
		return e.errorResponse(id, "ERR_ENCODE", err.Error())
	}
	return protocol.AgentResponse{ID: id, Status: protocol.StatusOk(), Payload: raw}
}

func (e *Executor) errorResponse(id uint64, code, message string) protocol.AgentResponse {
	raw, _ := protocol.MarshalPayload(protocol.ErrorPayload{Type: protocol.ResponseError, Code: code, Message: message})
	return protocol.AgentResponse{ID: id, Status: protocol.StatusErr(), Payload: raw}
}
