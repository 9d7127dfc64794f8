package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mxfleet/internal/protocol"
)

const (
	reasonSessionNotFound    = "SESSION_NOT_FOUND"
	reasonTaskNotFound       = "TASK_NOT_FOUND"
	reasonTaskNotCompleted   = "TASK_NOT_COMPLETED"
	reasonInternalError      = "INTERNAL_ERROR"
	sendReqTimeout           = 5 * time.Second
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleList answers GET /api/list.
func (st *State) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"sessions": st.Sessions.List(),
	})
}

// handleListInfo answers GET /api/list-info.
func (st *State) handleListInfo(w http.ResponseWriter, r *http.Request) {
	hosts := st.Sessions.List()
	type hostInfo struct {
		Host string `json:"host"`
		Info any    `json:"info,omitempty"`
	}
	out := make([]hostInfo, 0, len(hosts))
	for _, host := range hosts {
		sess := st.Sessions.Get(host)
		if sess == nil {
			out = append(out, hostInfo{Host: host})
			continue
		}
		out = append(out, hostInfo{Host: host, Info: sess.Extra})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hosts": out})
}

// handleInfo answers GET /api/info?host=….
func (st *State) handleInfo(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	sess := st.Sessions.Get(host)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "host": host, "info": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "host": host, "info": sess.Extra})
}

// handleAllTasks answers GET /api/all-tasks?host=….
func (st *State) handleAllTasks(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	sess := st.Sessions.Get(host)
	if sess == nil {
		writeJSON(w, http.StatusOK, []uint64{})
		return
	}
	writeJSON(w, http.StatusOK, sess.ListTasks())
}

// handleResult answers GET /api/result?host=…&task_id=…, consuming
// the task's response from the mailbox on success (spec §6).
func (st *State) handleResult(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	sess := st.Sessions.Get(host)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": reasonSessionNotFound})
		return
	}

	taskIDStr := r.URL.Query().Get("task_id")
	taskID, err := strconv.ParseUint(taskIDStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": reasonTaskNotFound})
		return
	}

	resp, ok := sess.TakeIfFinished(taskID)
	if ok {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "payload": resp})
		return
	}

	if _, exists := sess.GetTaskState(taskID); exists {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": reasonTaskNotCompleted})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": reasonTaskNotFound})
}

// sendRequest allocates a task id on host's session, enqueues req with
// that id, and writes the standard {ok, task_id} / error response.
func (st *State) sendRequest(w http.ResponseWriter, host string, payload any) {
	sess := st.Sessions.Get(host)
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "reason": reasonSessionNotFound})
		return
	}

	raw, err := protocol.MarshalPayload(payload)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": reasonInternalError})
		return
	}

	taskID := sess.NewTask()
	req := protocol.ControllerRequest{Version: protocol.ProtocolVersion, ID: taskID, Payload: raw}

	ctx, cancel := context.WithTimeout(context.Background(), sendReqTimeout)
	defer cancel()
	if err := sess.SendReq(ctx, req); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": reasonInternalError})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "task_id": taskID})
}

type execTaskRequest struct {
	Host          string   `json:"host"`
	Command       string   `json:"command"`
	Args          []string `json:"args,omitempty"`
	UseScriptFile bool     `json:"use_script_file,omitempty"`
	UseShell      bool     `json:"use_shell,omitempty"`
}

// handleTaskExec answers POST /api/task/exec.
func (st *State) handleTaskExec(w http.ResponseWriter, r *http.Request) {
	var req execTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "INVALID_BODY"})
		return
	}
	st.sendRequest(w, req.Host, protocol.CommandExecutionRequest{
		Type:          protocol.RequestCommandExecution,
		Command:       req.Command,
		Args:          req.Args,
		UseScriptFile: req.UseScriptFile,
		UseShell:      req.UseShell,
	})
}

type fileTaskRequest struct {
	Host      string `json:"host"`
	Operation string `json:"operation"`
	SrcURL    string `json:"src_url,omitempty"`
	DestPath  string `json:"dest_path,omitempty"`
	SrcPath   string `json:"src_path,omitempty"`
	DestURL   string `json:"dest_url,omitempty"`
	SizeLimit int64  `json:"size_limit,omitempty"`
	Content   string `json:"content,omitempty"`
}

// handleTaskFile answers POST /api/task/file.
func (st *State) handleTaskFile(w http.ResponseWriter, r *http.Request) {
	var req fileTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "INVALID_BODY"})
		return
	}
	st.sendRequest(w, req.Host, protocol.FileTransferRequest{
		Type:      protocol.RequestFileTransfer,
		Operation: protocol.FileOperationKind(req.Operation),
		SrcURL:    req.SrcURL,
		DestPath:  req.DestPath,
		SrcPath:   req.SrcPath,
		DestURL:   req.DestURL,
		SizeLimit: req.SizeLimit,
		Content:   req.Content,
	})
}

type scriptTaskRequest struct {
	Host   string `json:"host"`
	Script string `json:"script"`
}

// handleTaskScript answers POST /api/task/script.
func (st *State) handleTaskScript(w http.ResponseWriter, r *http.Request) {
	var req scriptTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "INVALID_BODY"})
		return
	}
	st.sendRequest(w, req.Host, protocol.ScriptEvalRequest{Type: protocol.RequestScriptEval, Script: req.Script})
}

// handleDiscoveryGet answers GET /api/discovery.
func (st *State) handleDiscoveryGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": st.DiscoveryEnabled()})
}

// handleDiscoveryPost answers POST /api/discovery, toggling the
// responder per the {"enabled": bool} body.
func (st *State) handleDiscoveryPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "reason": "INVALID_BODY"})
		return
	}
	if err := st.SetDiscoveryEnabled(body.Enabled); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "reason": reasonInternalError})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": body.Enabled})
}
