// Package session implements the per-host session state machine
// (spec §4.6-4.7): the request channel, task mailbox, and extra
// connection info the controller keeps for each connected agent, plus
// the name-keyed storage of all live sessions.
package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"

	"mxfleet/internal/concurrent"
	"mxfleet/internal/protocol"
	"mxfleet/internal/systeminfo"
)

// taskMailboxCapacity is the per-session bound on live task entries
// (spec §3, §5 Backpressure).
const taskMailboxCapacity = 128

// requestChannelCapacity is the per-session bound on outgoing requests
// (spec §3, §5 Backpressure).
const requestChannelCapacity = 32

// ExtraInfo is the descriptive, read-only-after-creation information
// a session carries about the agent it belongs to.
type ExtraInfo struct {
	SocketInfo     string                 `json:"socket_info"`
	ControllerURL  string                 `json:"controller_url"`
	SystemInfo     systeminfo.SystemInfo  `json:"system_info"`
	Envs           []string               `json:"envs"`
	SessionID      string                 `json:"session_id"`
}

// taskSlot is the mailbox payload: nil while pending, set once the
// matching AgentResponse arrives.
type taskSlot struct {
	resp *protocol.AgentResponse
}

// HostSession is the live state for one connected host. HostID and
// SessionID are immutable after construction; Tx/Tasks/Notify are the
// only mutable surfaces, and each is independently synchronized.
type HostSession struct {
	HostID    string
	SessionID string
	Extra     ExtraInfo

	tx    chan protocol.ControllerRequest
	tasks *concurrent.TaggedMailbox[uint64, taskSlot]

	// Notify is closed exactly once, when a newer connection for the
	// same HostID supersedes this session. The connection loop selects
	// on Notify.Done() to detect this and exit (spec §4.6-4.7, E2).
	Notify *Notifier
}

// Notifier is a one-shot broadcast: Done() returns a channel that is
// closed on the first call to Fire(); subsequent Fire calls are no-ops.
type Notifier struct {
	ch   chan struct{}
	once func()
}

// NewNotifier creates an unfired Notifier.
func NewNotifier() *Notifier {
	ch := make(chan struct{})
	var fired sync.Once
	return &Notifier{
		ch: ch,
		once: func() {
			fired.Do(func() { close(ch) })
		},
	}
}

// Fire closes Done() if it has not already been closed.
func (n *Notifier) Fire() { n.once() }

// Done returns a channel closed once Fire has been called.
func (n *Notifier) Done() <-chan struct{} { return n.ch }

// NewHostSession constructs a session in the Active state.
func NewHostSession(hostID string, extra ExtraInfo) *HostSession {
	return &HostSession{
		HostID:    hostID,
		SessionID: extra.SessionID,
		Extra:     extra,
		tx:        make(chan protocol.ControllerRequest, requestChannelCapacity),
		tasks:     concurrent.NewTaggedMailbox[uint64, taskSlot](taskMailboxCapacity),
		Notify:    NewNotifier(),
	}
}

// SendReq pushes a request onto the outgoing channel. It blocks until
// there is room or ctx is done; it fails only if ctx is canceled
// first (the channel itself is never closed while the session lives).
func (s *HostSession) SendReq(ctx context.Context, req protocol.ControllerRequest) error {
	select {
	case s.tx <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecvReq pops the next outgoing request, or reports the channel
// closed via ok=false.
func (s *HostSession) RecvReq(ctx context.Context) (protocol.ControllerRequest, bool) {
	select {
	case req, ok := <-s.tx:
		return req, ok
	case <-ctx.Done():
		return protocol.ControllerRequest{}, false
	}
}

// NewTask loop-generates a 48-bit task id, regenerating on a collision
// with a still-live id (spec §3, §8.2), until the mailbox accepts a
// pending slot for it, then returns the id. Send alone cannot detect a
// collision: it replaces an existing tag's value rather than rejecting
// it, which SetTaskFinished relies on, so the uniqueness check has to
// happen here before Send is ever called.
func (s *HostSession) NewTask() uint64 {
	for {
		id := randomTaskID()
		if taskIDLive(s.tasks.List(), id) {
			continue
		}
		if s.tasks.Send(id, taskSlot{resp: nil}) {
			return id
		}
	}
}

func taskIDLive(live []uint64, id uint64) bool {
	for _, existing := range live {
		if existing == id {
			return true
		}
	}
	return false
}

func randomTaskID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v >> 16 // 48-bit id, per spec §3
}

// SetTaskFinished records the agent's response for id, replacing the
// pending slot. If the mailbox rejected the write (capacity
// pressure), it is dropped and the caller should log a warning.
func (s *HostSession) SetTaskFinished(id uint64, resp protocol.AgentResponse) bool {
	return s.tasks.Send(id, taskSlot{resp: &resp})
}

// GetTaskState returns the task's current mailbox value (pending if
// resp is nil) without removing it or marking it read, or ok=false if
// id is unknown. A status check does not mark the entry read, so it
// never makes a still-pending task evictable; TakeIfFinished removes
// the entry once it has finished.
func (s *HostSession) GetTaskState(id uint64) (resp *protocol.AgentResponse, ok bool) {
	slot, ok := s.tasks.Peek(id)
	if !ok {
		return nil, false
	}
	return slot.resp, true
}

// TakeIfFinished removes and returns the response for id iff it has
// finished; used by the API boundary's poll-and-consume semantics
// (spec §6 GET /api/result).
func (s *HostSession) TakeIfFinished(id uint64) (protocol.AgentResponse, bool) {
	slot, ok := s.tasks.TakeIf(id, func(v taskSlot) bool { return v.resp != nil })
	if !ok {
		return protocol.AgentResponse{}, false
	}
	return *slot.resp, true
}

// ListTasks returns every live task id in this session's mailbox.
func (s *HostSession) ListTasks() []uint64 {
	return s.tasks.List()
}

// MarshalExtraInfo renders Extra as JSON, used by /api/info.
func (s *HostSession) MarshalExtraInfo() ([]byte, error) {
	data, err := json.Marshal(s.Extra)
	if err != nil {
		return nil, fmt.Errorf("marshal extra info: %w", err)
	}
	return data, nil
}
