package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"mxfleet/internal/protocol"
	"mxfleet/internal/session"
	"mxfleet/internal/systeminfo"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	pingInterval    = 15 * time.Second
	idleWarnAfter   = 20 * time.Second
	idleCloseAfter  = 60 * time.Second
)

// handleWebSocket upgrades /ws, validates the connect handshake, and
// runs the connection loop until it drops, is superseded, or the
// process shuts down.
func (st *State) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	headerVal := r.Header.Get(protocol.ConnectHandshakeHeader)
	if headerVal == "" {
		http.Error(w, "missing handshake header", http.StatusBadRequest)
		return
	}
	handshake, err := protocol.DecodeConnectHandshake(headerVal)
	if err != nil {
		http.Error(w, "invalid handshake header", http.StatusBadRequest)
		return
	}

	authHeader := r.Header.Get(protocol.AgentAuthHeader)
	var fingerprint string
	if authHeader != "" {
		if auth, err := protocol.DecodeAuthRequest(authHeader); err == nil && auth.Verify() {
			fingerprint = auth.Fingerprint()
		}
	}

	counterSigned, err := st.counterSignAuth()
	if err != nil {
		st.Log.Error().Err(err).Msg("failed to build controller auth response")
	}

	conn, err := wsUpgrader.Upgrade(w, r, http.Header{protocol.AgentAuthHeader: []string{counterSigned}})
	if err != nil {
		st.Log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	st.runConnection(r.Context(), conn, handshake, r.RemoteAddr, fingerprint)
}

// counterSignAuth lets the controller prove its own identity back to
// the agent (spec §4.4) if it has been given a keypair; an empty
// string means "no auth header sent", which agents with
// --enforce-auth will reject.
func (st *State) counterSignAuth() (string, error) {
	if st.Privkey == nil {
		return "", nil
	}
	req, err := protocol.NewAuthRequest(st.Privkey)
	if err != nil {
		return "", err
	}
	return req.Encode(), nil
}

func (st *State) runConnection(ctx context.Context, conn *websocket.Conn, handshake *protocol.ConnectHandshake, remoteAddr, fingerprint string) {
	defer conn.Close()

	log := st.Log.With().Str("host_id", handshake.HostID).Str("session_id", handshake.SessionID).Logger()

	extra := session.ExtraInfo{
		SocketInfo:    remoteAddr,
		ControllerURL: handshake.ControllerURL,
		Envs:          handshake.Envs,
		SessionID:     handshake.SessionID,
	}
	if handshake.SystemInfo != nil {
		var sysInfo systeminfo.SystemInfo
		if err := json.Unmarshal(handshake.SystemInfo, &sysInfo); err == nil {
			extra.SystemInfo = sysInfo
		}
	}

	sess := st.Sessions.CreateSession(handshake.HostID, extra)
	if sess.SessionID != handshake.SessionID {
		log.Warn().Str("incumbent_session", sess.SessionID).Msg("session id mismatch, notifying incumbent and rejecting this connection")
		sess.Notify.Fire()
		return
	}

	log.Info().Msg("websocket connection established")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	lastSeen := time.Now()

	inbound := make(chan *protocol.Message, 16)
	readErrCh := make(chan error, 1)
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go readLoop(readCtx, conn, inbound, readErrCh)

	outReq := make(chan protocol.ControllerRequest, 1)
	go forwardOutgoingRequests(readCtx, sess, outReq)

	for {
		select {
		case <-ctx.Done():
			st.Sessions.Remove(sess.HostID, sess.SessionID)
			return

		case <-sess.Notify.Done():
			log.Info().Msg("session superseded by a newer connection")
			st.Sessions.Remove(sess.HostID, sess.SessionID)
			return

		case req, ok := <-outReq:
			if !ok {
				log.Info().Msg("internal channel closed")
				st.Sessions.Remove(sess.HostID, sess.SessionID)
				return
			}
			data, err := protocol.NewControllerRequestMessage(req).Encode()
			if err != nil {
				log.Error().Err(err).Msg("encode controller request")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Msg("send controller request")
				st.Sessions.Remove(sess.HostID, sess.SessionID)
				return
			}

		case err := <-readErrCh:
			log.Warn().Err(err).Msg("websocket read failed, closing session")
			st.Sessions.Remove(sess.HostID, sess.SessionID)
			return

		case msg := <-inbound:
			lastSeen = time.Now()
			if msg.Kind == protocol.KindAgentResponse && msg.Response != nil {
				collectResponse(log, sess, *msg.Response)
			}

		case <-ticker.C:
			if time.Since(lastSeen) > idleCloseAfter {
				log.Error().Msg("connection idle too long, closing")
				st.Sessions.Remove(sess.HostID, sess.SessionID)
				return
			}
			if time.Since(lastSeen) > idleWarnAfter {
				log.Warn().Msg("no frames received recently")
			}
			if err := conn.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				log.Error().Err(err).Msg("send ping")
				st.Sessions.Remove(sess.HostID, sess.SessionID)
				return
			}
		}
	}
}

// forwardOutgoingRequests repeatedly drains sess's outgoing channel
// into out, so the connection's select loop can treat it like any
// other channel case without spawning a goroutine per iteration.
func forwardOutgoingRequests(ctx context.Context, sess *session.HostSession, out chan<- protocol.ControllerRequest) {
	defer close(out)
	for {
		req, ok := sess.RecvReq(ctx)
		if !ok {
			return
		}
		select {
		case out <- req:
		case <-ctx.Done():
			return
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, inbound chan<- *protocol.Message, errCh chan<- error) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case errCh <- fmt.Errorf("read message: %w", err):
			case <-ctx.Done():
			}
			return
		}
		if kind == websocket.BinaryMessage {
			select {
			case errCh <- fmt.Errorf("protocol error: binary frame from agent"):
			case <-ctx.Done():
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		msg, err := protocol.DecodeMessage(data)
		if err != nil {
			continue
		}
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}
