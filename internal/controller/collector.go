package controller

import (
	"github.com/rs/zerolog"

	"mxfleet/internal/protocol"
	"mxfleet/internal/session"
)

// collectResponse routes an inbound AgentResponse into the task
// mailbox of the session it belongs to (spec §4.8, grounded on the
// original collector that does the same one-line dispatch).
func collectResponse(log zerolog.Logger, sess *session.HostSession, resp protocol.AgentResponse) {
	log.Info().Str("host_id", sess.HostID).Uint64("task_id", resp.ID).Msg("task completed")
	if !sess.SetTaskFinished(resp.ID, resp) {
		log.Warn().Str("host_id", sess.HostID).Uint64("task_id", resp.ID).Msg("failed to record task state, mailbox full")
	}
}
