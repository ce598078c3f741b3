package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/teamforge/realtime/internal/call"
	"github.com/teamforge/realtime/internal/domain"
	"github.com/teamforge/realtime/internal/hub"
)

// CallsController serves the calls channel: call lifecycle plus the
// signaling relay.
type CallsController struct {
	Hub   *hub.Hub
	Coord *call.Coordinator
}

func NewCallsController(h *hub.Hub, coord *call.Coordinator) *CallsController {
	return &CallsController{Hub: h, Coord: coord}
}

func (ctl *CallsController) Handle(ctx context.Context, c *gin.Context, readLimit int64, pingPeriod time.Duration) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws.calls").Msg("upgrade")
		return
	}
	log.Info().Str("module", "ws.calls").Str("sid", c.GetString("client_token")).Msg("new connection")

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go conn.writePump(ctx, pingPeriod)
	conn.readPump(ctx, readLimit, func(data []byte) {
		ctl.handleEvent(ctx, conn, data)
	})

	ctl.disconnect(conn)
	conn.Close()
}

// disconnect leaves every room first, then reconciles call state
// exactly once per room the connection had joined.
func (ctl *CallsController) disconnect(conn *wsConn) {
	user, bound := ctl.Hub.UserOf(conn)
	rooms := ctl.Hub.Drop(conn)
	if !bound {
		return
	}
	for _, projectID := range rooms {
		ctl.Coord.Disconnect(projectID, user)
	}
}

func (ctl *CallsController) handleEvent(ctx context.Context, conn *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws.calls").Msg("bad json")
		return
	}

	switch env.Type {
	case "join_call_room":
		ctl.handleJoinRoom(conn, data)
	case "leave_call_room":
		ctl.handleLeaveRoom(conn, data)
	case "start_call":
		ctl.handleStartCall(ctx, conn, data)
	case "accept_call":
		ctl.handleAcceptCall(ctx, conn, data)
	case "reject_call":
		ctl.handleRejectCall(conn, data)
	case "end_call":
		ctl.handleEndCall(conn, data)
	case "offer", "answer":
		ctl.handleSessionDescription(conn, env.Type, data)
	case "ice_candidate":
		ctl.handleCandidate(conn, data)
	case "ping":
		sendJSON(conn, pongEvent())
	default:
		log.Warn().Str("module", "ws.calls").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *CallsController) handleJoinRoom(conn *wsConn, data []byte) {
	type joinPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
		UserID    domain.UserID    `json:"userId"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.UserID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	// Identity first, so a disconnect between the two calls still
	// knows whose call state to reconcile.
	ctl.Hub.BindUser(conn, p.UserID)
	ctl.Hub.Join(conn, p.ProjectID)
}

func (ctl *CallsController) handleLeaveRoom(conn *wsConn, data []byte) {
	type leavePayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
	}
	var p leavePayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Hub.Leave(conn, p.ProjectID)
}

func (ctl *CallsController) handleStartCall(ctx context.Context, conn *wsConn, data []byte) {
	type startPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
		CallerID  domain.UserID    `json:"callerId"`
		IsVideo   bool             `json:"isVideo"`
	}
	var p startPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.CallerID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	if err := ctl.Coord.StartCall(ctx, conn, p.ProjectID, p.CallerID, p.IsVideo); err != nil {
		log.Warn().Err(err).Str("module", "ws.calls").Str("project", string(p.ProjectID)).Msg("start_call rejected")
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *CallsController) handleAcceptCall(ctx context.Context, conn *wsConn, data []byte) {
	type acceptPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
		CallerID  domain.UserID    `json:"callerId"`
		CalleeID  domain.UserID    `json:"calleeId"`
		IsVideo   bool             `json:"isVideo"`
	}
	var p acceptPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.CallerID == "" || p.CalleeID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	if err := ctl.Coord.AcceptCall(ctx, p.ProjectID, p.CallerID, p.CalleeID, p.IsVideo); err != nil {
		log.Warn().Err(err).Str("module", "ws.calls").Str("project", string(p.ProjectID)).Msg("accept_call rejected")
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *CallsController) handleRejectCall(conn *wsConn, data []byte) {
	type rejectPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
		CallerID  domain.UserID    `json:"callerId"`
		CalleeID  domain.UserID    `json:"calleeId"`
	}
	var p rejectPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.CallerID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Coord.RejectCall(p.ProjectID, p.CallerID, p.CalleeID)
}

func (ctl *CallsController) handleEndCall(conn *wsConn, data []byte) {
	type endPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
		CallerID  domain.UserID    `json:"callerId"`
		CalleeID  domain.UserID    `json:"calleeId"`
	}
	var p endPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.CallerID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Coord.EndCall(p.ProjectID, p.CallerID)
}

func (ctl *CallsController) handleSessionDescription(conn *wsConn, kind string, data []byte) {
	type sdpPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
		SDP       string           `json:"sdp"`
		CallerID  domain.UserID    `json:"callerId"`
		CalleeID  domain.UserID    `json:"calleeId"`
	}
	var p sdpPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	if kind == call.TypeOffer {
		ctl.Coord.RelayOffer(p.ProjectID, p.SDP, p.CallerID, p.CalleeID)
		return
	}
	ctl.Coord.RelayAnswer(p.ProjectID, p.SDP, p.CallerID, p.CalleeID)
}

func (ctl *CallsController) handleCandidate(conn *wsConn, data []byte) {
	type candidatePayload struct {
		ProjectID domain.ProjectID        `json:"projectId"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
		UserID    domain.UserID           `json:"userId"`
	}
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Coord.RelayCandidate(conn, p.ProjectID, p.Candidate, p.UserID)
}

func (ctl *CallsController) sendError(conn *wsConn, msg string) {
	sendJSON(conn, call.CallErrorEvent{
		Type:  call.TypeCallError,
		Error: msg,
	})
}
