package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/teamforge/realtime/internal/chat"
	"github.com/teamforge/realtime/internal/domain"
	"github.com/teamforge/realtime/internal/hub"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// MessagesController serves the messages channel: project chat rooms
// with persist-then-broadcast fan-out.
type MessagesController struct {
	Hub     *hub.Hub
	Chat    *chat.Service
	Limiter *chat.RateLimiter
}

func NewMessagesController(h *hub.Hub, svc *chat.Service, limiter *chat.RateLimiter) *MessagesController {
	return &MessagesController{Hub: h, Chat: svc, Limiter: limiter}
}

func (ctl *MessagesController) Handle(ctx context.Context, c *gin.Context, readLimit int64, pingPeriod time.Duration) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws.messages").Msg("upgrade")
		return
	}
	log.Info().Str("module", "ws.messages").Str("sid", c.GetString("client_token")).Msg("new connection")

	conn := newWSConn(ws)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go conn.writePump(ctx, pingPeriod)
	conn.readPump(ctx, readLimit, func(data []byte) {
		ctl.handleEvent(ctx, conn, data)
	})

	ctl.Hub.Drop(conn)
	conn.Close()
}

func (ctl *MessagesController) handleEvent(ctx context.Context, conn *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws.messages").Msg("bad json")
		return
	}

	switch env.Type {
	case "join_project":
		ctl.handleJoin(conn, data)
	case "leave_project":
		ctl.handleLeave(conn, data)
	case "send_message":
		ctl.handleSend(ctx, conn, data)
	case "mark_read":
		ctl.handleMarkRead(ctx, conn, data)
	case "ping":
		sendJSON(conn, pongEvent())
	default:
		log.Warn().Str("module", "ws.messages").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *MessagesController) handleJoin(conn *wsConn, data []byte) {
	type joinPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}
	ctl.Hub.Join(conn, p.ProjectID)
}

func (ctl *MessagesController) handleLeave(conn *wsConn, data []byte) {
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

func (ctl *MessagesController) handleSend(ctx context.Context, conn *wsConn, data []byte) {
	type sendPayload struct {
		ProjectID domain.ProjectID `json:"projectId"`
		SenderID  domain.UserID    `json:"senderId"`
		Content   string           `json:"content"`
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil || p.ProjectID == "" || p.SenderID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	if ctl.Limiter != nil && !ctl.Limiter.Allow(p.SenderID) {
		log.Warn().Str("module", "ws.messages").Str("sender", string(p.SenderID)).Msg("rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	if _, err := ctl.Chat.SendMessage(ctx, p.ProjectID, p.SenderID, p.Content); err != nil {
		log.Warn().Err(err).Str("module", "ws.messages").Str("project", string(p.ProjectID)).Msg("send_message rejected")
		ctl.sendError(conn, err.Error())
	}
}

func (ctl *MessagesController) handleMarkRead(ctx context.Context, conn *wsConn, data []byte) {
	type markPayload struct {
		MessageID domain.MessageID `json:"messageId"`
		UserID    domain.UserID    `json:"userId"`
	}
	var p markPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" || p.UserID == "" {
		ctl.sendError(conn, "bad_payload")
		return
	}

	msg, err := ctl.Chat.MarkRead(ctx, p.MessageID, p.UserID)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws.messages").Str("message", string(p.MessageID)).Msg("mark_read rejected")
		ctl.sendError(conn, err.Error())
		return
	}
	sendJSON(conn, chat.MessageReadEvent{
		Type:    chat.TypeMessageRead,
		Message: msg,
	})
}

func (ctl *MessagesController) sendError(conn *wsConn, msg string) {
	sendJSON(conn, chat.MessageErrorEvent{
		Type:  chat.TypeMessageError,
		Error: msg,
	})
}

func pongEvent() any {
	return struct {
		Type string `json:"type"`
	}{Type: "pong"}
}
