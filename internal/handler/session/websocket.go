package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/pac-chat/backend/internal/handler/apierr"
	chatService "github.com/zhouzirui/pac-chat/backend/internal/service/chat"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// SubmitMessage 用户输入
type SubmitMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serialises writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// handleWebSocket 处理WebSocket连接；连接断开即关闭会话
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.manager.Get(sessionID)
	if err != nil {
		apierr.Respond(w, err)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	conn := &wsConn{conn: raw}

	log.Printf("[websocket] new connection for session: %s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		if err := h.manager.Close(sessionID); err != nil && !errors.Is(err, chatService.ErrSessionNotFound) {
			log.Printf("[websocket] close session %s failed: %v", sessionID, err)
		}
		inflight.Wait()
		raw.Close()
		log.Printf("[websocket] connection closed for session: %s", sessionID)
	}()

	raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go h.pingLoop(ctx, raw)

	h.sendSnapshot(conn, session)

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}

		raw.SetReadDeadline(time.Now().Add(pongWait))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, sessionID, http.StatusBadRequest, "session mismatch")
			continue
		}

		switch msg.Type {
		case "submit":
			var payload SubmitMessage
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				h.sendError(conn, sessionID, http.StatusBadRequest, "invalid submit payload")
				continue
			}
			// 在独立协程中等待回复，读循环继续处理后续帧
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				h.submit(ctx, conn, session, payload.Text)
			}()
		case "snapshot":
			h.sendSnapshot(conn, session)
		default:
			h.sendError(conn, sessionID, http.StatusBadRequest, "unsupported message type: "+msg.Type)
		}
	}
}

func (h *Handler) submit(ctx context.Context, conn *wsConn, session *chatService.Session, text string) {
	if _, err := session.Submit(ctx, text); err != nil {
		if errors.Is(err, chatService.ErrSessionClosed) {
			return
		}
		h.sendError(conn, session.ID(), apierr.Status(err), err.Error())
		if errors.Is(err, chatService.ErrCompletionPending) {
			return
		}
	}
	h.sendSnapshot(conn, session)
}

func (h *Handler) sendSnapshot(conn *wsConn, session *chatService.Session) {
	msg := outgoingMessage{
		Type:      "snapshot",
		SessionID: session.ID(),
		Data:      session.Snapshot(),
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		log.Printf("[websocket] write snapshot failed: %v", err)
	}
}

func (h *Handler) sendError(conn *wsConn, sessionID string, status int, message string) {
	msg := outgoingMessage{
		Type:      "error",
		SessionID: sessionID,
		Data:      map[string]any{"status": status, "message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.writeJSON(msg); err != nil {
		log.Printf("[websocket] write error failed: %v", err)
	}
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
