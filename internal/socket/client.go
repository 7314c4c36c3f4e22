package socket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"community-chat/internal/chat"
	"community-chat/internal/constants"
	"community-chat/internal/identity"
	"community-chat/internal/platform/config"
	"community-chat/internal/platform/logger"

	"github.com/gorilla/websocket"
)

// Client 單一 websocket 連接
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity identity.Identity
}

// NewClient 創建連接實例
func NewClient(hub *Hub, conn *websocket.Conn, id identity.Identity) *Client {
	sendBuffer := constants.DefaultSocketSendBuffer
	if cfg := config.Get(); cfg != nil && cfg.Limits.Socket.SendBuffer > 0 {
		sendBuffer = cfg.Limits.Socket.SendBuffer
	}

	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		identity: id,
	}
}

// socketTimings 讀取 websocket 時序配置
func socketTimings() (pongWait, writeWait time.Duration, maxMessageSize int64) {
	pongWait = time.Duration(constants.DefaultPongWaitSeconds) * time.Second
	writeWait = time.Duration(constants.DefaultWriteWaitSeconds) * time.Second
	maxMessageSize = constants.DefaultSocketMaxMessageSize

	if cfg := config.Get(); cfg != nil {
		if cfg.Limits.Socket.PongWaitSeconds > 0 {
			pongWait = time.Duration(cfg.Limits.Socket.PongWaitSeconds) * time.Second
		}
		if cfg.Limits.Socket.WriteWaitSeconds > 0 {
			writeWait = time.Duration(cfg.Limits.Socket.WriteWaitSeconds) * time.Second
		}
		if cfg.Limits.Socket.MaxMessageSize > 0 {
			maxMessageSize = cfg.Limits.Socket.MaxMessageSize
		}
	}
	return pongWait, writeWait, maxMessageSize
}

// ReadPump 讀取循環：解析入站事件並分發
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	pongWait, _, maxMessageSize := socketTimings()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.LogWarnf("連接異常關閉 (%s): %v", c.identity.DisplayName, err)
			}
			break
		}

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.sendError("", "invalid frame")
			continue
		}

		c.dispatch(&envelope)
	}
}

// WritePump 寫入循環：發送出站幀並維持心跳
func (c *Client) WritePump() {
	pongWait, writeWait, _ := socketTimings()
	ticker := time.NewTicker(pongWait * 9 / 10)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch 分發入站事件
func (c *Client) dispatch(envelope *Envelope) {
	ctx := logger.WithTraceID(context.Background(), logger.NewTraceID())

	switch envelope.Event {
	case EventSendMessage:
		c.handleSend(ctx, envelope.Data)
	case EventEditMessage:
		c.handleEdit(ctx, envelope.Data)
	case EventDeleteMessage:
		c.handleDelete(ctx, envelope.Data)
	case EventDeleteForMe:
		c.handleDeleteForMe(ctx, envelope.Data)
	case EventUpdateStatus:
		c.handleUpdateStatus(ctx, envelope.Data)
	case EventTyping:
		c.handleTyping(envelope.Data)
	default:
		c.sendError(envelope.Event, "unknown event")
	}
}

func (c *Client) handleSend(ctx context.Context, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(EventSendMessage, "invalid payload")
		return
	}

	msg, err := c.hub.service.Send(ctx, c.identity, chat.SendInput{
		Body:          payload.Message,
		Type:          payload.MessageType,
		MediaURL:      payload.MediaURL,
		MediaFileName: payload.MediaFileName,
		MediaSize:     payload.MediaSize,
		ReplyTo:       payload.ReplyTo,
	})
	if err != nil {
		c.sendServiceError(EventSendMessage, err)
		return
	}

	c.hub.BroadcastEvent(EventNewMessage, msg)
}

func (c *Client) handleEdit(ctx context.Context, data json.RawMessage) {
	var payload editMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(EventEditMessage, "invalid payload")
		return
	}

	msg, err := c.hub.service.Edit(ctx, c.identity, payload.MessageID, payload.Message)
	if err != nil {
		c.sendServiceError(EventEditMessage, err)
		return
	}

	c.hub.BroadcastEvent(EventMessageEdited, msg)
}

func (c *Client) handleDelete(ctx context.Context, data json.RawMessage) {
	var payload messageIDPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(EventDeleteMessage, "invalid payload")
		return
	}

	if _, err := c.hub.service.Delete(ctx, c.identity, payload.MessageID); err != nil {
		c.sendServiceError(EventDeleteMessage, err)
		return
	}

	c.hub.BroadcastEvent(EventMessageDeleted, messageIDPayload{MessageID: payload.MessageID})
}

func (c *Client) handleDeleteForMe(ctx context.Context, data json.RawMessage) {
	var payload messageIDPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(EventDeleteForMe, "invalid payload")
		return
	}

	if err := c.hub.service.DeleteForMe(ctx, c.identity, payload.MessageID); err != nil {
		c.sendServiceError(EventDeleteForMe, err)
		return
	}

	// 個人刪除只影響操作者自己的視圖，單播回執
	c.sendEvent(EventMessageDeletedFor, deletedForBroadcast{
		MessageID: payload.MessageID,
		UserID:    c.identity.UserID,
		Username:  c.identity.DisplayName,
	})
}

func (c *Client) handleUpdateStatus(ctx context.Context, data json.RawMessage) {
	var payload statusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(EventUpdateStatus, "invalid payload")
		return
	}

	msg, err := c.hub.service.UpdateStatus(ctx, c.identity, payload.MessageID, payload.Status)
	if err != nil {
		c.sendServiceError(EventUpdateStatus, err)
		return
	}

	c.hub.BroadcastEvent(EventMessageStatusUpdated, statusBroadcast{
		MessageID: payload.MessageID,
		Status:    msg.Status,
	})
}

func (c *Client) handleTyping(data json.RawMessage) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return
	}

	// 打字提示不回送給發送者
	c.hub.broadcastExcept(c, EventUserTyping, typingBroadcast{
		Username: c.identity.DisplayName,
		IsTyping: payload.IsTyping,
	})
}

// sendEvent 單播事件給此連接
func (c *Client) sendEvent(event string, data interface{}) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// sendError 單播錯誤事件
func (c *Client) sendError(event, message string) {
	c.sendEvent(EventError, errorPayload{Event: event, Message: message})
}

// sendServiceError 將服務層錯誤映射為對外錯誤事件
func (c *Client) sendServiceError(event string, err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.sendError(event, "Message not found")
	case errors.Is(err, chat.ErrForbidden):
		c.sendError(event, "Operation not allowed")
	case errors.Is(err, chat.ErrInvalidInput):
		c.sendError(event, err.Error())
	default:
		c.sendError(event, "Something went wrong, please try again")
	}
}
