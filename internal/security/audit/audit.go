package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"community-chat/internal/platform/middleware"
)

// Trail 審計軌跡
// 記錄消息生命週期中的敏感操作，與應用日誌分開，供事後追查
type Trail struct {
	enabled bool
	logger  *log.Logger
}

// NewTrail 創建審計軌跡
func NewTrail(enabled bool) *Trail {
	return &Trail{
		enabled: enabled,
		logger:  log.Default(),
	}
}

// Event 審計事件
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	Username  string                 `json:"username,omitempty"`
	MessageID string                 `json:"message_id,omitempty"`
	Action    string                 `json:"action"`
	Result    string                 `json:"result"` // success, failure, denied
	Details   map[string]interface{} `json:"details,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
}

// MessageSent 記錄消息發送
func (t *Trail) MessageSent(ctx context.Context, userID, username, messageID, messageType string) {
	if !t.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		EventType: "message_sent",
		UserID:    userID,
		Username:  username,
		MessageID: messageID,
		Action:    "send_message",
		Result:    "success",
		Details: map[string]interface{}{
			"message_type": messageType,
		},
	}

	t.enrichWithMetadata(ctx, &event)
	t.log(event)
}

// MessageEdited 記錄消息編輯
func (t *Trail) MessageEdited(ctx context.Context, userID, username, messageID string) {
	if !t.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		EventType: "message_edited",
		UserID:    userID,
		Username:  username,
		MessageID: messageID,
		Action:    "edit_message",
		Result:    "success",
	}

	t.enrichWithMetadata(ctx, &event)
	t.log(event)
}

// MessageDeleted 記錄消息整體刪除
func (t *Trail) MessageDeleted(ctx context.Context, userID, username, messageID string) {
	if !t.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		EventType: "message_deleted",
		UserID:    userID,
		Username:  username,
		MessageID: messageID,
		Action:    "delete_message",
		Result:    "success",
	}

	t.enrichWithMetadata(ctx, &event)
	t.log(event)
}

// MessageHidden 記錄個人刪除
func (t *Trail) MessageHidden(ctx context.Context, userID, username, messageID string) {
	if !t.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		EventType: "message_hidden",
		UserID:    userID,
		Username:  username,
		MessageID: messageID,
		Action:    "delete_message_for_me",
		Result:    "success",
	}

	t.enrichWithMetadata(ctx, &event)
	t.log(event)
}

// StatusUpdated 記錄狀態推進
func (t *Trail) StatusUpdated(ctx context.Context, userID, username, messageID, status string) {
	if !t.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		EventType: "status_updated",
		UserID:    userID,
		Username:  username,
		MessageID: messageID,
		Action:    "update_status",
		Result:    "success",
		Details: map[string]interface{}{
			"status": status,
		},
	}

	t.enrichWithMetadata(ctx, &event)
	t.log(event)
}

// ReactionToggled 記錄反應切換
func (t *Trail) ReactionToggled(ctx context.Context, userID, username, messageID, kind string, added bool) {
	if !t.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		EventType: "reaction_toggled",
		UserID:    userID,
		Username:  username,
		MessageID: messageID,
		Action:    "toggle_reaction",
		Result:    "success",
		Details: map[string]interface{}{
			"type":  kind,
			"added": added,
		},
	}

	t.enrichWithMetadata(ctx, &event)
	t.log(event)
}

// AccessDenied 記錄被拒絕的操作
func (t *Trail) AccessDenied(ctx context.Context, userID, username, messageID, action string) {
	if !t.enabled {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		EventType: "access_denied",
		UserID:    userID,
		Username:  username,
		MessageID: messageID,
		Action:    action,
		Result:    "denied",
	}

	t.enrichWithMetadata(ctx, &event)
	t.log(event)
}

// log 記錄審計事件
func (t *Trail) log(event Event) {
	jsonData, err := json.Marshal(event)
	if err != nil {
		t.logger.Printf("[AUDIT-ERROR] Failed to marshal event: %v", err)
		return
	}

	t.logger.Printf("[AUDIT] %s", string(jsonData))
}

// IsEnabled 檢查審計是否啟用
func (t *Trail) IsEnabled() bool {
	return t.enabled
}

// enrichWithMetadata 從 context 提取請求元數據並豐富審計事件
func (t *Trail) enrichWithMetadata(ctx context.Context, event *Event) {
	meta := middleware.GetRequestMetadata(ctx)
	if meta == nil {
		return
	}
	if meta.IPAddress != "unknown" {
		event.IPAddress = meta.IPAddress
	}
	if meta.UserAgent != "unknown" {
		event.UserAgent = meta.UserAgent
	}
}
