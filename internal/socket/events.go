package socket

import "encoding/json"

// 入站事件名稱（客戶端 -> 服務端）
const (
	EventSendMessage   = "sendMessage"
	EventEditMessage   = "editMessage"
	EventDeleteMessage = "deleteMessage"
	EventDeleteForMe   = "deleteMessageForMe"
	EventUpdateStatus  = "updateMessageStatus"
	EventTyping        = "typing"
)

// 出站事件名稱（服務端 -> 客戶端）
const (
	EventNewMessage           = "newMessage"
	EventMessageEdited        = "messageEdited"
	EventMessageDeleted       = "messageDeleted"
	EventMessageDeletedFor    = "messageDeletedForUser"
	EventMessageStatusUpdated = "messageStatusUpdated"
	EventReactionUpdated      = "messageReactionUpdated"
	EventUserTyping           = "userTyping"
	EventOnlineUsers          = "onlineUsersUpdate"
	EventError                = "error"
)

// Envelope 事件封包
// 所有入站與出站幀都是 {event, data} 形式的 JSON
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEvent 編碼出站事件
func encodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// sendMessagePayload sendMessage 事件數據
type sendMessagePayload struct {
	Message       string `json:"message"`
	MessageType   string `json:"messageType"`
	MediaURL      string `json:"mediaUrl"`
	MediaFileName string `json:"mediaFileName"`
	MediaSize     int64  `json:"mediaSize"`
	ReplyTo       string `json:"replyTo"`
}

// editMessagePayload editMessage 事件數據
type editMessagePayload struct {
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

// messageIDPayload 只攜帶消息 ID 的事件數據
type messageIDPayload struct {
	MessageID string `json:"messageId"`
}

// deletedForBroadcast messageDeletedForUser 單播數據
type deletedForBroadcast struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username"`
}

// statusPayload updateMessageStatus 事件數據
type statusPayload struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// typingPayload typing 事件數據
type typingPayload struct {
	IsTyping bool `json:"isTyping"`
}

// typingBroadcast userTyping 廣播數據
type typingBroadcast struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// statusBroadcast messageStatusUpdated 廣播數據
type statusBroadcast struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

// errorPayload error 事件數據
type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
