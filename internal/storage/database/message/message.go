package message

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// 消息類型
const (
	TypeText  = "text"
	TypeImage = "image"
	TypeVideo = "video"
	TypeAudio = "audio"
	TypeFile  = "file"
)

// 消息狀態
// sending 僅在發送者主動重設時出現；創建即落地為 sent
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// 反應集合名稱
const (
	ReactionLikes    = "likes"
	ReactionDislikes = "dislikes"
)

// MessageRepository 消息倉儲接口
type MessageRepository interface {
	Create(ctx context.Context, message *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	List(ctx context.Context, page, pageSize int, viewerUserID, viewerUsername string) ([]*Message, bool, error)
	SetBody(ctx context.Context, id, body string) error
	SoftDelete(ctx context.Context, id string) error
	AddDeletedFor(ctx context.Context, id, userID, username string) error
	SetStatus(ctx context.Context, id, status string) error
	PullReaction(ctx context.Context, id, set, userID, username string) (bool, error)
	PushReactionIfAbsent(ctx context.Context, id, set, userID, username string) (bool, error)
}

// Party 子文檔中的身份條目（個人刪除列表與反應列表共用）
// 訪客的 UserID 為空字串，以 Username 匹配
type Party struct {
	UserID   string    `bson:"user_id" json:"userId,omitempty"`
	Username string    `bson:"username" json:"username"`
	At       time.Time `bson:"at" json:"timestamp"`
}

// ReplySummary 回覆目標的摘要投影
type ReplySummary struct {
	MessageID  string    `json:"messageId"`
	Body       string    `json:"message"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}

// Reactions 消息反應集合
type Reactions struct {
	Likes    []Party `bson:"likes" json:"likes"`
	Dislikes []Party `bson:"dislikes" json:"dislikes"`
}

// Message 消息數據模型
type Message struct {
	ID            bson.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID      string        `bson:"sender_id,omitempty" json:"senderId,omitempty"`
	SenderName    string        `bson:"sender_name" json:"senderName"`
	Body          string        `bson:"message" json:"message"`
	Type          string        `bson:"message_type" json:"messageType"`
	MediaURL      string        `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	MediaFileName string        `bson:"media_file_name,omitempty" json:"mediaFileName,omitempty"`
	MediaSize     int64         `bson:"media_size,omitempty" json:"mediaSize,omitempty"`
	Timestamp     time.Time     `bson:"timestamp" json:"timestamp"`
	Edited        bool          `bson:"edited" json:"edited"`
	EditedAt      *time.Time    `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	Deleted       bool          `bson:"deleted" json:"deleted"`
	DeletedFor    []Party       `bson:"deleted_for" json:"-"`
	Status        string        `bson:"status" json:"status"`
	ReplyTo       string        `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	Reactions     Reactions     `bson:"reactions" json:"reactions"`

	// ReplySummary 由服務層在讀取路徑上解析，不落地
	ReplySummary *ReplySummary `bson:"-" json:"replyToMessage,omitempty"`
}

// GetID 獲取 ID 的字符串形式
func (m *Message) GetID() string {
	return m.ID.Hex()
}

// IsSender 檢查給定身份是否為消息發送者
// 已認證消息以 sender_id 匹配；訪客消息只接受訪客身份以 sender_name 匹配，
// 避免同名的已認證用戶冒充訪客發送者
func (m *Message) IsSender(userID, username string) bool {
	if m.SenderID != "" {
		return m.SenderID == userID
	}
	return userID == "" && m.SenderName == username
}

// ValidStatus 檢查狀態值是否合法
func ValidStatus(status string) bool {
	switch status {
	case StatusSending, StatusSent, StatusDelivered, StatusRead:
		return true
	}
	return false
}

// ValidType 檢查消息類型是否合法
func ValidType(messageType string) bool {
	switch messageType {
	case TypeText, TypeImage, TypeVideo, TypeAudio, TypeFile:
		return true
	}
	return false
}
