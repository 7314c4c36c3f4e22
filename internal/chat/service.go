package chat

import (
	"context"
	"strings"

	"community-chat/internal/constants"
	"community-chat/internal/identity"
	"community-chat/internal/platform/config"
	"community-chat/internal/platform/logger"
	"community-chat/internal/security/audit"
	"community-chat/internal/storage/database/message"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// 反應種類（對外參數），對應存儲層的集合名稱
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

// Service 聊天服務
// 消息生命週期的業務規則集中在這裡，HTTP 與 socket 入口只做編解碼
type Service struct {
	messages message.MessageRepository
	audit    *audit.Trail
}

// NewService 創建聊天服務
func NewService(messages message.MessageRepository, trail *audit.Trail) *Service {
	if trail == nil {
		trail = audit.NewTrail(false)
	}
	return &Service{messages: messages, audit: trail}
}

// SendInput 發送消息的輸入
type SendInput struct {
	Body          string
	Type          string
	MediaURL      string
	MediaFileName string
	MediaSize     int64
	ReplyTo       string
}

// PageResult 分頁查詢結果（消息按時間正序排列，舊消息在前）
type PageResult struct {
	Messages []*message.Message `json:"messages"`
	HasMore  bool               `json:"hasMore"`
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
}

// ReactionResult 反應切換結果
type ReactionResult struct {
	MessageID     string            `json:"messageId"`
	Kind          string            `json:"type"`
	Added         bool              `json:"added"`
	Reactions     message.Reactions `json:"reactions"`
	LikesCount    int               `json:"likesCount"`
	DislikesCount int               `json:"dislikesCount"`
}

// resolveReplySummary 將 replyTo 解析為摘要投影
// 目標不存在或已整體刪除時不附摘要，id 引用本身仍保留
func (s *Service) resolveReplySummary(ctx context.Context, msg *message.Message) {
	if msg == nil || msg.ReplyTo == "" {
		return
	}
	target, err := s.messages.GetByID(ctx, msg.ReplyTo)
	if err != nil || target.Deleted {
		return
	}
	msg.ReplySummary = &message.ReplySummary{
		MessageID:  target.GetID(),
		Body:       target.Body,
		SenderName: target.SenderName,
		Timestamp:  target.Timestamp,
	}
}

// maxMessageLength 讀取消息長度上限
func maxMessageLength() int {
	if cfg := config.Get(); cfg != nil && cfg.Limits.Message.MaxLength > 0 {
		return cfg.Limits.Message.MaxLength
	}
	return constants.DefaultMaxMessageLength
}

// Send 發送消息
func (s *Service) Send(ctx context.Context, actor identity.Identity, input SendInput) (*message.Message, error) {
	body := strings.TrimSpace(input.Body)

	messageType := input.Type
	if messageType == "" {
		messageType = message.TypeText
	}
	if !message.ValidType(messageType) {
		return nil, invalidInput("unknown message type")
	}

	// 純文字消息必須有內容；媒體消息的內文是可選的說明文字
	if messageType == message.TypeText {
		if body == "" {
			return nil, invalidInput("message body is required")
		}
	} else if input.MediaURL == "" {
		return nil, invalidInput("media url is required")
	}
	if len(body) > maxMessageLength() {
		return nil, invalidInput("message too long")
	}

	if input.ReplyTo != "" {
		if _, err := bson.ObjectIDFromHex(input.ReplyTo); err != nil {
			return nil, invalidInput("invalid replyTo id")
		}
	}

	msg := &message.Message{
		SenderID:      actor.UserID,
		SenderName:    actor.DisplayName,
		Body:          body,
		Type:          messageType,
		MediaURL:      input.MediaURL,
		MediaFileName: input.MediaFileName,
		MediaSize:     input.MediaSize,
		ReplyTo:       input.ReplyTo,
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, mapStorageError(err)
	}
	s.resolveReplySummary(ctx, msg)

	logger.Info(ctx, "消息已發送",
		logger.WithMessageID(msg.GetID()),
		logger.WithUserID(actor.UserID),
		logger.WithUsername(actor.DisplayName),
		logger.WithAction("message_send"))
	s.audit.MessageSent(ctx, actor.UserID, actor.DisplayName, msg.GetID(), messageType)

	return msg, nil
}

// Edit 編輯消息內容（僅限發送者）
func (s *Service) Edit(ctx context.Context, actor identity.Identity, messageID, body string) (*message.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, invalidInput("message body is required")
	}
	if len(body) > maxMessageLength() {
		return nil, invalidInput("message too long")
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if msg.Deleted {
		return nil, ErrNotFound
	}
	if !msg.IsSender(actor.UserID, actor.DisplayName) {
		s.audit.AccessDenied(ctx, actor.UserID, actor.DisplayName, messageID, "edit_message")
		return nil, ErrForbidden
	}

	if err := s.messages.SetBody(ctx, messageID, body); err != nil {
		return nil, mapStorageError(err)
	}

	// 回傳更新後的文檔（含 edited_at），並重新解析回覆摘要
	updated, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	s.resolveReplySummary(ctx, updated)

	logger.Info(ctx, "消息已編輯",
		logger.WithMessageID(messageID),
		logger.WithUserID(actor.UserID),
		logger.WithAction("message_edit"))
	s.audit.MessageEdited(ctx, actor.UserID, actor.DisplayName, messageID)

	return updated, nil
}

// Delete 整體刪除消息（僅限發送者；保留墓碑）
func (s *Service) Delete(ctx context.Context, actor identity.Identity, messageID string) (*message.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if !msg.IsSender(actor.UserID, actor.DisplayName) {
		s.audit.AccessDenied(ctx, actor.UserID, actor.DisplayName, messageID, "delete_message")
		return nil, ErrForbidden
	}

	// 重複刪除視為成功，直接回傳既有墓碑
	if !msg.Deleted {
		if err := s.messages.SoftDelete(ctx, messageID); err != nil {
			return nil, mapStorageError(err)
		}
		msg.Deleted = true
		msg.Body = ""
		msg.MediaURL = ""
		msg.MediaFileName = ""
		msg.MediaSize = 0
	}

	logger.Info(ctx, "消息已刪除",
		logger.WithMessageID(messageID),
		logger.WithUserID(actor.UserID),
		logger.WithAction("message_delete"))
	s.audit.MessageDeleted(ctx, actor.UserID, actor.DisplayName, messageID)

	return msg, nil
}

// DeleteForMe 將消息從操作者自己的視圖中隱藏（任何人可對任何消息執行）
func (s *Service) DeleteForMe(ctx context.Context, actor identity.Identity, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return mapStorageError(err)
	}
	if msg.Deleted {
		return ErrNotFound
	}

	userID, username := actor.ReactorKey()
	if err := s.messages.AddDeletedFor(ctx, messageID, userID, username); err != nil {
		return mapStorageError(err)
	}

	logger.Info(ctx, "消息已對用戶隱藏",
		logger.WithMessageID(messageID),
		logger.WithUserID(actor.UserID),
		logger.WithUsername(actor.DisplayName),
		logger.WithAction("message_delete_for_me"))
	s.audit.MessageHidden(ctx, actor.UserID, actor.DisplayName, messageID)

	return nil
}

// UpdateStatus 更新消息狀態
// 發送者可以設定任意合法狀態；其他人只能標記送達或已讀（讀取回執）
func (s *Service) UpdateStatus(ctx context.Context, actor identity.Identity, messageID, status string) (*message.Message, error) {
	if !message.ValidStatus(status) {
		return nil, invalidInput("unknown status")
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if msg.Deleted {
		return nil, ErrNotFound
	}

	if !msg.IsSender(actor.UserID, actor.DisplayName) &&
		status != message.StatusDelivered && status != message.StatusRead {
		s.audit.AccessDenied(ctx, actor.UserID, actor.DisplayName, messageID, "update_status")
		return nil, ErrForbidden
	}

	if status == msg.Status {
		return msg, nil
	}

	if err := s.messages.SetStatus(ctx, messageID, status); err != nil {
		return nil, mapStorageError(err)
	}
	msg.Status = status

	logger.Info(ctx, "消息狀態已更新",
		logger.WithMessageID(messageID),
		logger.WithUserID(actor.UserID),
		logger.WithAction("message_status"),
		logger.WithDetails(map[string]interface{}{"status": status}))
	s.audit.StatusUpdated(ctx, actor.UserID, actor.DisplayName, messageID, status)

	return msg, nil
}

// reactionSets 解析反應種類為目標集合與對立集合
func reactionSets(kind string) (target, opposite string, ok bool) {
	switch kind {
	case ReactionLike:
		return message.ReactionLikes, message.ReactionDislikes, true
	case ReactionDislike:
		return message.ReactionDislikes, message.ReactionLikes, true
	}
	return "", "", false
}

// ToggleReaction 切換消息反應
// 同一用戶在兩個集合中至多出現一次：先移出對立集合，再對目標集合做開關。
// 三步都是單文檔條件更新，並發的不同用戶不會互相覆蓋
func (s *Service) ToggleReaction(ctx context.Context, actor identity.Identity, messageID, kind string) (*ReactionResult, error) {
	target, opposite, ok := reactionSets(kind)
	if !ok {
		return nil, invalidInput("unknown reaction type")
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if msg.Deleted {
		return nil, ErrNotFound
	}

	userID, username := actor.ReactorKey()

	// 換邊：先清掉對立集合中的條目
	if _, err := s.messages.PullReaction(ctx, messageID, opposite, userID, username); err != nil {
		return nil, mapStorageError(err)
	}

	// 目標集合開關：已存在則移除，否則加入
	removed, err := s.messages.PullReaction(ctx, messageID, target, userID, username)
	if err != nil {
		return nil, mapStorageError(err)
	}
	added := false
	if !removed {
		// 加入失敗代表並發請求已先加入，最終狀態仍視為已加入
		if _, err := s.messages.PushReactionIfAbsent(ctx, messageID, target, userID, username); err != nil {
			return nil, mapStorageError(err)
		}
		added = true
	}

	// 重新讀取以回報最終計數
	updated, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStorageError(err)
	}

	logger.Info(ctx, "消息反應已切換",
		logger.WithMessageID(messageID),
		logger.WithUserID(actor.UserID),
		logger.WithUsername(actor.DisplayName),
		logger.WithAction("reaction_toggle"),
		logger.WithDetails(map[string]interface{}{"type": kind, "added": added}))
	s.audit.ReactionToggled(ctx, actor.UserID, actor.DisplayName, messageID, kind, added)

	return &ReactionResult{
		MessageID:     messageID,
		Kind:          kind,
		Added:         added,
		Reactions:     updated.Reactions,
		LikesCount:    len(updated.Reactions.Likes),
		DislikesCount: len(updated.Reactions.Dislikes),
	}, nil
}

// ListMessages 分頁獲取對觀察者可見的消息，回傳時按時間正序排列
func (s *Service) ListMessages(ctx context.Context, viewer identity.Identity, page, pageSize int) (*PageResult, error) {
	if page <= 0 {
		page = 1
	}
	defaultSize, maxSize := constants.DefaultPageSize, constants.MaxPageSize
	if cfg := config.Get(); cfg != nil {
		if cfg.Limits.Pagination.DefaultPageSize > 0 {
			defaultSize = cfg.Limits.Pagination.DefaultPageSize
		}
		if cfg.Limits.Pagination.MaxPageSize > 0 {
			maxSize = cfg.Limits.Pagination.MaxPageSize
		}
	}
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}

	userID, username := viewer.ReactorKey()
	messages, hasMore, err := s.messages.List(ctx, page, pageSize, userID, username)
	if err != nil {
		return nil, mapStorageError(err)
	}

	// 存儲層按新到舊取出分頁，呈現時反轉為舊到新
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	if messages == nil {
		messages = []*message.Message{}
	}

	// 解析回覆摘要；同一目標在頁內只查一次
	summaries := make(map[string]*message.ReplySummary)
	for _, msg := range messages {
		if msg.ReplyTo == "" {
			continue
		}
		if cached, ok := summaries[msg.ReplyTo]; ok {
			msg.ReplySummary = cached
			continue
		}
		s.resolveReplySummary(ctx, msg)
		summaries[msg.ReplyTo] = msg.ReplySummary
	}

	return &PageResult{
		Messages: messages,
		HasMore:  hasMore,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// GetReactions 獲取消息的反應集合
func (s *Service) GetReactions(ctx context.Context, messageID string) (*ReactionResult, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	if msg.Deleted {
		return nil, ErrNotFound
	}

	return &ReactionResult{
		MessageID:     messageID,
		Reactions:     msg.Reactions,
		LikesCount:    len(msg.Reactions.Likes),
		DislikesCount: len(msg.Reactions.Dislikes),
	}, nil
}
