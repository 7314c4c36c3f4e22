package message

import (
	"context"
	"time"

	"community-chat/internal/platform/config"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessageStore 消息存儲實作
type MessageStore struct {
	collection *mongo.Collection
}

// NewMessageStore 創建新的消息存儲
func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{
		collection: db.Collection("messages"),
	}
}

// partyFilter 構建子文檔條目的匹配條件
// 已認證用戶以 user_id 匹配；訪客以 username 匹配且 user_id 必須為空
func partyFilter(userID, username string) bson.M {
	if userID != "" {
		return bson.M{"user_id": userID}
	}
	return bson.M{"user_id": "", "username": username}
}

// Create 創建消息
func (s *MessageStore) Create(ctx context.Context, message *Message) error {
	message.ID = bson.NewObjectID()
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	if message.Status == "" {
		message.Status = StatusSent
	}

	// 初始化子文檔列表，避免存出 null
	if message.DeletedFor == nil {
		message.DeletedFor = []Party{}
	}
	if message.Reactions.Likes == nil {
		message.Reactions.Likes = []Party{}
	}
	if message.Reactions.Dislikes == nil {
		message.Reactions.Dislikes = []Party{}
	}

	_, err := s.collection.InsertOne(ctx, message)
	return err
}

// GetByID 根據 ID 獲取消息
func (s *MessageStore) GetByID(ctx context.Context, id string) (*Message, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var message Message
	err = s.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&message)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// List 分頁獲取對觀察者可見的消息（新消息在前）
// 排除已整體刪除的消息，以及觀察者在個人刪除列表中的消息
func (s *MessageStore) List(ctx context.Context, page, pageSize int, viewerUserID, viewerUsername string) ([]*Message, bool, error) {
	// 從配置讀取限制
	cfg := config.Get()
	defaultLimit := 50
	maxLimit := 100
	if cfg != nil {
		if cfg.Limits.Pagination.DefaultPageSize > 0 {
			defaultLimit = cfg.Limits.Pagination.DefaultPageSize
		}
		if cfg.Limits.Pagination.MaxPageSize > 0 {
			maxLimit = cfg.Limits.Pagination.MaxPageSize
		}
	}

	// 限制分頁大小，防止性能問題
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultLimit
	}
	if pageSize > maxLimit {
		pageSize = maxLimit
	}

	filter := bson.M{
		"deleted": false,
		"deleted_for": bson.M{
			"$not": bson.M{"$elemMatch": partyFilter(viewerUserID, viewerUsername)},
		},
	}

	opts := options.Find()
	opts.SetLimit(int64(pageSize))
	opts.SetSkip(int64((page - 1) * pageSize))
	opts.SetSort(bson.D{{Key: "timestamp", Value: -1}})

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, false, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	for cursor.Next(ctx) {
		var message Message
		if err := cursor.Decode(&message); err != nil {
			return nil, false, err
		}
		messages = append(messages, &message)
	}
	if err := cursor.Err(); err != nil {
		return nil, false, err
	}

	// 整頁取滿即視為還有更多；最後一頁剛好取滿時會多報一次，客戶端下一頁拿到空集即止
	hasMore := len(messages) == pageSize

	return messages, hasMore, nil
}

// SetBody 更新消息內容並標記為已編輯
func (s *MessageStore) SetBody(ctx context.Context, id, body string) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": objectID, "deleted": false},
		bson.M{"$set": bson.M{
			"message":   body,
			"edited":    true,
			"edited_at": now,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// SoftDelete 整體刪除消息（保留墓碑，清空內容與媒體欄位）
func (s *MessageStore) SoftDelete(ctx context.Context, id string) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{
			"$set": bson.M{"deleted": true, "message": ""},
			"$unset": bson.M{
				"media_url":       "",
				"media_file_name": "",
				"media_size":      "",
			},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// AddDeletedFor 將用戶加入消息的個人刪除列表
// 過濾條件已排除列表中既有的條目，重複調用不會產生重複記錄
func (s *MessageStore) AddDeletedFor(ctx context.Context, id, userID, username string) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	filter := bson.M{
		"_id": objectID,
		"deleted_for": bson.M{
			"$not": bson.M{"$elemMatch": partyFilter(userID, username)},
		},
	}

	_, err = s.collection.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"deleted_for": Party{UserID: userID, Username: username, At: time.Now().UTC()}},
	})
	return err
}

// SetStatus 更新消息狀態
func (s *MessageStore) SetStatus(ctx context.Context, id, status string) error {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// PullReaction 從指定反應集合移除用戶條目，回傳是否確實移除
func (s *MessageStore) PullReaction(ctx context.Context, id, set, userID, username string) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$pull": bson.M{"reactions." + set: partyFilter(userID, username)}},
	)
	if err != nil {
		return false, err
	}

	return result.ModifiedCount == 1, nil
}

// PushReactionIfAbsent 在用戶條目不存在時加入指定反應集合，回傳是否確實加入
// 過濾條件保證同一用戶在單一集合中至多出現一次
func (s *MessageStore) PushReactionIfAbsent(ctx context.Context, id, set, userID, username string) (bool, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	filter := bson.M{
		"_id": objectID,
		"reactions." + set: bson.M{
			"$not": bson.M{"$elemMatch": partyFilter(userID, username)},
		},
	}

	result, err := s.collection.UpdateOne(ctx, filter, bson.M{
		"$push": bson.M{"reactions." + set: Party{UserID: userID, Username: username, At: time.Now().UTC()}},
	})
	if err != nil {
		return false, err
	}

	return result.ModifiedCount == 1, nil
}
