package presence

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// 在線狀態
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceRepository 在線名錄倉儲接口
type PresenceRepository interface {
	Upsert(ctx context.Context, key, userID, username string) error
	MarkOffline(ctx context.Context, key string) error
	DeleteIfOffline(ctx context.Context, key string) error
	ListOnline(ctx context.Context) ([]*Entry, error)
}

// Entry 在線名錄條目
// UserKey 為唯一鍵：已認證用戶用 userId，訪客用顯示名稱
type Entry struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"-"`
	UserKey  string        `bson:"user_key" json:"-"`
	UserID   string        `bson:"user_id,omitempty" json:"userId,omitempty"`
	Username string        `bson:"username" json:"username"`
	Status   string        `bson:"status" json:"status"`
	LastSeen time.Time     `bson:"last_seen" json:"lastSeen"`
}

// PresenceStore 在線名錄存儲實作
type PresenceStore struct {
	collection *mongo.Collection
}

// NewPresenceStore 創建新的在線名錄存儲
func NewPresenceStore(db *mongo.Database) *PresenceStore {
	return &PresenceStore{
		collection: db.Collection("online_users"),
	}
}

// Upsert 寫入或刷新在線條目
// 重連會覆蓋先前的離線標記，取消待執行的清除
func (s *PresenceStore) Upsert(ctx context.Context, key, userID, username string) error {
	filter := bson.M{"user_key": key}
	update := bson.M{"$set": bson.M{
		"user_id":   userID,
		"username":  username,
		"status":    StatusOnline,
		"last_seen": time.Now().UTC(),
	}}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// MarkOffline 標記條目為離線並記錄最後上線時間
func (s *PresenceStore) MarkOffline(ctx context.Context, key string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"user_key": key},
		bson.M{"$set": bson.M{
			"status":    StatusOffline,
			"last_seen": time.Now().UTC(),
		}},
	)
	return err
}

// DeleteIfOffline 刪除仍處於離線狀態的條目
// 寬限期內重連的用戶已被 Upsert 改回在線，不會被刪除
func (s *PresenceStore) DeleteIfOffline(ctx context.Context, key string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{
		"user_key": key,
		"status":   StatusOffline,
	})
	return err
}

// ListOnline 列出所有在線條目
func (s *PresenceStore) ListOnline(ctx context.Context) ([]*Entry, error) {
	opts := options.Find()
	opts.SetSort(bson.D{{Key: "username", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{"status": StatusOnline}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*Entry
	for cursor.Next(ctx) {
		var entry Entry
		if err := cursor.Decode(&entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// CreateIndexes 創建在線名錄索引
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("online_users")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_key", Value: 1}},
			Options: options.Index().SetName("user_key_idx").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status_idx"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
