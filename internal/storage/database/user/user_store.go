package user

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// UserRepository 用戶查詢接口
// 帳號管理本身由外部系統負責，這裡只需要身份解析用的唯讀查詢
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}

// User 用戶數據模型（唯讀投影）
type User struct {
	ID       bson.ObjectID `bson:"_id" json:"id"`
	Username string        `bson:"username" json:"username"`
	Email    string        `bson:"email,omitempty" json:"email,omitempty"`
}

// UserStore 用戶存儲實作
type UserStore struct {
	collection *mongo.Collection
}

// NewUserStore 創建新的用戶存儲
func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{
		collection: db.Collection("users"),
	}
}

// GetByID 根據 ID 獲取用戶
func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	objectID, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var u User
	err = s.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&u)
	if err != nil {
		return nil, err
	}

	return &u, nil
}
