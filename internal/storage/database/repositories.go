package database

import (
	"context"

	"community-chat/internal/platform/logger"
	"community-chat/internal/storage/database/message"
	"community-chat/internal/storage/database/presence"
	"community-chat/internal/storage/database/user"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Repositories 倉儲集合.
type Repositories struct {
	Messages *message.MessageStore
	Presence *presence.PresenceStore
	Users    *user.UserStore
}

// NewRepositories 創建倉儲集合.
func NewRepositories() *Repositories {
	// 從 driver 包獲取 MongoDB 連接
	db := mongoDB
	if db == nil {
		return nil
	}

	// 創建索引以優化查詢性能；失敗記錄錯誤但不中斷服務啟動
	ctx := context.Background()
	if err := message.CreateIndexes(ctx, db); err != nil {
		logger.Warning(ctx, "消息索引創建失敗: "+err.Error())
	}
	if err := presence.CreateIndexes(ctx, db); err != nil {
		logger.Warning(ctx, "在線名錄索引創建失敗: "+err.Error())
	}

	return &Repositories{
		Messages: message.NewMessageStore(db),
		Presence: presence.NewPresenceStore(db),
		Users:    user.NewUserStore(db),
	}
}

// 全局變數，用於存儲 MongoDB 連接
var mongoDB *mongo.Database

// SetMongoDB 設置 MongoDB 連接.
func SetMongoDB(db *mongo.Database) {
	mongoDB = db
}
