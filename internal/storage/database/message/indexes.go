package message

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CreateIndexes 創建消息集合索引以優化查詢性能
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("messages")

	// 1. 可見性 + 時間複合索引（列表查詢的主索引）
	visibleTimeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "deleted", Value: 1},
			{Key: "timestamp", Value: -1},
		},
		Options: options.Index().SetName("visible_time_idx"),
	}

	// 2. 發送者 + 時間索引
	senderTimeIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "sender_id", Value: 1},
			{Key: "timestamp", Value: -1},
		},
		Options: options.Index().SetName("sender_time_idx"),
	}

	// 3. 個人刪除列表索引
	deletedForIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "deleted_for.user_id", Value: 1},
		},
		Options: options.Index().SetName("deleted_for_idx"),
	}

	indexes := []mongo.IndexModel{
		visibleTimeIndex,
		senderTimeIndex,
		deletedForIndex,
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
