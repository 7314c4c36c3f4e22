package chat

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

// 服務層錯誤分類，由 HTTP 與 socket 入口映射為對外響應
var (
	// ErrNotFound 消息不存在或已整體刪除
	ErrNotFound = errors.New("message not found")

	// ErrForbidden 操作者無權執行該操作
	ErrForbidden = errors.New("operation not allowed")

	// ErrInvalidInput 輸入驗證失敗
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorage 存儲層暫時性故障，可重試
	ErrStorage = errors.New("storage unavailable")
)

// invalidInput 帶原因的輸入驗證錯誤
func invalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// mapStorageError 將存儲層錯誤映射為服務層分類
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
