package httputil

import "github.com/gin-gonic/gin"

// 成功訊息常數.
const (
	MessageSent        = "Message sent successfully"
	MediaUploaded      = "Media uploaded successfully"
	MessageUpdated     = "Message updated successfully"
	MessageDeleted     = "Message deleted"
	MessageDeletedFor  = "Message deleted for user"
	StatusUpdated      = "Message status updated"
	DataRetrieved      = "Data retrieved successfully"
)

// 錯誤訊息常數.
const (
	InvalidParameter  = "Invalid parameter"
	InvalidFileFormat = "Invalid file format"
	FileTooLarge      = "File too large"
	ProcessingFailed  = "Processing failed"
	NotFound          = "Not found"
	MessageNotFound   = "Message not found"
)

// Error 自定義錯誤結構.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Success 回傳簡單的成功訊息回應.
func Success(message string) gin.H {
	return gin.H{"success": true, "message": message}
}

// SuccessWithData 回傳包含資料的成功回應.
func SuccessWithData(key string, data interface{}) gin.H {
	return gin.H{"success": true, key: data}
}

// ErrorMessage 回傳簡單的錯誤訊息回應.
func ErrorMessage(message string) gin.H {
	return gin.H{"success": false, "message": message}
}

// ErrorWithCode 回傳包含錯誤代碼的錯誤回應.
func ErrorWithCode(code int, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
