package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"community-chat/internal/constants"
	"community-chat/internal/platform/config"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrFileTooLarge 檔案超過大小上限
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedType 檔案類型不在允許清單中
	ErrUnsupportedType = errors.New("unsupported file type")
)

// 允許的 MIME 類型與對應的消息類型
var allowedTypes = map[string]string{
	"image/jpeg":         "image",
	"image/png":          "image",
	"image/gif":          "image",
	"image/webp":         "image",
	"video/mp4":          "video",
	"video/webm":         "video",
	"video/quicktime":    "video",
	"audio/mpeg":         "audio",
	"audio/wav":          "audio",
	"audio/ogg":          "audio",
	"application/pdf":    "file",
	"application/zip":    "file",
	"text/plain":         "file",
	"application/msword": "file",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "file",
}

// Result 上傳結果
type Result struct {
	URL          string `json:"mediaUrl"`
	OriginalName string `json:"mediaFileName"`
	Size         int64  `json:"mediaSize"`
	Kind         string `json:"messageType"`
	MIME         string `json:"mimeType"`
}

// Store 媒體檔案存儲
type Store struct {
	dir       string
	publicURL string
}

// NewStore 創建媒體存儲；目錄不存在時自動建立
func NewStore(dir, publicURL string) (*Store, error) {
	if dir == "" {
		dir = "./uploads/chat"
	}
	if publicURL == "" {
		publicURL = "/uploads/chat"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &Store{dir: dir, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// maxFileSize 讀取檔案大小上限
func maxFileSize() int64 {
	if cfg := config.Get(); cfg != nil && cfg.Limits.Upload.MaxFileSize > 0 {
		return cfg.Limits.Upload.MaxFileSize
	}
	return constants.DefaultMaxUploadSize
}

// Save 驗證並保存上傳檔案
// 類型以檔案內容嗅探為準，不信任客戶端宣告的 Content-Type
func (s *Store) Save(fileHeader *multipart.FileHeader) (*Result, error) {
	if fileHeader.Size > maxFileSize() {
		return nil, ErrFileTooLarge
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return nil, err
	}

	kind, mime := classify(detected)
	if kind == "" {
		return nil, ErrUnsupportedType
	}

	// 嗅探消耗了開頭的字節，寫檔前回到起點
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	// 以隨機檔名保存，避免路徑穿越與檔名衝突
	ext := detected.Extension()
	if ext == "" {
		ext = filepath.Ext(fileHeader.Filename)
	}
	fileName := uuid.New().String() + ext

	dst, err := os.OpenFile(filepath.Join(s.dir, fileName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		os.Remove(dst.Name())
		return nil, err
	}

	return &Result{
		URL:          fmt.Sprintf("%s/%s", s.publicURL, fileName),
		OriginalName: fileHeader.Filename,
		Size:         written,
		Kind:         kind,
		MIME:         mime,
	}, nil
}

// Dir 媒體檔案所在目錄（用於靜態服務掛載）
func (s *Store) Dir() string {
	return s.dir
}

// PublicURL 媒體檔案的對外路徑前綴
func (s *Store) PublicURL() string {
	return s.publicURL
}

// classify 在嗅探結果的類型鏈上查找允許清單
// mimetype 可能回報更精確的子類型（如 audio/x-wav）或附帶 charset 參數，
// 以 Is 比對並沿父鏈匹配
func classify(detected *mimetype.MIME) (kind, mime string) {
	for m := detected; m != nil; m = m.Parent() {
		for allowed, k := range allowedTypes {
			if m.Is(allowed) {
				return k, allowed
			}
		}
	}
	return "", ""
}
