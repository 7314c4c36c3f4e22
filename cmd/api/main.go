package main

import (
	"context"
	"fmt"
	"os"

	"community-chat/internal/chat"
	"community-chat/internal/constants"
	"community-chat/internal/identity"
	"community-chat/internal/platform/config"
	"community-chat/internal/platform/driver"
	"community-chat/internal/platform/logger"
	"community-chat/internal/platform/server"
	"community-chat/internal/presence"
	"community-chat/internal/security/audit"
	"community-chat/internal/socket"
	"community-chat/internal/storage/database"
	"community-chat/internal/upload"
)

func main() {
	if err := mainNoExit(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// mainNoExit 分離主要邏輯以避免 exitAfterDefer 問題，確保 defer 函數正常執行.
func mainNoExit() error {
	// 初始化日誌.
	if err := logger.InitLogger(); err != nil {
		return err
	}
	defer logger.CloseLogger()

	ctx := context.Background()

	// 載入配置.
	if err := config.Load(); err != nil {
		return err
	}
	cfg := config.Get()
	logger.LogInfof("設定載入成功，環境: %s", config.GetEnv())

	// 連接資料庫.
	if err := driver.ConnectMongo(); err != nil {
		return err
	}
	defer func() {
		if err := driver.CloseMongo(); err != nil {
			logger.Errorf(ctx, "關閉 MongoDB 連接失敗: %v", err)
		}
	}()

	// 設置 MongoDB 連接到 database 包
	database.SetMongoDB(driver.GetMongoDatabase())

	// 初始化 Repository.
	repos := database.NewRepositories()
	if repos == nil {
		return fmt.Errorf("repository initialization failed")
	}

	// 身份驗證器：無效憑證降級為訪客
	verifier := identity.NewVerifier(config.GetJWTSecret(), repos.Users, config.GetGuestDisplayName())

	// 聊天服務與在線名錄
	trail := audit.NewTrail(cfg.Security.Audit.Enabled)
	service := chat.NewService(repos.Messages, trail)

	graceSeconds := constants.DefaultOfflineGraceSeconds
	if cfg.Limits.Presence.OfflineGraceSeconds > 0 {
		graceSeconds = cfg.Limits.Presence.OfflineGraceSeconds
	}
	directory := presence.NewDirectory(repos.Presence, graceSeconds)

	// socket hub
	hub := socket.NewHub(service, directory)

	// 媒體存儲
	uploads, err := upload.NewStore(cfg.Server.UploadDir, "/uploads/chat")
	if err != nil {
		logger.Error(ctx, "媒體目錄初始化失敗", logger.WithDetails(map[string]interface{}{"error": err.Error()}))
		return fmt.Errorf("upload store initialization failed")
	}

	logger.Info(ctx, "[System] 初始化完成，啟動服務器")

	return server.Start(&server.Deps{
		Service:   service,
		Hub:       hub,
		Directory: directory,
		Uploads:   uploads,
		Verifier:  verifier,
	})
}
