package presence

import (
	"context"
	"sync"
	"time"

	"community-chat/internal/constants"
	"community-chat/internal/identity"
	"community-chat/internal/platform/logger"
	presencedb "community-chat/internal/storage/database/presence"
)

// Directory 在線名錄（僅列出已認證用戶）
// 追蹤每個用戶的活躍連接數；最後一個連接斷開後標記離線，
// 寬限期內未重連才清除條目，吸收重新整理頁面等短暫斷線
type Directory struct {
	store presencedb.PresenceRepository
	grace time.Duration

	// onChange 在線名單變動時回調（用於向所有連接重播名單）
	onChange func(entries []*presencedb.Entry)

	mu     sync.Mutex
	conns  map[string]int
	reaps  map[string]*time.Timer
	closed bool
}

// NewDirectory 創建在線名錄
func NewDirectory(store presencedb.PresenceRepository, graceSeconds int) *Directory {
	if graceSeconds <= 0 {
		graceSeconds = constants.DefaultOfflineGraceSeconds
	}
	return &Directory{
		store: store,
		grace: time.Duration(graceSeconds) * time.Second,
		conns: make(map[string]int),
		reaps: make(map[string]*time.Timer),
	}
}

// SetOnChange 設置名單變動回調
func (d *Directory) SetOnChange(fn func(entries []*presencedb.Entry)) {
	d.onChange = fn
}

// Join 登記一個連接上線
// 只有已認證用戶寫入名錄；訪客不留條目，但仍觸發名單重播（讓訪客看得到在線名單）。
// 寬限期內重連會取消待執行的清除
func (d *Directory) Join(ctx context.Context, id identity.Identity) error {
	if id.IsGuest() {
		d.notify(ctx)
		return nil
	}
	key := id.UserID

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if timer, ok := d.reaps[key]; ok {
		timer.Stop()
		delete(d.reaps, key)
	}
	d.conns[key]++
	d.mu.Unlock()

	if err := d.store.Upsert(ctx, key, id.UserID, id.DisplayName); err != nil {
		logger.Error(ctx, "在線條目寫入失敗: "+err.Error(),
			logger.WithUserID(id.UserID),
			logger.WithUsername(id.DisplayName))
		return err
	}

	d.notify(ctx)
	return nil
}

// Leave 登記一個連接下線
// 訪客下線除關閉連接外無事可做；同一身份仍有其他活躍連接時也不做任何事
func (d *Directory) Leave(ctx context.Context, id identity.Identity) error {
	if id.IsGuest() {
		return nil
	}
	key := id.UserID

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.conns[key]--
	if d.conns[key] > 0 {
		d.mu.Unlock()
		return nil
	}
	delete(d.conns, key)

	// 排程寬限期後的清除；重連時由 Join 取消
	if timer, ok := d.reaps[key]; ok {
		timer.Stop()
	}
	d.reaps[key] = time.AfterFunc(d.grace, func() {
		d.reap(key)
	})
	d.mu.Unlock()

	if err := d.store.MarkOffline(ctx, key); err != nil {
		logger.Error(ctx, "離線標記失敗: "+err.Error(),
			logger.WithUserID(id.UserID),
			logger.WithUsername(id.DisplayName))
		return err
	}

	// 不在此處重播名單：寬限期內其他客戶端仍應看到該用戶在線，
	// 名單重播延遲到 reap 確認未重連之後
	return nil
}

// reap 寬限期到期後清除仍離線的條目
func (d *Directory) reap(key string) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.reaps, key)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.store.DeleteIfOffline(ctx, key); err != nil {
		logger.Error(ctx, "在線條目清除失敗: "+err.Error())
		return
	}

	d.notify(ctx)
}

// Snapshot 獲取當前在線名單
func (d *Directory) Snapshot(ctx context.Context) ([]*presencedb.Entry, error) {
	entries, err := d.store.ListOnline(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*presencedb.Entry{}
	}
	return entries, nil
}

// notify 觸發名單變動回調
func (d *Directory) notify(ctx context.Context) {
	if d.onChange == nil {
		return
	}
	entries, err := d.Snapshot(ctx)
	if err != nil {
		logger.Error(ctx, "在線名單讀取失敗: "+err.Error())
		return
	}
	d.onChange(entries)
}

// Close 停止所有待執行的清除
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for key, timer := range d.reaps {
		timer.Stop()
		delete(d.reaps, key)
	}
}
