package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"community-chat/internal/identity"
	"community-chat/internal/storage/database/message"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// memStore 測試用的記憶體消息倉儲，語義對齊 Mongo 實作
type memStore struct {
	mu       sync.Mutex
	messages map[string]*message.Message
}

func newMemStore() *memStore {
	return &memStore{messages: make(map[string]*message.Message)}
}

func matchParty(p message.Party, userID, username string) bool {
	if userID != "" {
		return p.UserID == userID
	}
	return p.UserID == "" && p.Username == username
}

func (s *memStore) Create(_ context.Context, msg *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = bson.NewObjectID()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Status == "" {
		msg.Status = message.StatusSent
	}
	if msg.DeletedFor == nil {
		msg.DeletedFor = []message.Party{}
	}
	if msg.Reactions.Likes == nil {
		msg.Reactions.Likes = []message.Party{}
	}
	if msg.Reactions.Dislikes == nil {
		msg.Reactions.Dislikes = []message.Party{}
	}

	clone := *msg
	s.messages[msg.GetID()] = &clone
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := bson.ObjectIDFromHex(id); err != nil {
		return nil, err
	}
	msg, ok := s.messages[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	clone := *msg
	return &clone, nil
}

func (s *memStore) List(_ context.Context, page, pageSize int, viewerUserID, viewerUsername string) ([]*message.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var visible []*message.Message
	for _, msg := range s.messages {
		if msg.Deleted {
			continue
		}
		hidden := false
		for _, p := range msg.DeletedFor {
			if matchParty(p, viewerUserID, viewerUsername) {
				hidden = true
				break
			}
		}
		if hidden {
			continue
		}
		clone := *msg
		visible = append(visible, &clone)
	}

	sort.Slice(visible, func(i, j int) bool {
		return visible[i].Timestamp.After(visible[j].Timestamp)
	})

	start := (page - 1) * pageSize
	if start >= len(visible) {
		return nil, false, nil
	}
	end := start + pageSize
	if end > len(visible) {
		end = len(visible)
	}
	result := visible[start:end]

	return result, len(result) == pageSize, nil
}

func (s *memStore) SetBody(_ context.Context, id, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.Deleted {
		return mongo.ErrNoDocuments
	}
	now := time.Now().UTC()
	msg.Body = body
	msg.Edited = true
	msg.EditedAt = &now
	return nil
}

func (s *memStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	msg.Deleted = true
	msg.Body = ""
	msg.MediaURL = ""
	msg.MediaFileName = ""
	msg.MediaSize = 0
	return nil
}

func (s *memStore) AddDeletedFor(_ context.Context, id, userID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	for _, p := range msg.DeletedFor {
		if matchParty(p, userID, username) {
			return nil
		}
	}
	msg.DeletedFor = append(msg.DeletedFor, message.Party{UserID: userID, Username: username, At: time.Now().UTC()})
	return nil
}

func (s *memStore) SetStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	msg.Status = status
	return nil
}

func (s *memStore) PullReaction(_ context.Context, id, set, userID, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return false, mongo.ErrNoDocuments
	}

	list := msg.Reactions.Likes
	if set == message.ReactionDislikes {
		list = msg.Reactions.Dislikes
	}

	for i, p := range list {
		if matchParty(p, userID, username) {
			list = append(list[:i], list[i+1:]...)
			if set == message.ReactionDislikes {
				msg.Reactions.Dislikes = list
			} else {
				msg.Reactions.Likes = list
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) PushReactionIfAbsent(_ context.Context, id, set, userID, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return false, mongo.ErrNoDocuments
	}

	list := msg.Reactions.Likes
	if set == message.ReactionDislikes {
		list = msg.Reactions.Dislikes
	}
	for _, p := range list {
		if matchParty(p, userID, username) {
			return false, nil
		}
	}
	list = append(list, message.Party{UserID: userID, Username: username, At: time.Now().UTC()})
	if set == message.ReactionDislikes {
		msg.Reactions.Dislikes = list
	} else {
		msg.Reactions.Likes = list
	}
	return true, nil
}

var (
	alice = identity.Authenticated("64f000000000000000000001", "Alice")
	bob   = identity.Authenticated("64f000000000000000000002", "Bob")
	ghost = identity.Guest("Ghost")
)

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, nil), store
}

func mustSend(t *testing.T, svc *Service, actor identity.Identity, body string) *message.Message {
	t.Helper()
	msg, err := svc.Send(context.Background(), actor, SendInput{Body: body})
	if err != nil {
		t.Fatalf("Send(%q) failed: %v", body, err)
	}
	return msg
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Send(ctx, alice, SendInput{Body: "   "}); err == nil {
		t.Fatal("expected error for blank body")
	}
	if _, err := svc.Send(ctx, alice, SendInput{Body: "hi", Type: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if _, err := svc.Send(ctx, alice, SendInput{Type: "image"}); err == nil {
		t.Fatal("expected error for media message without url")
	}

	msg := mustSend(t, svc, alice, "  hello  ")
	if msg.Body != "hello" {
		t.Errorf("body not trimmed: %q", msg.Body)
	}
	if msg.Status != message.StatusSent {
		t.Errorf("expected status sent, got %q", msg.Status)
	}
	if msg.SenderID != alice.UserID || msg.SenderName != "Alice" {
		t.Errorf("sender not recorded: %+v", msg)
	}
}

func TestSendGuestMessage(t *testing.T) {
	svc, _ := newTestService()

	msg := mustSend(t, svc, ghost, "hi from guest")
	if msg.SenderID != "" {
		t.Errorf("guest message should have empty sender id, got %q", msg.SenderID)
	}
	if msg.SenderName != "Ghost" {
		t.Errorf("expected sender name Ghost, got %q", msg.SenderName)
	}
}

func TestEditOnlySender(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "original")

	if _, err := svc.Edit(ctx, bob, msg.GetID(), "hijacked"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	updated, err := svc.Edit(ctx, alice, msg.GetID(), "fixed typo")
	if err != nil {
		t.Fatalf("Edit failed: %v", err)
	}
	if updated.Body != "fixed typo" || !updated.Edited || updated.EditedAt == nil {
		t.Errorf("edit not applied: %+v", updated)
	}
}

func TestEditGuestMatchedByName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, ghost, "guest says hi")

	// 同名訪客可以編輯，其他名字的訪客不行
	if _, err := svc.Edit(ctx, identity.Guest("Intruder"), msg.GetID(), "nope"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for other guest, got %v", err)
	}
	if _, err := svc.Edit(ctx, identity.Guest("Ghost"), msg.GetID(), "still me"); err != nil {
		t.Fatalf("same-name guest edit failed: %v", err)
	}
}

func TestAuthenticatedCannotClaimGuestMessage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, ghost, "guest says hi")

	// 與訪客同名的已認證用戶不是發送者
	impostor := identity.Authenticated("64f000000000000000000009", "Ghost")
	if _, err := svc.Edit(ctx, impostor, msg.GetID(), "hijacked"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for same-name authenticated user, got %v", err)
	}
	if _, err := svc.Delete(ctx, impostor, msg.GetID()); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}
}

func TestEditMissingMessage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Edit(ctx, alice, "64f0000000000000000000ff", "x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Edit(ctx, alice, "not-a-hex-id", "x"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestDeleteLeavesTombstone(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "doomed")

	if _, err := svc.Delete(ctx, bob, msg.GetID()); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	tomb, err := svc.Delete(ctx, alice, msg.GetID())
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !tomb.Deleted || tomb.Body != "" {
		t.Errorf("tombstone not cleared: %+v", tomb)
	}

	// 重複刪除冪等
	if _, err := svc.Delete(ctx, alice, msg.GetID()); err != nil {
		t.Fatalf("repeat delete should succeed: %v", err)
	}

	// 墓碑仍在存儲中，但列表不可見
	stored, err := store.GetByID(ctx, msg.GetID())
	if err != nil {
		t.Fatalf("tombstone missing from store: %v", err)
	}
	if !stored.Deleted {
		t.Error("stored message not marked deleted")
	}

	page, err := svc.ListMessages(ctx, bob, 1, 10)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Errorf("deleted message visible in list: %d", len(page.Messages))
	}

	// 編輯墓碑視為不存在
	if _, err := svc.Edit(ctx, alice, msg.GetID(), "revive"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound editing tombstone, got %v", err)
	}
}

func TestDeleteForMeHidesOnlyForActor(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "visible to most")

	// 非發送者也可以對自己隱藏
	if err := svc.DeleteForMe(ctx, bob, msg.GetID()); err != nil {
		t.Fatalf("DeleteForMe failed: %v", err)
	}
	// 冪等
	if err := svc.DeleteForMe(ctx, bob, msg.GetID()); err != nil {
		t.Fatalf("repeat DeleteForMe failed: %v", err)
	}

	bobPage, _ := svc.ListMessages(ctx, bob, 1, 10)
	if len(bobPage.Messages) != 0 {
		t.Errorf("hidden message still visible to bob")
	}

	alicePage, _ := svc.ListMessages(ctx, alice, 1, 10)
	if len(alicePage.Messages) != 1 {
		t.Errorf("message should remain visible to others, got %d", len(alicePage.Messages))
	}
}

func TestDeleteForMeGuestKeyedByName(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "hello guests")

	if err := svc.DeleteForMe(ctx, ghost, msg.GetID()); err != nil {
		t.Fatalf("DeleteForMe failed: %v", err)
	}

	ghostPage, _ := svc.ListMessages(ctx, ghost, 1, 10)
	if len(ghostPage.Messages) != 0 {
		t.Error("hidden message still visible to same-name guest")
	}

	otherGuest, _ := svc.ListMessages(ctx, identity.Guest("Other"), 1, 10)
	if len(otherGuest.Messages) != 1 {
		t.Error("message should remain visible to other guests")
	}
}

func TestUpdateStatus(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "track me")

	if _, err := svc.UpdateStatus(ctx, bob, msg.GetID(), "teleported"); err == nil {
		t.Fatal("expected error for unknown status")
	}

	// 接收方可以標記送達與已讀
	updated, err := svc.UpdateStatus(ctx, bob, msg.GetID(), message.StatusDelivered)
	if err != nil {
		t.Fatalf("UpdateStatus(delivered) failed: %v", err)
	}
	if updated.Status != message.StatusDelivered {
		t.Errorf("status = %q", updated.Status)
	}

	// 重複設定相同狀態：成功且無變化
	if _, err := svc.UpdateStatus(ctx, bob, msg.GetID(), message.StatusDelivered); err != nil {
		t.Fatalf("idempotent status update failed: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, bob, msg.GetID(), message.StatusRead); err != nil {
		t.Fatalf("UpdateStatus(read) failed: %v", err)
	}

	// 非發送者不能設定送達/已讀以外的狀態
	if _, err := svc.UpdateStatus(ctx, bob, msg.GetID(), message.StatusSent); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, bob, msg.GetID(), message.StatusSending); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// 發送者可以設定任意合法狀態
	if _, err := svc.UpdateStatus(ctx, alice, msg.GetID(), message.StatusSent); err != nil {
		t.Fatalf("sender reset failed: %v", err)
	}
}

func TestToggleReaction(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "react to me")

	// 加入 like
	result, err := svc.ToggleReaction(ctx, bob, msg.GetID(), ReactionLike)
	if err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}
	if !result.Added || result.LikesCount != 1 || result.DislikesCount != 0 {
		t.Errorf("unexpected result: %+v", result)
	}

	// 再按一次取消
	result, err = svc.ToggleReaction(ctx, bob, msg.GetID(), ReactionLike)
	if err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}
	if result.Added || result.LikesCount != 0 {
		t.Errorf("expected toggle-off, got %+v", result)
	}

	// like 後改按 dislike：換邊
	if _, err := svc.ToggleReaction(ctx, bob, msg.GetID(), ReactionLike); err != nil {
		t.Fatal(err)
	}
	result, err = svc.ToggleReaction(ctx, bob, msg.GetID(), ReactionDislike)
	if err != nil {
		t.Fatalf("ToggleReaction failed: %v", err)
	}
	if !result.Added || result.LikesCount != 0 || result.DislikesCount != 1 {
		t.Errorf("expected side switch, got %+v", result)
	}

	if _, err := svc.ToggleReaction(ctx, bob, msg.GetID(), "love"); err == nil {
		t.Fatal("expected error for unknown reaction type")
	}
}

func TestToggleReactionDistinctReactors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "popular")

	reactors := []identity.Identity{alice, bob, ghost, identity.Guest("Walker")}
	for _, r := range reactors {
		if _, err := svc.ToggleReaction(ctx, r, msg.GetID(), ReactionLike); err != nil {
			t.Fatalf("reaction by %s failed: %v", r.DisplayName, err)
		}
	}

	result, err := svc.GetReactions(ctx, msg.GetID())
	if err != nil {
		t.Fatalf("GetReactions failed: %v", err)
	}
	if result.LikesCount != len(reactors) {
		t.Errorf("expected %d likes, got %d", len(reactors), result.LikesCount)
	}
}

func TestToggleReactionConcurrent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	msg := mustSend(t, svc, alice, "popular")

	// 兩個反應者同時按讚，互不覆蓋
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []identity.Identity{alice, bob} {
		wg.Add(1)
		go func(i int, r identity.Identity) {
			defer wg.Done()
			_, errs[i] = svc.ToggleReaction(ctx, r, msg.GetID(), ReactionLike)
		}(i, r)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent reaction %d failed: %v", i, err)
		}
	}

	result, err := svc.GetReactions(ctx, msg.GetID())
	if err != nil {
		t.Fatalf("GetReactions failed: %v", err)
	}
	if result.LikesCount != 2 {
		t.Errorf("expected both likes to land, got %d", result.LikesCount)
	}
}

func TestListPagination(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		mustSend(t, svc, alice, fmt.Sprintf("message %d", i))
		// 保證時間戳嚴格遞增
		time.Sleep(time.Millisecond)
	}

	page1, err := svc.ListMessages(ctx, bob, 1, 3)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(page1.Messages) != 3 || !page1.HasMore {
		t.Fatalf("page1 = %d messages, hasMore=%v", len(page1.Messages), page1.HasMore)
	}
	// 頁內舊消息在前
	if !page1.Messages[0].Timestamp.Before(page1.Messages[1].Timestamp) {
		t.Error("messages not in ascending time order")
	}
	// 第一頁是最新的一批
	if page1.Messages[2].Body != "message 6" {
		t.Errorf("expected newest message last, got %q", page1.Messages[2].Body)
	}

	page3, err := svc.ListMessages(ctx, bob, 3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page3.Messages) != 1 || page3.HasMore {
		t.Errorf("page3 = %d messages, hasMore=%v", len(page3.Messages), page3.HasMore)
	}

	// 整頁取滿時 hasMore 為真（即使剛好是最後一頁的邊界情況）
	page2, _ := svc.ListMessages(ctx, bob, 2, 3)
	if len(page2.Messages) != 3 || !page2.HasMore {
		t.Errorf("page2 = %d messages, hasMore=%v", len(page2.Messages), page2.HasMore)
	}
}

func TestReplySummaryResolution(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	original := mustSend(t, svc, alice, "original point")

	reply, err := svc.Send(ctx, bob, SendInput{Body: "counterpoint", ReplyTo: original.GetID()})
	if err != nil {
		t.Fatalf("Send with replyTo failed: %v", err)
	}
	if reply.ReplySummary == nil {
		t.Fatal("reply summary not resolved")
	}
	if reply.ReplySummary.Body != "original point" || reply.ReplySummary.SenderName != "Alice" {
		t.Errorf("unexpected summary: %+v", reply.ReplySummary)
	}

	// 列表讀取路徑也要解析摘要
	page, err := svc.ListMessages(ctx, ghost, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	var listed *message.Message
	for _, m := range page.Messages {
		if m.GetID() == reply.GetID() {
			listed = m
		}
	}
	if listed == nil || listed.ReplySummary == nil {
		t.Fatal("reply summary missing in listing")
	}

	// 目標整體刪除後：id 引用保留，摘要不再附上
	if _, err := svc.Delete(ctx, alice, original.GetID()); err != nil {
		t.Fatal(err)
	}
	page, err = svc.ListMessages(ctx, ghost, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range page.Messages {
		if m.GetID() == reply.GetID() {
			if m.ReplyTo != original.GetID() {
				t.Error("replyTo reference lost after target deletion")
			}
			if m.ReplySummary != nil {
				t.Error("summary should not resolve for deleted target")
			}
		}
	}

	if _, err := svc.Send(ctx, bob, SendInput{Body: "x", ReplyTo: "not-hex"}); err == nil {
		t.Fatal("expected error for malformed replyTo")
	}
}

func TestGetReactionsMissing(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.GetReactions(context.Background(), "64f0000000000000000000aa"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
