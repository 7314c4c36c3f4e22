package identity

// Identity 連接會話解析出的身份
// UserID 為空字串代表訪客（僅有顯示名稱，無持久帳號）
type Identity struct {
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"username"`
}

// Authenticated 創建已認證身份
func Authenticated(userID, displayName string) Identity {
	return Identity{UserID: userID, DisplayName: displayName}
}

// Guest 創建訪客身份
func Guest(displayName string) Identity {
	return Identity{DisplayName: displayName}
}

// IsGuest 是否為訪客身份
func (id Identity) IsGuest() bool {
	return id.UserID == ""
}

// ReactorKey 反應（like/dislike）與個人刪除列表的匹配鍵
// 已認證用戶以 userId 匹配，訪客以顯示名稱匹配
func (id Identity) ReactorKey() (userID, username string) {
	if id.IsGuest() {
		return "", id.DisplayName
	}
	return id.UserID, id.DisplayName
}

// MatchesEntry 檢查身份是否與 {userId, username} 形式的子文檔條目匹配
func (id Identity) MatchesEntry(entryUserID, entryUsername string) bool {
	if !id.IsGuest() {
		return entryUserID == id.UserID
	}
	return entryUsername == id.DisplayName
}
