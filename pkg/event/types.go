package event

import (
	"encoding/json"
)

// Type はストリームフレームの種類を表す。
type Type string

const (
	// TypeConnected は接続確立直後に1度だけ送信されるフレーム。
	TypeConnected Type = "connected"
	// TypeNotifications はランキング済み通知フィード全体を運ぶフレーム。
	TypeNotifications Type = "notifications"
	// TypeCountUpdate は未読件数のみを運ぶフレーム。
	TypeCountUpdate Type = "count_update"
	// TypeNewAnnouncement は直近1時間に作成されたお知らせを運ぶフレーム。
	TypeNewAnnouncement Type = "new_announcement"
	// TypeMembershipUpdate は直近1日の会員ステータス変更を運ぶフレーム。
	TypeMembershipUpdate Type = "membership_update"
	// TypeEquipmentUpdate は直近1日の設備ステータス変更を運ぶフレーム。
	TypeEquipmentUpdate Type = "equipment_update"
	// TypeHeartbeat は接続とサーバーループの生存を示すキープアライブフレーム。
	TypeHeartbeat Type = "heartbeat"
	// TypeError はサーバーループの致命的エラーを通知するフレーム。送信後に接続は閉じられる。
	TypeError Type = "error"
)

// Known はtが既知のフレーム種別かどうかを返す。
func (t Type) Known() bool {
	switch t {
	case TypeConnected, TypeNotifications, TypeCountUpdate, TypeNewAnnouncement,
		TypeMembershipUpdate, TypeEquipmentUpdate, TypeHeartbeat, TypeError:
		return true
	default:
		return false
	}
}

// Frame はイベントストリームの1単位（イベント名とJSONペイロード）を表す。
type Frame struct {
	// Type はフレームの種類。
	Type Type
	// Data はフレーム固有のペイロード（JSON形式）。
	Data json.RawMessage
}

// Notification はワイヤ上の通知1件を表す。
type Notification struct {
	// ID は通知の安定キー（例: "membership_expiring", "announcement_42"）。
	ID string `json:"id"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知本文。
	Message string `json:"message"`
	// Type は通知の重要度（info, success, warning, error, reminder）。
	Type string `json:"type"`
	// Priority は通知の優先度（high, medium, low）。
	Priority string `json:"priority"`
	// Read は既読状態。フィードには未読のみが載るため通常はfalse。
	Read bool `json:"read"`
	// Timestamp は同順位の並べ替えに使うUNIX秒。
	Timestamp int64 `json:"timestamp"`
}

// ConnectedData はconnectedフレームのデータ。
type ConnectedData struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// NotificationsData はnotificationsフレームのデータ。
type NotificationsData struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
	Timestamp     int64          `json:"timestamp"`
}

// CountUpdateData はcount_updateフレームのデータ。
type CountUpdateData struct {
	UnreadCount int   `json:"unread_count"`
	Timestamp   int64 `json:"timestamp"`
}

// Announcement はnew_announcementフレームに含まれるお知らせ1件。
type Announcement struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// NewAnnouncementData はnew_announcementフレームのデータ。
type NewAnnouncementData struct {
	Announcements []Announcement `json:"announcements"`
	Timestamp     int64          `json:"timestamp"`
}

// MembershipStatus は会員ステータス変更の内容。
type MembershipStatus struct {
	// Status は支払いのステータス（approved, pending, rejected）。
	Status string `json:"status"`
	// Plan はプラン名。
	Plan string `json:"plan"`
	// Date は変更日時（RFC3339形式）。
	Date string `json:"date"`
}

// MembershipUpdateData はmembership_updateフレームのデータ。
type MembershipUpdateData struct {
	Update    MembershipStatus `json:"update"`
	Timestamp int64            `json:"timestamp"`
}

// EquipmentStatus は設備ステータス変更1件。
type EquipmentStatus struct {
	Name                string `json:"name"`
	Status              string `json:"status"`
	LastMaintenanceDate string `json:"last_maintenance_date"`
}

// EquipmentUpdateData はequipment_updateフレームのデータ。
type EquipmentUpdateData struct {
	Update    []EquipmentStatus `json:"update"`
	Timestamp int64             `json:"timestamp"`
}

// HeartbeatData はheartbeatフレームのデータ。
type HeartbeatData struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorData はerrorフレームのデータ。
type ErrorData struct {
	Error string `json:"error"`
}

// PollResponse はポーリング用エンドポイントのレスポンス。
type PollResponse struct {
	Success       bool           `json:"success"`
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// MarkReadRequest は既読化エンドポイントのリクエスト。
type MarkReadRequest struct {
	NotificationID string `json:"notification_id"`
}

// MarkReadResponse は既読化エンドポイントのレスポンス。
type MarkReadResponse struct {
	Success bool `json:"success"`
}
