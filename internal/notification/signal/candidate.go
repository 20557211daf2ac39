package signal

import (
	"time"
)

// Severity は通知の重要度（表示上の種別）を表す。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityReminder Severity = "reminder"
)

// Priority は通知の優先度を表す。
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// weight は並べ替え用の重み。大きいほど先頭に来る。
func (p Priority) weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Candidate はシグナルが生成する通知候補。毎回再計算され、永続化されない。
type Candidate struct {
	// Key はシグナル種別と自然キーから成る安定キー。既読状態の照合に使う。
	Key string
	// Title は通知のタイトル。
	Title string
	// Message は通知本文。
	Message string
	// Severity は通知の重要度。
	Severity Severity
	// Priority は通知の優先度。
	Priority Priority
	// Timestamp は同順位の並べ替えにのみ使うUNIX秒。
	Timestamp int64
}

// Subject はシグナル評価の対象となるユーザーと基準時刻。
// 認証済みのリクエストごとに明示的に生成し、各Collectorに渡す。
type Subject struct {
	// UserID は認証済みユーザーのID。
	UserID string
	// Now は評価の基準時刻。
	Now time.Time
}
