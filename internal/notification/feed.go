package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/gymhub/internal/notification/signal"
	"github.com/nao1215/gymhub/pkg/event"
)

// ReadStateReader はフィード計算に必要な既読状態の読み取り口。
type ReadStateReader interface {
	ReadKeys(ctx context.Context, userID string) (signal.ReadSet, error)
}

// Feeder はシグナルの収集・既読の除外・ランキングを行い、ユーザーのフィードを計算する。
// ストリーム配信とポーリング用エンドポイントは同じFeederを共有する。
type Feeder struct {
	// collectors は評価するシグナルの集合。
	collectors []signal.Collector
	// readState は既読状態の読み取り口。
	readState ReadStateReader
	// timeout はシグナル1件あたりのタイムアウト。
	timeout time.Duration
}

// NewFeeder は新しいFeederを生成する。
func NewFeeder(collectors []signal.Collector, readState ReadStateReader, timeout time.Duration) *Feeder {
	return &Feeder{collectors: collectors, readState: readState, timeout: timeout}
}

// Compute はsubのランキング済みフィードを返す。
// シグナルの失敗は空の結果として吸収されるが、既読状態の取得失敗はエラーとして返す。
func (f *Feeder) Compute(ctx context.Context, sub signal.Subject) ([]signal.Candidate, error) {
	candidates := signal.Collect(ctx, f.collectors, sub, f.timeout)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	read, err := f.readState.ReadKeys(ctx, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("フィードの計算に失敗: %w", err)
	}
	return signal.Rank(candidates, read), nil
}

// toWireNotifications はフィードをワイヤ形式に変換する。
func toWireNotifications(feed []signal.Candidate) []event.Notification {
	notifications := make([]event.Notification, 0, len(feed))
	for _, c := range feed {
		notifications = append(notifications, event.Notification{
			ID:        c.Key,
			Title:     c.Title,
			Message:   c.Message,
			Type:      string(c.Severity),
			Priority:  string(c.Priority),
			Read:      false,
			Timestamp: c.Timestamp,
		})
	}
	return notifications
}
