package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nao1215/gymhub/internal/notification/signal"
)

// ReadStateStore はユーザーごとの通知の既読状態を永続化する。
// (user_id, notification_key) の一意制約により、同じキーは1ユーザーにつき高々1行になる。
// 書き込みは1キー単位でアトミックなため、複数タブからの同時既読化でも更新が失われない。
type ReadStateStore struct {
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// now は既読日時の記録に使う時刻関数。
	now func() time.Time
}

// NewReadStateStore は新しいReadStateStoreを生成する。
func NewReadStateStore(db *sqlx.DB) *ReadStateStore {
	return &ReadStateStore{db: db, now: time.Now}
}

// IsRead はユーザーがkeyを既読にしているかどうかを返す。
func (s *ReadStateStore) IsRead(ctx context.Context, userID, key string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notification_read_state WHERE user_id = ? AND notification_key = ?`,
		userID, key)
	if err != nil {
		return false, fmt.Errorf("既読状態の取得に失敗: %w", err)
	}
	return n > 0, nil
}

// ReadKeys はユーザーが既読にしたキーの集合を返す。
func (s *ReadStateStore) ReadKeys(ctx context.Context, userID string) (signal.ReadSet, error) {
	var keys []string
	err := s.db.SelectContext(ctx, &keys,
		`SELECT notification_key FROM notification_read_state WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("既読キー一覧の取得に失敗: %w", err)
	}

	read := make(signal.ReadSet, len(keys))
	for _, k := range keys {
		read[k] = struct{}{}
	}
	return read, nil
}

// markReadQuery は既読状態を冪等に記録する。既に記録済みの場合は何もしない。
const markReadQuery = `
INSERT INTO notification_read_state (user_id, notification_key, read_at)
VALUES (?, ?, ?)
ON CONFLICT (user_id, notification_key) DO NOTHING`

// MarkRead はkeyを既読にする。既読済みのキーに対しては何もせず成功する。
func (s *ReadStateStore) MarkRead(ctx context.Context, userID, key string) error {
	if _, err := s.db.ExecContext(ctx, markReadQuery, userID, key, s.now().UTC()); err != nil {
		return fmt.Errorf("既読状態の記録に失敗: %w", err)
	}
	return nil
}

// MarkAllRead はkeysをまとめて既読にし、新たに既読になった件数を返す。
// keysには呼び出し時点のフィードに載っているキーを渡す。まだ表示されていない通知は未読のまま残る。
func (s *ReadStateStore) MarkAllRead(ctx context.Context, userID string, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	readAt := s.now().UTC()
	marked := 0
	for _, key := range keys {
		res, err := tx.ExecContext(ctx, markReadQuery, userID, key, readAt)
		if err != nil {
			return 0, fmt.Errorf("既読状態の一括記録に失敗: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("既読状態の一括記録の確認に失敗: %w", err)
		}
		marked += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("既読状態の一括記録のコミットに失敗: %w", err)
	}
	return marked, nil
}

// Unmark はkeyの既読状態を削除する。次回のフィード計算でその通知は再び表示される。
func (s *ReadStateStore) Unmark(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_read_state WHERE user_id = ? AND notification_key = ?`, userID, key)
	if err != nil {
		return fmt.Errorf("既読状態の削除に失敗: %w", err)
	}
	return nil
}

// inertCondition は二度と通知されないキーの既読状態を表すWHERE句。
// 作成から AnnouncementWindow を過ぎた（または削除された）お知らせと、
// 作成から WelcomeWindow を過ぎた会員のウェルカム通知だけが対象になる。
// 条件が続く限り成立し得る固定キー（設備メンテナンス・週間目標など）は対象外。
const inertCondition = `read_at < ?
AND (
    (notification_key LIKE 'announcement\_%' ESCAPE '\'
        AND NOT EXISTS (
            SELECT 1 FROM announcements a
            WHERE 'announcement_' || a.id = notification_read_state.notification_key
              AND a.created_at >= ?))
    OR (notification_key = 'welcome'
        AND NOT EXISTS (
            SELECT 1 FROM members m
            WHERE m.id = notification_read_state.user_id
              AND m.created_at >= ?))
)`

// inertArgs はinertConditionのプレースホルダに渡す値を返す。
func (s *ReadStateStore) inertArgs(maxAge time.Duration) []any {
	now := s.now().UTC()
	return []any{
		now.Add(-maxAge),
		now.Add(-signal.AnnouncementWindow),
		now.Add(-signal.WelcomeWindow),
	}
}

// PruneStale はユーザーの既読状態のうち、maxAgeより古く二度と通知されないものを削除し、削除件数を返す。
func (s *ReadStateStore) PruneStale(ctx context.Context, userID string, maxAge time.Duration) (int64, error) {
	args := append([]any{userID}, s.inertArgs(maxAge)...)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_read_state WHERE user_id = ? AND `+inertCondition, args...)
	if err != nil {
		return 0, fmt.Errorf("古い既読状態の削除に失敗: %w", err)
	}
	return res.RowsAffected()
}

// PruneAllStale は全ユーザーの既読状態のうち、maxAgeより古く二度と通知されないものを削除し、削除件数を返す。
// 成立中のシグナルの既読状態は消さないため、既読にした通知が再表示されることはない。
func (s *ReadStateStore) PruneAllStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_read_state WHERE `+inertCondition, s.inertArgs(maxAge)...)
	if err != nil {
		return 0, fmt.Errorf("古い既読状態の一括削除に失敗: %w", err)
	}
	return res.RowsAffected()
}
