package portal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound は対象の行が存在しないことを表す。
var ErrNotFound = errors.New("portal: 対象が見つかりません")

// Repository はポータルのドメインデータを読み取るリポジトリ。
type Repository struct {
	db *sqlx.DB
}

// NewRepository は新しいRepositoryを生成する。
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// paymentColumns は支払いとプラン名を取得する共通のSELECT句。
const paymentColumns = `
SELECT p.id, p.user_id, pl.name AS plan_name, p.status,
       p.start_date, p.end_date, p.created_at, p.updated_at
FROM payments p
JOIN plans pl ON pl.id = p.plan_id`

// Member は会員を1件取得する。
func (r *Repository) Member(ctx context.Context, userID string) (*Member, error) {
	var m Member
	err := r.db.GetContext(ctx, &m,
		`SELECT id, name, email, created_at FROM members WHERE id = ?`, userID)
	if err != nil {
		return nil, wrapNotFound(err, "会員の取得に失敗")
	}
	return &m, nil
}

// LatestApprovedPayment はユーザーの承認済み支払いのうち最新のものを返す。
func (r *Repository) LatestApprovedPayment(ctx context.Context, userID string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, paymentColumns+`
WHERE p.user_id = ? AND p.status = ?
ORDER BY p.created_at DESC, p.id DESC
LIMIT 1`, userID, PaymentApproved)
	if err != nil {
		return nil, wrapNotFound(err, "承認済み支払いの取得に失敗")
	}
	return &p, nil
}

// LatestPayment はステータスを問わずユーザーの最新の支払いを返す。
func (r *Repository) LatestPayment(ctx context.Context, userID string) (*Payment, error) {
	var p Payment
	err := r.db.GetContext(ctx, &p, paymentColumns+`
WHERE p.user_id = ?
ORDER BY p.created_at DESC, p.id DESC
LIMIT 1`, userID)
	if err != nil {
		return nil, wrapNotFound(err, "最新の支払いの取得に失敗")
	}
	return &p, nil
}

// PaymentsUpdatedSince はsince以降に更新されたユーザーの支払いを新しい順に返す。
func (r *Repository) PaymentsUpdatedSince(ctx context.Context, userID string, since time.Time) ([]Payment, error) {
	payments := []Payment{}
	err := r.db.SelectContext(ctx, &payments, paymentColumns+`
WHERE p.user_id = ? AND p.updated_at >= ?
ORDER BY p.updated_at DESC, p.id DESC`, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("支払い変更履歴の取得に失敗: %w", err)
	}
	return payments, nil
}

// LastAttendance はユーザーの最後の出席日時を返す。出席記録がない場合はErrNotFound。
func (r *Repository) LastAttendance(ctx context.Context, userID string) (time.Time, error) {
	// MAX()は列の型情報を失い文字列で返るため、ORDER BYで先頭行を取る
	var checkIn time.Time
	err := r.db.GetContext(ctx, &checkIn,
		`SELECT check_in FROM attendance WHERE user_id = ? ORDER BY check_in DESC LIMIT 1`, userID)
	if err != nil {
		return time.Time{}, wrapNotFound(err, "最終出席日時の取得に失敗")
	}
	return checkIn, nil
}

// AttendanceCountSince はsinceより後の出席回数を返す。
func (r *Repository) AttendanceCountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM attendance WHERE user_id = ? AND check_in > ?`, userID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("出席回数の取得に失敗: %w", err)
	}
	return n, nil
}

// AnnouncementsSince はsince以降に作成されたお知らせを新しい順に返す。
func (r *Repository) AnnouncementsSince(ctx context.Context, since time.Time) ([]Announcement, error) {
	announcements := []Announcement{}
	err := r.db.SelectContext(ctx, &announcements,
		`SELECT id, title, body, created_at FROM announcements
WHERE created_at >= ?
ORDER BY created_at DESC, id DESC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("お知らせの取得に失敗: %w", err)
	}
	return announcements, nil
}

// EquipmentByStatus は指定ステータスの設備を返す。
func (r *Repository) EquipmentByStatus(ctx context.Context, status string) ([]Equipment, error) {
	equipment := []Equipment{}
	err := r.db.SelectContext(ctx, &equipment,
		`SELECT id, name, status, last_maintenance_date, updated_at FROM equipment
WHERE status = ?
ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("設備の取得に失敗: %w", err)
	}
	return equipment, nil
}

// EquipmentUpdatedSince はsince以降にステータスが更新された設備を返す。
func (r *Repository) EquipmentUpdatedSince(ctx context.Context, since time.Time) ([]Equipment, error) {
	equipment := []Equipment{}
	err := r.db.SelectContext(ctx, &equipment,
		`SELECT id, name, status, last_maintenance_date, updated_at FROM equipment
WHERE updated_at >= ?
ORDER BY updated_at DESC, id DESC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("設備変更履歴の取得に失敗: %w", err)
	}
	return equipment, nil
}

// wrapNotFound はsql.ErrNoRowsをErrNotFoundに変換し、それ以外はメッセージを付けて包む。
func wrapNotFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
