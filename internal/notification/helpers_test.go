package notification

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nao1215/gymhub/internal/schema"
	_ "modernc.org/sqlite"
)

// day はテストで使う1日の長さ。
const day = 24 * time.Hour

// testDSNParams は本番設定と同じSQLiteの接続パラメータ。
const testDSNParams = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate&_time_format=sqlite"

// openTestDB はテストごとに一時ファイルのSQLiteを作成し、スキーマを適用する。
// ストリームとHTTPリクエストが並行して接続を使うため、インメモリではなくファイルを使う。
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "notification.db")+testDSNParams)
	if err != nil {
		t.Fatalf("テスト用DBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := schema.Apply(t.Context(), db.DB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}
	return db
}

// seedMember はテスト用の会員を作成する。
func seedMember(t *testing.T, db *sqlx.DB, id, name string, createdAt time.Time) {
	t.Helper()
	db.MustExec(`INSERT INTO members (id, name, email, created_at) VALUES (?, ?, ?, ?)`,
		id, name, id+"@example.com", createdAt.UTC())
}

// seedPayment はプランと支払いを作成し、支払いIDを返す。
func seedPayment(t *testing.T, db *sqlx.DB, userID, plan, status string, start, end, createdAt time.Time) int64 {
	t.Helper()
	res := db.MustExec(`INSERT INTO plans (name, duration_days) VALUES (?, ?)`, plan, 30)
	planID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("プランIDの取得に失敗: %v", err)
	}

	res = db.MustExec(`INSERT INTO payments (user_id, plan_id, status, start_date, end_date, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, userID, planID, status, start.UTC(), end.UTC(), createdAt.UTC(), createdAt.UTC())
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("支払いIDの取得に失敗: %v", err)
	}
	return id
}

// seedAttendance は出席記録を作成する。
func seedAttendance(t *testing.T, db *sqlx.DB, userID string, checkIns ...time.Time) {
	t.Helper()
	for _, ci := range checkIns {
		db.MustExec(`INSERT INTO attendance (user_id, check_in) VALUES (?, ?)`, userID, ci.UTC())
	}
}

// seedAnnouncement はお知らせを作成し、IDを返す。
func seedAnnouncement(t *testing.T, db *sqlx.DB, title string, createdAt time.Time) int64 {
	t.Helper()
	res := db.MustExec(`INSERT INTO announcements (title, body, created_at) VALUES (?, ?, ?)`,
		title, title+"の詳細", createdAt.UTC())
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("お知らせIDの取得に失敗: %v", err)
	}
	return id
}

// seedEquipment は設備を作成する。
func seedEquipment(t *testing.T, db *sqlx.DB, name, status string, updatedAt time.Time) {
	t.Helper()
	db.MustExec(`INSERT INTO equipment (name, status, last_maintenance_date, updated_at) VALUES (?, ?, ?, ?)`,
		name, status, updatedAt.UTC(), updatedAt.UTC())
}
