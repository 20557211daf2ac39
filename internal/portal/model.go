package portal

import (
	"database/sql"
	"time"
)

// 支払いステータス。
const (
	PaymentApproved = "approved"
	PaymentPending  = "pending"
	PaymentRejected = "rejected"
)

// EquipmentMaintenance はメンテナンス中の設備ステータス。
const EquipmentMaintenance = "Maintenance"

// Member は会員アカウント。
type Member struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

// Payment はプラン購入の支払い。承認済みの最新の支払いが現在の会員資格を表す。
type Payment struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	PlanName  string    `db:"plan_name"`
	Status    string    `db:"status"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Announcement はジムからのお知らせ。全会員共通。
type Announcement struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
}

// Equipment はジムの設備。
type Equipment struct {
	ID                  int64        `db:"id"`
	Name                string       `db:"name"`
	Status              string       `db:"status"`
	LastMaintenanceDate sql.NullTime `db:"last_maintenance_date"`
	UpdatedAt           time.Time    `db:"updated_at"`
}
