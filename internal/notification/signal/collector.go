package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/gymhub/internal/portal"
)

// シグナルの判定に使う期間。
const (
	day = 24 * time.Hour
	// expiringWindow は期限切れ間近とみなす残り期間。
	expiringWindow = 3 * day
	// visitGap は来館リマインダーを出す最終来館からの経過日数。
	visitGap = 7
	// goalWindow は週間目標を集計する直近の期間。
	goalWindow = 7 * day
	// weeklyGoalTarget は週間目標の来館回数。
	weeklyGoalTarget = 3
	// AnnouncementWindow はお知らせを通知対象とする作成からの期間。
	AnnouncementWindow = 7 * day
	// WelcomeWindow はウェルカム通知を出すアカウント作成からの期間。
	WelcomeWindow = 7 * day
)

// Collector は1種類のシグナルを評価して通知候補を返す。
// 条件を満たさない場合は空のスライスを返す。
type Collector interface {
	// Name はログに使うシグナル名を返す。
	Name() string
	// Detect はsubに対するシグナルを評価する。
	Detect(ctx context.Context, sub Subject) ([]Candidate, error)
}

// Source はシグナルが参照するドメインデータの読み取り口。
// portal.Repository が実装する。
type Source interface {
	Member(ctx context.Context, userID string) (*portal.Member, error)
	LatestApprovedPayment(ctx context.Context, userID string) (*portal.Payment, error)
	LatestPayment(ctx context.Context, userID string) (*portal.Payment, error)
	LastAttendance(ctx context.Context, userID string) (time.Time, error)
	AttendanceCountSince(ctx context.Context, userID string, since time.Time) (int, error)
	AnnouncementsSince(ctx context.Context, since time.Time) ([]portal.Announcement, error)
	EquipmentByStatus(ctx context.Context, status string) ([]portal.Equipment, error)
}

// All は全シグナルを評価順に返す。
func All(src Source) []Collector {
	return []Collector{
		Membership{src: src},
		PaymentPending{src: src},
		VisitReminder{src: src},
		Announcements{src: src},
		WeeklyGoal{src: src},
		EquipmentMaintenance{src: src},
		Welcome{src: src},
	}
}

// Membership は会員資格の期限切れ・期限切れ間近を検出する。
type Membership struct{ src Source }

// Name はシグナル名を返す。
func (Membership) Name() string { return "membership" }

// Detect は承認済みの最新の支払いの終了日を基準時刻と比較する。
func (s Membership) Detect(ctx context.Context, sub Subject) ([]Candidate, error) {
	p, err := s.src.LatestApprovedPayment(ctx, sub.UserID)
	if errors.Is(err, portal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !p.EndDate.After(sub.Now) {
		return []Candidate{{
			Key:       KeyMembershipExpired,
			Title:     "会員資格の期限が切れています",
			Message:   fmt.Sprintf("%sプランは%sに終了しました。更新してください。", p.PlanName, p.EndDate.Format(time.DateOnly)),
			Severity:  SeverityError,
			Priority:  PriorityHigh,
			Timestamp: p.EndDate.Unix(),
		}}, nil
	}

	if !p.EndDate.After(sub.Now.Add(expiringWindow)) {
		daysLeft := int((p.EndDate.Sub(sub.Now) + day - 1) / day)
		return []Candidate{{
			Key:       KeyMembershipExpiring,
			Title:     "会員資格の期限が近づいています",
			Message:   fmt.Sprintf("%sプランはあと%d日で終了します。", p.PlanName, daysLeft),
			Severity:  SeverityWarning,
			Priority:  PriorityMedium,
			Timestamp: p.EndDate.Unix(),
		}}, nil
	}
	return nil, nil
}

// PaymentPending は最新の支払いが承認待ちであることを検出する。
type PaymentPending struct{ src Source }

// Name はシグナル名を返す。
func (PaymentPending) Name() string { return "payment_pending" }

// Detect は最新の支払いのステータスを確認する。
func (s PaymentPending) Detect(ctx context.Context, sub Subject) ([]Candidate, error) {
	p, err := s.src.LatestPayment(ctx, sub.UserID)
	if errors.Is(err, portal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Status != portal.PaymentPending {
		return nil, nil
	}

	return []Candidate{{
		Key:       KeyPaymentPending,
		Title:     "支払いの承認待ちです",
		Message:   fmt.Sprintf("%sプランの支払いを確認中です。", p.PlanName),
		Severity:  SeverityWarning,
		Priority:  PriorityHigh,
		Timestamp: p.CreatedAt.Unix(),
	}}, nil
}

// VisitReminder は最後の来館から7日以上経過していることを検出する。
// 出席記録が1件もない場合は対象外とする。
type VisitReminder struct{ src Source }

// Name はシグナル名を返す。
func (VisitReminder) Name() string { return "visit_reminder" }

// Detect は最終来館日時からの経過日数（24時間単位の切り捨て）を評価する。
func (s VisitReminder) Detect(ctx context.Context, sub Subject) ([]Candidate, error) {
	last, err := s.src.LastAttendance(ctx, sub.UserID)
	if errors.Is(err, portal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	days := int(sub.Now.Sub(last) / day)
	if days < visitGap {
		return nil, nil
	}

	return []Candidate{{
		Key:       KeyVisitReminder,
		Title:     "しばらく来館がありません",
		Message:   fmt.Sprintf("最後の来館から%d日が経過しています。", days),
		Severity:  SeverityReminder,
		Priority:  PriorityMedium,
		Timestamp: last.Unix(),
	}}, nil
}

// WeeklyGoal は直近7日間の来館回数が目標に届いていないことを検出する。
type WeeklyGoal struct{ src Source }

// Name はシグナル名を返す。
func (WeeklyGoal) Name() string { return "weekly_goal" }

// Detect は直近7日間の来館回数を数える。
func (s WeeklyGoal) Detect(ctx context.Context, sub Subject) ([]Candidate, error) {
	n, err := s.src.AttendanceCountSince(ctx, sub.UserID, sub.Now.Add(-goalWindow))
	if err != nil {
		return nil, err
	}
	if n >= weeklyGoalTarget {
		return nil, nil
	}

	return []Candidate{{
		Key:       KeyWeeklyGoal,
		Title:     "今週の目標",
		Message:   fmt.Sprintf("直近7日間の来館は%d回です。目標の%d回まであと%d回です。", n, weeklyGoalTarget, weeklyGoalTarget-n),
		Severity:  SeverityInfo,
		Priority:  PriorityLow,
		Timestamp: sub.Now.Unix(),
	}}, nil
}

// Announcements は直近7日間に作成されたお知らせを1件ずつ通知候補にする。
// 既読のお知らせはランキング時に除外される。
type Announcements struct{ src Source }

// Name はシグナル名を返す。
func (Announcements) Name() string { return "announcement" }

// Detect は直近7日間のお知らせを取得する。
func (s Announcements) Detect(ctx context.Context, sub Subject) ([]Candidate, error) {
	announcements, err := s.src.AnnouncementsSince(ctx, sub.Now.Add(-AnnouncementWindow))
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(announcements))
	for _, a := range announcements {
		candidates = append(candidates, Candidate{
			Key:       AnnouncementKey(a.ID),
			Title:     a.Title,
			Message:   a.Body,
			Severity:  SeverityInfo,
			Priority:  PriorityMedium,
			Timestamp: a.CreatedAt.Unix(),
		})
	}
	return candidates, nil
}

// EquipmentMaintenance はメンテナンス中の設備があることを検出する。
type EquipmentMaintenance struct{ src Source }

// Name はシグナル名を返す。
func (EquipmentMaintenance) Name() string { return "equipment_maintenance" }

// Detect はステータスがMaintenanceの設備をまとめて1件の通知候補にする。
func (s EquipmentMaintenance) Detect(ctx context.Context, sub Subject) ([]Candidate, error) {
	equipment, err := s.src.EquipmentByStatus(ctx, portal.EquipmentMaintenance)
	if err != nil {
		return nil, err
	}
	if len(equipment) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(equipment))
	var latest time.Time
	for _, e := range equipment {
		names = append(names, e.Name)
		if e.UpdatedAt.After(latest) {
			latest = e.UpdatedAt
		}
	}

	return []Candidate{{
		Key:       KeyEquipmentMaintenance,
		Title:     "メンテナンス中の設備があります",
		Message:   fmt.Sprintf("%d台の設備がメンテナンス中です: %s", len(equipment), strings.Join(names, ", ")),
		Severity:  SeverityWarning,
		Priority:  PriorityLow,
		Timestamp: latest.Unix(),
	}}, nil
}

// Welcome はアカウント作成から7日以内の会員を検出する。
type Welcome struct{ src Source }

// Name はシグナル名を返す。
func (Welcome) Name() string { return "welcome" }

// Detect はアカウントの作成日時を評価する。
func (s Welcome) Detect(ctx context.Context, sub Subject) ([]Candidate, error) {
	m, err := s.src.Member(ctx, sub.UserID)
	if errors.Is(err, portal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sub.Now.Sub(m.CreatedAt) > WelcomeWindow {
		return nil, nil
	}

	return []Candidate{{
		Key:       KeyWelcome,
		Title:     "ようこそ！",
		Message:   fmt.Sprintf("%sさん、ご入会ありがとうございます。", m.Name),
		Severity:  SeveritySuccess,
		Priority:  PriorityLow,
		Timestamp: m.CreatedAt.Unix(),
	}}, nil
}
