package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/gymhub/internal/portal"
	"github.com/nao1215/gymhub/pkg/event"
)

// 補助チャネルの監視期間。
const (
	announcementLookback = time.Hour
	membershipLookback   = 24 * time.Hour
	equipmentLookback    = 24 * time.Hour
)

// SideSource は補助チャネル（新着お知らせ・会員ステータス変更・設備ステータス変更）の読み取り口。
// portal.Repository が実装する。
type SideSource interface {
	AnnouncementsSince(ctx context.Context, since time.Time) ([]portal.Announcement, error)
	PaymentsUpdatedSince(ctx context.Context, userID string, since time.Time) ([]portal.Payment, error)
	EquipmentUpdatedSince(ctx context.Context, since time.Time) ([]portal.Equipment, error)
}

// sideChannels は補助チャネルの変化を検出してフレームを組み立てる。
// 同じ変化を同じ接続へ二度送らないよう、送信済みの項目を接続ごとに記録する。
// 補助チャネルは情報提供のためのプッシュであり、フィードの重複抑止ハッシュには含めない。
type sideChannels struct {
	src SideSource
	// sent は送信済み項目から、その項目が監視期間を外れる時刻への対応。
	sent map[string]time.Time
}

func newSideChannels(src SideSource) *sideChannels {
	return &sideChannels{src: src, sent: make(map[string]time.Time)}
}

// markSent は項目を送信済みにし、初めての項目ならtrueを返す。
// at は項目の発生時刻で、at+lookback を過ぎると記録は forget で破棄される。
func (s *sideChannels) markSent(key string, at time.Time, lookback time.Duration) bool {
	if _, ok := s.sent[key]; ok {
		return false
	}
	s.sent[key] = at.Add(lookback)
	return true
}

// forget は監視期間を外れた送信済み記録を破棄する。
// 期間外の項目は問い合わせ結果に二度と現れないため、記録を消しても再送されない。
func (s *sideChannels) forget(now time.Time) {
	for key, expires := range s.sent {
		if expires.Before(now) {
			delete(s.sent, key)
		}
	}
}

// frames はnow時点で未送信の補助チャネルのフレームを返す。
// データ取得の失敗はシグナルと同様にログに記録して読み飛ばす。
func (s *sideChannels) frames(ctx context.Context, userID string, now time.Time) ([]*event.Frame, error) {
	s.forget(now)

	var frames []*event.Frame
	ts := now.Unix()

	if announcements, err := s.src.AnnouncementsSince(ctx, now.Add(-announcementLookback)); err != nil {
		logSideChannelError("new_announcement", userID, err)
	} else {
		var fresh []event.Announcement
		for _, a := range announcements {
			if !s.markSent(fmt.Sprintf("announcement:%d", a.ID), a.CreatedAt, announcementLookback) {
				continue
			}
			fresh = append(fresh, event.Announcement{
				ID:        a.ID,
				Title:     a.Title,
				Body:      a.Body,
				CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		if len(fresh) > 0 {
			f, err := event.NewFrame(event.TypeNewAnnouncement, event.NewAnnouncementData{Announcements: fresh, Timestamp: ts})
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
	}

	if payments, err := s.src.PaymentsUpdatedSince(ctx, userID, now.Add(-membershipLookback)); err != nil {
		logSideChannelError("membership_update", userID, err)
	} else if len(payments) > 0 {
		// 新しい順に並んでいるため先頭が現在のステータス
		p := payments[0]
		if s.markSent(fmt.Sprintf("payment:%d@%d", p.ID, p.UpdatedAt.UnixNano()), p.UpdatedAt, membershipLookback) {
			f, err := event.NewFrame(event.TypeMembershipUpdate, event.MembershipUpdateData{
				Update: event.MembershipStatus{
					Status: p.Status,
					Plan:   p.PlanName,
					Date:   p.UpdatedAt.UTC().Format(time.RFC3339),
				},
				Timestamp: ts,
			})
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
	}

	if equipment, err := s.src.EquipmentUpdatedSince(ctx, now.Add(-equipmentLookback)); err != nil {
		logSideChannelError("equipment_update", userID, err)
	} else {
		var changed []event.EquipmentStatus
		for _, e := range equipment {
			if !s.markSent(fmt.Sprintf("equipment:%d@%d", e.ID, e.UpdatedAt.UnixNano()), e.UpdatedAt, equipmentLookback) {
				continue
			}
			status := event.EquipmentStatus{Name: e.Name, Status: e.Status}
			if e.LastMaintenanceDate.Valid {
				status.LastMaintenanceDate = e.LastMaintenanceDate.Time.UTC().Format(time.DateOnly)
			}
			changed = append(changed, status)
		}
		if len(changed) > 0 {
			f, err := event.NewFrame(event.TypeEquipmentUpdate, event.EquipmentUpdateData{Update: changed, Timestamp: ts})
			if err != nil {
				return nil, err
			}
			frames = append(frames, f)
		}
	}

	return frames, nil
}
