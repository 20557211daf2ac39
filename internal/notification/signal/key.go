package signal

import (
	"strconv"
	"strings"
)

// 固定の通知キー。お知らせのみ "announcement_<id>" の形式で複数存在する。
const (
	KeyMembershipExpired    = "membership_expired"
	KeyMembershipExpiring   = "membership_expiring"
	KeyVisitReminder        = "visit_reminder"
	KeyWeeklyGoal           = "weekly_goal"
	KeyEquipmentMaintenance = "equipment_maintenance"
	KeyPaymentPending       = "payment_pending"
	KeyWelcome              = "welcome"

	announcementPrefix = "announcement_"
)

// AnnouncementKey はお知らせIDから通知キーを作る。
func AnnouncementKey(id int64) string {
	return announcementPrefix + strconv.FormatInt(id, 10)
}

// ValidKey はkeyがいずれかのシグナルが生成し得るキーかどうかを返す。
// 既読化APIはこれを満たさないキーを書き込まずに成功扱いとする。
func ValidKey(key string) bool {
	switch key {
	case KeyMembershipExpired, KeyMembershipExpiring, KeyVisitReminder, KeyWeeklyGoal,
		KeyEquipmentMaintenance, KeyPaymentPending, KeyWelcome:
		return true
	}

	idPart, ok := strings.CutPrefix(key, announcementPrefix)
	if !ok || idPart == "" || len(idPart) > 18 {
		return false
	}
	for _, r := range idPart {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
