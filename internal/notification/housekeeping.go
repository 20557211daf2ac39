package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// pruneTimeout は定期削除1回あたりのタイムアウト。
const pruneTimeout = time.Minute

// Housekeeper は古い既読状態を定期的に削除する。
// 削除するのは二度と通知されないキー（期間を過ぎたお知らせ、ウェルカム）の既読状態だけ。
type Housekeeper struct {
	cron      *cron.Cron
	readState *ReadStateStore
	maxAge    time.Duration
}

// NewHousekeeper はscheduleに従って定期削除を行うHousekeeperを生成する。
func NewHousekeeper(readState *ReadStateStore, schedule string, maxAge time.Duration) (*Housekeeper, error) {
	h := &Housekeeper{
		cron:      cron.New(),
		readState: readState,
		maxAge:    maxAge,
	}
	if _, err := h.cron.AddFunc(schedule, h.prune); err != nil {
		return nil, fmt.Errorf("定期削除のスケジュール %q が不正です: %w", schedule, err)
	}
	return h, nil
}

// Start は定期削除を開始する。
func (h *Housekeeper) Start() {
	h.cron.Start()
	log.Printf("[Housekeeping] 既読状態の定期削除を開始しました (max_age=%s)", h.maxAge)
}

// Stop は定期削除を停止し、実行中のジョブの完了を待つ。
func (h *Housekeeper) Stop() {
	<-h.cron.Stop().Done()
}

// prune はmaxAgeより古く、通知対象に戻り得ない既読状態を削除する。
func (h *Housekeeper) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	n, err := h.readState.PruneAllStale(ctx, h.maxAge)
	if err != nil {
		log.Printf("[Housekeeping] 既読状態の削除に失敗しました: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Housekeeping] 古い既読状態を%d件削除しました", n)
	}
}
