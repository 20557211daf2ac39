package signal

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Collect は全Collectorを並行に実行し、結果をCollectorの並び順で連結して返す。
// 各Collectorはtimeout内に完了しなければ失敗とみなす（timeoutが0以下なら無制限）。
// 失敗したCollectorはログに記録し、空の結果として扱う。
func Collect(ctx context.Context, collectors []Collector, sub Subject, timeout time.Duration) []Candidate {
	results := make([][]Candidate, len(collectors))

	var g errgroup.Group
	for i, c := range collectors {
		g.Go(func() error {
			cctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			candidates, err := detect(cctx, c, sub)
			if err != nil {
				log.Printf("[Collector] %s の評価に失敗しました (user=%s): %v", c.Name(), sub.UserID, err)
				return nil
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	var all []Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

// detect はCollectorを実行し、ctxの期限切れとパニックをエラーに変換する。
// 期限を無視してブロックするCollectorがあっても呼び出し側は待たされない。
func detect(ctx context.Context, c Collector, sub Subject) ([]Candidate, error) {
	type result struct {
		candidates []Candidate
		err        error
	}

	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("パニックが発生: %v", r)}
			}
		}()
		candidates, err := c.Detect(ctx, sub)
		ch <- result{candidates: candidates, err: err}
	}()

	select {
	case r := <-ch:
		return r.candidates, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("タイムアウト: %w", ctx.Err())
	}
}
