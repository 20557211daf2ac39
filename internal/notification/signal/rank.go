package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// MaxFeedSize はランキング済みフィードの最大件数。
const MaxFeedSize = 10

// ReadSet はユーザーが既読にした通知キーの集合。
type ReadSet map[string]struct{}

// Has はkeyが既読かどうかを返す。
func (r ReadSet) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Rank は既読の候補を除外し、優先度の高い順・新しい順に並べて最大10件に切り詰める。
// 同じ入力に対して常に同じ結果を返すよう、最後はキーの昇順で順位を確定させる。
// 同じキーの候補が複数ある場合は上位の1件だけを残す。
func Rank(candidates []Candidate, read ReadSet) []Candidate {
	feed := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if read.Has(c.Key) {
			continue
		}
		feed = append(feed, c)
	}

	sort.SliceStable(feed, func(i, j int) bool {
		a, b := feed[i], feed[j]
		if wa, wb := a.Priority.weight(), b.Priority.weight(); wa != wb {
			return wa > wb
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		return a.Key < b.Key
	})

	seen := make(map[string]struct{}, len(feed))
	ranked := feed[:0]
	for _, c := range feed {
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		ranked = append(ranked, c)
		if len(ranked) == MaxFeedSize {
			break
		}
	}
	return ranked
}

// Keys はフィードの通知キーを順に返す。
func Keys(feed []Candidate) []string {
	keys := make([]string, 0, len(feed))
	for _, c := range feed {
		keys = append(keys, c.Key)
	}
	return keys
}

// Fingerprint はフィードの同一性を表すハッシュを返す。
// 文言（「あと2日」など）ではなく、並び順を含むキーの列だけから計算するため、
// 新しい出来事がない限り日付の経過だけでは値が変わらない。
func Fingerprint(feed []Candidate) string {
	h := sha256.New()
	for _, c := range feed {
		h.Write([]byte(c.Key))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
