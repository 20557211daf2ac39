package notification

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Broker は既読状態の変更をそのユーザーの全ストリームへ伝える。
// 通知を受けたストリームは次のTickでフィードを再計算するため、
// 別タブでの既読化が定期計算を待たずに反映される。
type Broker interface {
	// Publish はuserIDのフィードが変わった可能性を伝える。
	Publish(ctx context.Context, userID string) error
	// Subscribe はuserID宛ての通知を受け取るチャネルと解除関数を返す。
	Subscribe(userID string) (<-chan struct{}, func())
}

// LocalBroker はプロセス内で完結するBroker。
type LocalBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

// NewLocalBroker は新しいLocalBrokerを生成する。
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish はuserIDの購読者全員に通知する。
func (b *LocalBroker) Publish(_ context.Context, userID string) error {
	b.notify(userID)
	return nil
}

// notify は購読者へ通知する。未処理の通知が残っている購読者には重ねて送らない。
func (b *LocalBroker) notify(userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[userID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe はuserID宛ての通知を購読する。
func (b *LocalBroker) Subscribe(userID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan struct{}]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
		})
	}
}

// redisChannel は無効化通知に使うRedisのPub/Subチャネル名。
const redisChannel = "gymhub:notifications:invalidate"

// RedisBroker はRedisのPub/Subで複数インスタンスにまたがって通知するBroker。
// 受信した通知はプロセス内のLocalBrokerへ転送する。
type RedisBroker struct {
	client *redis.Client
	local  *LocalBroker
}

// NewRedisBroker はredisURLに接続するRedisBrokerを生成する。
func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗: %w", err)
	}
	return &RedisBroker{client: redis.NewClient(opts), local: NewLocalBroker()}, nil
}

// Start はRedisの購読を開始し、ctxが終了するまで受信した通知を転送する。
func (b *RedisBroker) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, redisChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("Redisの購読開始に失敗: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.Println("[Broker] Redisの購読チャネルが閉じられました")
					return
				}
				b.local.notify(msg.Payload)
			}
		}
	}()
	return nil
}

// Publish はRedis経由で全インスタンスへ通知する。
func (b *RedisBroker) Publish(ctx context.Context, userID string) error {
	if err := b.client.Publish(ctx, redisChannel, userID).Err(); err != nil {
		return fmt.Errorf("Redisへの無効化通知の送信に失敗: %w", err)
	}
	return nil
}

// Subscribe はuserID宛ての通知を購読する。
func (b *RedisBroker) Subscribe(userID string) (<-chan struct{}, func()) {
	return b.local.Subscribe(userID)
}

// Close はRedisとの接続を閉じる。
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
