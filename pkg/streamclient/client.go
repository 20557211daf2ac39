package streamclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/nao1215/gymhub/pkg/event"
	"github.com/nao1215/gymhub/pkg/httpclient"
)

// ConnState はストリーム接続の状態。
type ConnState int

const (
	// Disconnected は未接続。再接続を待っている状態も含む。
	Disconnected ConnState = iota
	// Connecting は接続中。
	Connecting
	// Open はストリームを受信中。
	Open
	// PollingOnly はストリームを諦め、ポーリングだけで更新している状態。
	PollingOnly
)

// String は状態名を返す。
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case PollingOnly:
		return "polling"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// errServerClosed はサーバーがerrorフレームを送って接続を閉じたことを表す。
var errServerClosed = errors.New("サーバーがエラーで接続を閉じました")

// Options はクライアントの動作設定。
type Options struct {
	// RetryBackoff は接続失敗から再接続までの待ち時間。
	RetryBackoff time.Duration
	// MaxRetries は連続して接続に失敗できる回数。超えるとポーリングのみに切り替える。
	MaxRetries int
	// RefreshInterval はストリームと独立したポーリングの間隔。
	RefreshInterval time.Duration
	// OnChange は状態が変わるたびに呼ばれる。nilなら呼ばない。
	OnChange func(Snapshot)
}

// DefaultOptions はデフォルトの設定を返す。
func DefaultOptions() Options {
	return Options{
		RetryBackoff:    5 * time.Second,
		MaxRetries:      5,
		RefreshInterval: 5 * time.Minute,
	}
}

// Snapshot はクライアントが保持する状態の複製。
type Snapshot struct {
	State         ConnState
	Notifications []event.Notification
	UnreadCount   int
	Membership    *event.MembershipStatus
	Equipment     []event.EquipmentStatus
}

// Client は通知ストリームのクライアント。
type Client struct {
	api  API
	opts Options

	mu            sync.Mutex
	state         ConnState
	notifications []event.Notification
	unreadCount   int
	membership    *event.MembershipStatus
	equipment     []event.EquipmentStatus
	// serverKeys は直近にサーバーから受け取ったフィードのキー。
	serverKeys []string
	// dismissed はClearAllで消去したキー。サーバーの既読状態とは独立し、このクライアントの間だけ有効。
	dismissed map[string]struct{}
	// pending は既読化を送ったがサーバーの確認が取れていないキー。
	pending map[string]struct{}
	// failures は連続した接続失敗の回数。
	failures int
}

// New は新しいClientを生成する。
func New(api API, opts Options) *Client {
	return &Client{
		api:       api,
		opts:      opts,
		dismissed: make(map[string]struct{}),
		pending:   make(map[string]struct{}),
	}
}

// Run はctxが終了するまでストリームを受信し、定期的にポーリングする。
func (c *Client) Run(ctx context.Context) error {
	go c.refreshLoop(ctx)

	for ctx.Err() == nil {
		if c.State() == PollingOnly {
			<-ctx.Done()
			break
		}

		err := c.stream(ctx)
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, errServerClosed) || httpclient.IsUnauthorized(err) {
			log.Printf("[StreamClient] ポーリングに切り替えます: %v", err)
			c.enterPolling(ctx)
			continue
		}

		c.mu.Lock()
		c.failures++
		failures := c.failures
		c.mu.Unlock()
		if failures >= c.opts.MaxRetries {
			log.Printf("[StreamClient] %d回連続で接続に失敗したためポーリングに切り替えます: %v", failures, err)
			c.enterPolling(ctx)
			continue
		}

		log.Printf("[StreamClient] 接続が切れました。%s後に再接続します (%d/%d): %v", c.opts.RetryBackoff, failures, c.opts.MaxRetries, err)
		c.setState(Disconnected)
		select {
		case <-ctx.Done():
		case <-time.After(c.opts.RetryBackoff):
		}
	}

	c.mu.Lock()
	if c.state != PollingOnly {
		c.state = Disconnected
	}
	c.mu.Unlock()
	return nil
}

// enterPolling はポーリング専用モードへ移り、次の定期更新を待たずに1度フィードを取得する。
func (c *Client) enterPolling(ctx context.Context) {
	c.setState(PollingOnly)
	if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[StreamClient] ポーリング切り替え時の更新に失敗しました: %v", err)
	}
}

// refreshLoop はRefreshIntervalごとにフィードを取得する。
func (c *Client) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[StreamClient] 定期更新に失敗しました: %v", err)
			}
		}
	}
}

// stream は1回分のストリーム接続を処理する。接続が終わるまで戻らない。
func (c *Client) stream(ctx context.Context) error {
	c.setState(Connecting)

	body, err := c.api.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	c.setState(Open)
	dec := event.NewDecoder(body)
	for {
		f, err := dec.Next()
		if err != nil {
			return fmt.Errorf("ストリームの受信に失敗: %w", err)
		}
		if err := c.handleFrame(f); err != nil {
			return err
		}
	}
}

// handleFrame はフレームの種類に応じてローカルの状態を更新する。
func (c *Client) handleFrame(f *event.Frame) error {
	switch f.Type {
	case event.TypeConnected:
		c.mu.Lock()
		c.failures = 0
		c.mu.Unlock()
		return nil

	case event.TypeNotifications:
		data, err := event.DecodeData[event.NotificationsData](f)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.applyFeedLocked(data.Notifications, data.UnreadCount)
		c.mu.Unlock()

	case event.TypeCountUpdate:
		data, err := event.DecodeData[event.CountUpdateData](f)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.unreadCount = max(0, data.UnreadCount-c.hiddenLocked())
		c.mu.Unlock()

	case event.TypeNewAnnouncement:
		data, err := event.DecodeData[event.NewAnnouncementData](f)
		if err != nil {
			return err
		}
		c.mu.Lock()
		for _, a := range data.Announcements {
			c.mergeLocked(event.Notification{
				ID:        fmt.Sprintf("announcement_%d", a.ID),
				Title:     a.Title,
				Message:   a.Body,
				Type:      "info",
				Priority:  "medium",
				Timestamp: data.Timestamp,
			})
		}
		c.mu.Unlock()

	case event.TypeMembershipUpdate:
		data, err := event.DecodeData[event.MembershipUpdateData](f)
		if err != nil {
			return err
		}
		c.mu.Lock()
		update := data.Update
		c.membership = &update
		c.mergeLocked(event.Notification{
			ID:        "membership_update_" + update.Date,
			Title:     "会員ステータスが更新されました",
			Message:   fmt.Sprintf("%sプラン: %s", update.Plan, update.Status),
			Type:      "info",
			Priority:  "medium",
			Timestamp: data.Timestamp,
		})
		c.mu.Unlock()

	case event.TypeEquipmentUpdate:
		data, err := event.DecodeData[event.EquipmentUpdateData](f)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.equipment = slices.Clone(data.Update)
		for _, e := range data.Update {
			c.mergeLocked(event.Notification{
				ID:        "equipment_update_" + e.Name,
				Title:     "設備の状態が変わりました",
				Message:   fmt.Sprintf("%s: %s", e.Name, e.Status),
				Type:      "info",
				Priority:  "low",
				Timestamp: data.Timestamp,
			})
		}
		c.mu.Unlock()

	case event.TypeHeartbeat:
		return nil

	case event.TypeError:
		data, err := event.DecodeData[event.ErrorData](f)
		if err != nil {
			return errServerClosed
		}
		return fmt.Errorf("%w: %s", errServerClosed, data.Error)

	default:
		// 未知のフレームは読み飛ばす
		return nil
	}

	c.notify()
	return nil
}

// applyFeedLocked はサーバーのフィードでローカルの一覧を置き換える。
// ローカルで消去したキーと既読化の確認待ちのキーは表示しない。
func (c *Client) applyFeedLocked(feed []event.Notification, unread int) {
	c.serverKeys = c.serverKeys[:0]
	visible := make([]event.Notification, 0, len(feed))
	for _, n := range feed {
		c.serverKeys = append(c.serverKeys, n.ID)
		if c.hiddenKeyLocked(n.ID) {
			continue
		}
		visible = append(visible, n)
	}
	c.notifications = visible
	c.unreadCount = max(0, unread-c.hiddenLocked())
}

// mergeLocked はnを一覧の先頭に加える。同じIDが既にあるか非表示のキーなら何もしない。
func (c *Client) mergeLocked(n event.Notification) {
	if c.hiddenKeyLocked(n.ID) {
		return
	}
	if slices.ContainsFunc(c.notifications, func(e event.Notification) bool { return e.ID == n.ID }) {
		return
	}
	c.notifications = append([]event.Notification{n}, c.notifications...)
	c.unreadCount++
}

// hiddenKeyLocked はkeyを表示しないかどうかを返す。
func (c *Client) hiddenKeyLocked(key string) bool {
	if _, ok := c.dismissed[key]; ok {
		return true
	}
	_, ok := c.pending[key]
	return ok
}

// hiddenLocked は直近のサーバーのフィードのうち表示していない件数を返す。
func (c *Client) hiddenLocked() int {
	n := 0
	for _, k := range c.serverKeys {
		if c.hiddenKeyLocked(k) {
			n++
		}
	}
	return n
}

// Refresh は確認待ちの既読化を再送してから、ポーリングでフィードを取得する。
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	pending := make([]string, 0, len(c.pending))
	for k := range c.pending {
		pending = append(pending, k)
	}
	c.mu.Unlock()
	slices.Sort(pending)

	for _, key := range pending {
		if err := c.api.MarkRead(ctx, key); err != nil {
			log.Printf("[StreamClient] 既読化の再送に失敗しました (key=%s): %v", key, err)
			continue
		}
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}

	resp, err := c.api.Poll(ctx)
	if err != nil {
		return fmt.Errorf("フィードの取得に失敗: %w", err)
	}

	c.mu.Lock()
	c.applyFeedLocked(resp.Notifications, resp.UnreadCount)
	c.mu.Unlock()
	c.notify()
	return nil
}

// MarkAsRead はkeyをローカルで即座に既読にし、サーバーへ既読化を送る。
// 送信に失敗してもローカルの表示は戻さず、次回のRefreshで再送する。
func (c *Client) MarkAsRead(ctx context.Context, key string) error {
	c.mu.Lock()
	c.pending[key] = struct{}{}
	before := len(c.notifications)
	c.notifications = slices.DeleteFunc(c.notifications, func(n event.Notification) bool { return n.ID == key })
	if len(c.notifications) < before {
		c.unreadCount = max(0, c.unreadCount-1)
	}
	c.mu.Unlock()
	c.notify()

	if err := c.api.MarkRead(ctx, key); err != nil {
		return fmt.Errorf("既読化の送信に失敗 (key=%s): %w", key, err)
	}

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	return nil
}

// MarkAllAsRead は表示中の全通知を既読にする。
func (c *Client) MarkAllAsRead(ctx context.Context) error {
	var errs []error
	for _, key := range c.visibleKeys() {
		if err := c.MarkAsRead(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ClearAll は表示中の全通知をこのクライアントの間だけ非表示にする。
// サーバーの既読状態は変更しないため、新しいクライアントでは再び表示される。
func (c *Client) ClearAll() {
	c.mu.Lock()
	for _, n := range c.notifications {
		c.dismissed[n.ID] = struct{}{}
	}
	c.notifications = nil
	c.unreadCount = 0
	c.mu.Unlock()
	c.notify()
}

// visibleKeys は表示中の通知のキーを返す。
func (c *Client) visibleKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.notifications))
	for _, n := range c.notifications {
		keys = append(keys, n.ID)
	}
	return keys
}

// State は現在の接続状態を返す。
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot は現在の状態の複製を返す。
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Snapshot {
	s := Snapshot{
		State:         c.state,
		Notifications: slices.Clone(c.notifications),
		UnreadCount:   c.unreadCount,
		Equipment:     slices.Clone(c.equipment),
	}
	if c.membership != nil {
		m := *c.membership
		s.Membership = &m
	}
	return s
}

// setState は接続状態を更新する。
func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// notify はOnChangeへ現在の状態を渡す。
func (c *Client) notify() {
	if c.opts.OnChange == nil {
		return
	}
	c.opts.OnChange(c.Snapshot())
}
