package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nao1215/gymhub/internal/notification/signal"
	"github.com/nao1215/gymhub/pkg/event"
)

// StreamOptions はストリームループのタイミング設定。
type StreamOptions struct {
	// Tick はループ1周の間隔。切断検知の最大遅延になる。
	Tick time.Duration
	// FeedEvery は何Tickごとにフィードを再計算するか。
	FeedEvery int
	// SideEvery は何Tickごとに補助チャネルを確認するか。フィードの再計算とは独立に動く。
	// 0以下なら毎Tick確認する。
	SideEvery int
	// HeartbeatInterval はheartbeatフレームの最大間隔。
	HeartbeatInterval time.Duration
	// WriteTimeout はフレーム書き込み1回あたりのタイムアウト。0なら無制限。
	WriteTimeout time.Duration
}

// FrameWriter はフレームをクライアントへ書き込み、即座にフラッシュする。
type FrameWriter interface {
	WriteFrame(f *event.Frame) error
}

// sessionState はストリームセッションの状態。
type sessionState int

const (
	stateConnecting sessionState = iota
	stateOpen
	stateClosed
)

// Publisher は接続ごとのストリームループを実行する。
type Publisher struct {
	feeder *Feeder
	side   SideSource
	broker Broker
	opts   StreamOptions
	// now はループが使う時刻関数。time.Nowは単調時計を含むため経過時間の計測に使える。
	now func() time.Time
}

// NewPublisher は新しいPublisherを生成する。
func NewPublisher(feeder *Feeder, side SideSource, broker Broker, opts StreamOptions) *Publisher {
	return &Publisher{feeder: feeder, side: side, broker: broker, opts: opts, now: time.Now}
}

// Serve はctxが終了するまでuserIDのストリームを配信する。
// クライアントの切断（ctxの終了）は正常終了としてnilを返す。
// ループ内の処理（フィード計算・シリアライズ・書き込み）が失敗した場合は
// errorフレームを1度だけ送ってからエラーを返す。ループ内のpanicも同様に扱う。
func (p *Publisher) Serve(ctx context.Context, w FrameWriter, userID string) (err error) {
	s := newSession(p, w, userID)
	log.Printf("[Stream] 接続を開始しました (session=%s, user=%s)", s.id, userID)
	defer func() {
		if r := recover(); r != nil {
			err = s.fail(ctx, fmt.Errorf("ストリーム処理でpanicが発生: %v", r))
		}
	}()

	invalidated, unsubscribe := p.broker.Subscribe(userID)
	defer unsubscribe()

	if err := s.open(ctx, p.now()); err != nil {
		return s.fail(ctx, err)
	}

	ticker := time.NewTicker(p.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.close("クライアントが切断しました")
			return nil
		case <-invalidated:
			s.dirty = true
		case <-ticker.C:
			if err := s.tick(ctx, p.now()); err != nil {
				return s.fail(ctx, err)
			}
		}
	}
}

// session は1接続分のストリーム状態。接続の終了とともに破棄される。
type session struct {
	id     string
	userID string
	p      *Publisher
	w      FrameWriter
	state  sessionState
	// lastSentHash は直近に送信したフィードのハッシュ。接続ごとに持ち、永続化しない。
	// 再接続したクライアントは必ず最新のフィード全体を受け取る。
	lastSentHash string
	ticks        int
	// lastBeat は直近にheartbeatを送った時刻。単調時計で経過時間を比較する。
	lastBeat time.Time
	// dirty は既読状態の変更通知を受け、次のTickで再計算が必要なことを表す。
	dirty bool
	side  *sideChannels
}

func newSession(p *Publisher, w FrameWriter, userID string) *session {
	return &session{
		id:     uuid.New().String(),
		userID: userID,
		p:      p,
		w:      w,
		state:  stateConnecting,
		side:   newSideChannels(p.side),
	}
}

// open はconnectedフレームを送ってOPEN状態に遷移し、最初のフィードを送る。
func (s *session) open(ctx context.Context, now time.Time) error {
	s.state = stateOpen
	s.lastSentHash = ""
	s.lastBeat = now

	if err := s.send(event.TypeConnected, event.ConnectedData{
		Message: "通知ストリームに接続しました",
		UserID:  s.userID,
	}); err != nil {
		return err
	}
	if err := s.refresh(ctx, now); err != nil {
		return err
	}
	return s.pushSide(ctx, now)
}

// tick はループ1周分の処理を行う。
func (s *session) tick(ctx context.Context, now time.Time) error {
	if ctx.Err() != nil || s.state != stateOpen {
		return nil
	}

	s.ticks++
	if s.dirty || s.ticks%s.p.opts.FeedEvery == 0 {
		s.dirty = false
		if err := s.refresh(ctx, now); err != nil {
			return err
		}
	}
	if s.ticks%max(1, s.p.opts.SideEvery) == 0 {
		if err := s.pushSide(ctx, now); err != nil {
			return err
		}
	}

	if now.Sub(s.lastBeat) >= s.p.opts.HeartbeatInterval {
		if err := s.send(event.TypeHeartbeat, event.HeartbeatData{Timestamp: now.Unix()}); err != nil {
			return err
		}
		s.lastBeat = now
	}
	return nil
}

// refresh はフィードを計算し、前回送信分から変化があればnotificationsとcount_updateを送る。
func (s *session) refresh(ctx context.Context, now time.Time) error {
	feed, err := s.p.feeder.Compute(ctx, signal.Subject{UserID: s.userID, Now: now})
	if err != nil {
		return err
	}

	hash := signal.Fingerprint(feed)
	if hash != s.lastSentHash {
		ts := now.Unix()
		if err := s.send(event.TypeNotifications, event.NotificationsData{
			Notifications: toWireNotifications(feed),
			UnreadCount:   len(feed),
			Timestamp:     ts,
		}); err != nil {
			return err
		}
		if err := s.send(event.TypeCountUpdate, event.CountUpdateData{
			UnreadCount: len(feed),
			Timestamp:   ts,
		}); err != nil {
			return err
		}
		s.lastSentHash = hash
	}
	return nil
}

// pushSide は補助チャネルの未送信の変化を送る。
func (s *session) pushSide(ctx context.Context, now time.Time) error {
	frames, err := s.side.frames(ctx, s.userID, now)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := s.w.WriteFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// send はペイロードをフレームにしてクライアントへ書き込む。
func (s *session) send(t event.Type, data any) error {
	f, err := event.NewFrame(t, data)
	if err != nil {
		return err
	}
	if err := s.w.WriteFrame(f); err != nil {
		return fmt.Errorf("%sフレームの送信に失敗: %w", t, err)
	}
	return nil
}

// fail はエラーを記録して接続を閉じる。クライアントがまだ接続中ならerrorフレームを1度だけ送る。
func (s *session) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		s.close("クライアントが切断しました")
		return nil
	}

	log.Printf("[Stream] ストリーム処理でエラーが発生しました (session=%s, user=%s): %v", s.id, s.userID, err)
	if sendErr := s.send(event.TypeError, event.ErrorData{Error: "通知の配信中にエラーが発生しました。再接続してください。"}); sendErr != nil {
		log.Printf("[Stream] errorフレームの送信に失敗しました (session=%s): %v", s.id, sendErr)
	}
	s.close("エラーにより終了しました")
	return err
}

// close はCLOSED状態に遷移する。
func (s *session) close(reason string) {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed
	log.Printf("[Stream] 接続を終了しました (session=%s, user=%s): %s", s.id, s.userID, reason)
}

// logSideChannelError は補助チャネルのデータ取得失敗を記録する。
func logSideChannelError(channel, userID string, err error) {
	log.Printf("[Stream] 補助チャネル %s の取得に失敗しました (user=%s): %v", channel, userID, err)
}

// sseWriter はGinのレスポンスへSSEフレームを書き込むFrameWriter。
type sseWriter struct {
	w       gin.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
}

// newSSEWriter はSSE用のヘッダーを設定してsseWriterを生成する。
func newSSEWriter(c *gin.Context, timeout time.Duration) *sseWriter {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// リバースプロキシでのバッファリングを無効にする
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	return &sseWriter{w: c.Writer, rc: http.NewResponseController(c.Writer), timeout: timeout}
}

// WriteFrame はフレームを書き込んでフラッシュする。
// 書き込みには期限を設け、遅いクライアントでループが無期限に止まらないようにする。
func (s *sseWriter) WriteFrame(f *event.Frame) error {
	if s.timeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("書き込み期限の設定に失敗: %w", err)
		}
	}
	if err := event.Encode(s.w, f); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}
