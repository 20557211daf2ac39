package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/nao1215/gymhub/internal/config"
	"github.com/nao1215/gymhub/internal/notification/signal"
	"github.com/nao1215/gymhub/internal/portal"
	"github.com/nao1215/gymhub/internal/schema"
	"github.com/nao1215/gymhub/pkg/event"
	"github.com/nao1215/gymhub/pkg/middleware"
	_ "modernc.org/sqlite"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// readState は既読状態のストア。
	readState *ReadStateStore
	// feeder はフィードの計算を行う。
	feeder *Feeder
	// publisher はストリーム配信を行う。
	publisher *Publisher
	// broker は既読状態の変更をストリームへ伝える。
	broker Broker
	// housekeeper は古い既読状態を定期削除する。スケジュール未設定ならnil。
	housekeeper *Housekeeper
	// now はフィード計算の基準時刻を返す。
	now func() time.Time
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := sqlx.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := schema.Apply(context.Background(), db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	var broker Broker = NewLocalBroker()
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, err
		}
		broker = rb
	}

	s := newServer(db, cfg, broker)
	if cfg.Housekeeping.PruneSchedule != "" {
		h, err := NewHousekeeper(s.readState, cfg.Housekeeping.PruneSchedule, cfg.Housekeeping.ReadStateMaxAge)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.housekeeper = h
	}

	return s, nil
}

// newServer はデータベースとBrokerを受け取ってサーバーを組み立てる。
func newServer(db *sqlx.DB, cfg *config.Config, broker Broker) *Server {
	repo := portal.NewRepository(db)
	readState := NewReadStateStore(db)
	feeder := NewFeeder(signal.All(repo), readState, cfg.Stream.CollectorTimeout)
	publisher := NewPublisher(feeder, repo, broker, StreamOptions{
		Tick:              cfg.Stream.Tick,
		FeedEvery:         cfg.Stream.FeedEvery,
		SideEvery:         cfg.Stream.SideEvery,
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		WriteTimeout:      cfg.Stream.WriteTimeout,
	})

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:    router,
		port:      cfg.Port,
		db:        db,
		readState: readState,
		feeder:    feeder,
		publisher: publisher,
		broker:    broker,
		now:       time.Now,
	}
	s.setupRoutes(cfg.JWTSecret)
	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	if rb, ok := s.broker.(*RedisBroker); ok {
		if err := rb.Start(context.Background()); err != nil {
			return err
		}
	}
	if s.housekeeper != nil {
		s.housekeeper.Start()
	}
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はバックグラウンド処理を停止し、データベース接続を閉じる。
func (s *Server) Close() error {
	if s.housekeeper != nil {
		s.housekeeper.Stop()
	}
	if rb, ok := s.broker.(*RedisBroker); ok {
		if err := rb.Close(); err != nil {
			log.Printf("Redis接続のクローズに失敗: %v", err)
		}
	}
	return s.db.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes(jwtSecret string) {
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		notifications := api.Group("/notifications")
		{
			// ポーリング用のフィード取得
			notifications.GET("", s.handlePoll())
			// ストリーム配信（Server-Sent Events）
			notifications.GET("/stream", s.handleStream())
			// 通知を既読にする
			notifications.POST("/read", s.handleMarkRead())
			// 現在のフィードの通知をすべて既読にする
			notifications.POST("/read-all", s.handleMarkAllRead())
			// 既読状態を取り消す
			notifications.DELETE("/read/:key", s.handleUnmark())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}

// requireUser は認証済みユーザーIDを返す。取得できない場合は401を返してfalseを返す。
func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "ユーザーIDが取得できません"})
		return "", false
	}
	return userID, true
}

// publishInvalidation は既読状態の変更を同じユーザーのストリームへ伝える。
// 失敗してもストリームは定期計算で追いつくため、ログに記録するだけにする。
func (s *Server) publishInvalidation(ctx context.Context, userID string) {
	if err := s.broker.Publish(ctx, userID); err != nil {
		log.Printf("フィード無効化の通知に失敗 (user=%s): %v", userID, err)
	}
}

// handlePoll は認証済みユーザーのランキング済みフィードを返すハンドラ。
// ストリームを開かないページとクライアントの定期更新が使う。
func (s *Server) handlePoll() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		feed, err := s.feeder.Compute(c.Request.Context(), signal.Subject{UserID: userID, Now: s.now()})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "通知の取得に失敗しました"})
			log.Printf("通知フィード取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, event.PollResponse{
			Success:       true,
			Notifications: toWireNotifications(feed),
			UnreadCount:   len(feed),
		})
	}
}

// handleStream は通知フィードをServer-Sent Eventsで配信するハンドラ。
// クライアントが切断するかループでエラーが発生するまで戻らない。
func (s *Server) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		w := newSSEWriter(c, s.publisher.opts.WriteTimeout)
		if err := s.publisher.Serve(c.Request.Context(), w, userID); err != nil {
			log.Printf("通知ストリームがエラーで終了しました (user=%s): %v", userID, err)
		}
	}
}

// handleMarkRead は指定された通知キーを既読にするハンドラ。
// 形式が不正なキーや存在しないキーは何もせず成功として扱う。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		var req event.MarkReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		key := strings.TrimSpace(req.NotificationID)
		if !signal.ValidKey(key) {
			c.JSON(http.StatusOK, event.MarkReadResponse{Success: true})
			return
		}

		if err := s.readState.MarkRead(c.Request.Context(), userID, key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "通知の既読処理に失敗しました"})
			log.Printf("通知既読処理エラー: %v", err)
			return
		}
		s.publishInvalidation(c.Request.Context(), userID)

		c.JSON(http.StatusOK, event.MarkReadResponse{Success: true})
	}
}

// handleMarkAllRead は現在のフィードに載っている通知をすべて既読にするハンドラ。
// まだフィードに現れていない通知は未読のまま残る。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		feed, err := s.feeder.Compute(c.Request.Context(), signal.Subject{UserID: userID, Now: s.now()})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "通知の取得に失敗しました"})
			log.Printf("通知フィード取得エラー: %v", err)
			return
		}

		marked, err := s.readState.MarkAllRead(c.Request.Context(), userID, signal.Keys(feed))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "全通知の既読処理に失敗しました"})
			log.Printf("全通知既読処理エラー: %v", err)
			return
		}
		s.publishInvalidation(c.Request.Context(), userID)

		c.JSON(http.StatusOK, gin.H{"success": true, "marked": marked})
	}
}

// handleUnmark は指定された通知キーの既読状態を取り消すハンドラ。
func (s *Server) handleUnmark() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := requireUser(c)
		if !ok {
			return
		}

		key := c.Param("key")
		if !signal.ValidKey(key) {
			c.JSON(http.StatusOK, event.MarkReadResponse{Success: true})
			return
		}

		if err := s.readState.Unmark(c.Request.Context(), userID, key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "既読状態の取り消しに失敗しました"})
			log.Printf("既読取り消しエラー: %v", err)
			return
		}
		s.publishInvalidation(c.Request.Context(), userID)

		c.JSON(http.StatusOK, event.MarkReadResponse{Success: true})
	}
}
