// Package config は通知サービスの設定を読み込む。
//
// YAMLファイル（任意）と GYMHUB_ で始まる環境変数を Viper で統合する。
// 環境変数はファイルの値より優先される。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config は通知サービス全体の設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `mapstructure:"port"`
	// DatabasePath はSQLiteデータベースのDSN。
	DatabasePath string `mapstructure:"database_path"`
	// JWTSecret はJWT検証用の秘密鍵。
	JWTSecret string `mapstructure:"jwt_secret"`
	// AllowedOrigins はCORSで許可するオリジン。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RedisURL は複数インスタンス間でフィードの再計算を伝えるRedisのURL。空ならプロセス内で完結する。
	RedisURL string `mapstructure:"redis_url"`
	// Stream はストリーム配信の設定。
	Stream StreamConfig `mapstructure:"stream"`
	// Housekeeping は既読状態の掃除に関する設定。
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
}

// StreamConfig はストリームループのタイミング設定。
type StreamConfig struct {
	// Tick はループ1周の間隔。切断検知の最大遅延にもなる。
	Tick time.Duration `mapstructure:"tick"`
	// FeedEvery は何Tickごとにフィードを再計算するか。
	FeedEvery int `mapstructure:"feed_every"`
	// SideEvery は何Tickごとに補助チャネル（新着お知らせ・ステータス変更）を確認するか。
	SideEvery int `mapstructure:"side_every"`
	// HeartbeatInterval はheartbeatフレームを送る最大間隔。
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// CollectorTimeout はシグナル収集1件あたりのタイムアウト。
	CollectorTimeout time.Duration `mapstructure:"collector_timeout"`
	// WriteTimeout はフレーム書き込み1回あたりのタイムアウト。
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HousekeepingConfig は既読状態の定期削除の設定。
type HousekeepingConfig struct {
	// PruneSchedule はcron形式の実行スケジュール。空なら定期削除を行わない。
	PruneSchedule string `mapstructure:"prune_schedule"`
	// ReadStateMaxAge はこれより古く、二度と通知されないキーの既読状態を削除する。
	ReadStateMaxAge time.Duration `mapstructure:"read_state_max_age"`
}

// MaxHeartbeatInterval はheartbeat間隔の上限。クライアントはこれを超える無通信を切断とみなし得る。
const MaxHeartbeatInterval = 30 * time.Second

// Default はデフォルト設定を返す。
func Default() *Config {
	return &Config{
		Port:           "8086",
		DatabasePath:   "/data/notification.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate&_time_format=sqlite",
		JWTSecret:      "dev-secret-key",
		AllowedOrigins: []string{"http://localhost:3000"},
		Stream: StreamConfig{
			Tick:              time.Second,
			FeedEvery:         3,
			SideEvery:         1,
			HeartbeatInterval: 30 * time.Second,
			CollectorTimeout:  2 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Housekeeping: HousekeepingConfig{
			PruneSchedule:   "@daily",
			ReadStateMaxAge: 90 * 24 * time.Hour,
		},
	}
}

// Load は設定を読み込む。pathが空またはファイルが存在しない場合は
// デフォルト値と環境変数のみを使う。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GYMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("port", def.Port)
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("jwt_secret", def.JWTSecret)
	v.SetDefault("allowed_origins", def.AllowedOrigins)
	v.SetDefault("redis_url", "")
	v.SetDefault("stream.tick", def.Stream.Tick)
	v.SetDefault("stream.feed_every", def.Stream.FeedEvery)
	v.SetDefault("stream.side_every", def.Stream.SideEvery)
	v.SetDefault("stream.heartbeat_interval", def.Stream.HeartbeatInterval)
	v.SetDefault("stream.collector_timeout", def.Stream.CollectorTimeout)
	v.SetDefault("stream.write_timeout", def.Stream.WriteTimeout)
	v.SetDefault("housekeeping.prune_schedule", def.Housekeeping.PruneSchedule)
	v.SetDefault("housekeeping.read_state_max_age", def.Housekeeping.ReadStateMaxAge)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("portが空です")
	}
	if c.Stream.Tick <= 0 {
		return fmt.Errorf("stream.tickは正の値が必要です: %s", c.Stream.Tick)
	}
	if c.Stream.FeedEvery <= 0 {
		return fmt.Errorf("stream.feed_everyは1以上が必要です: %d", c.Stream.FeedEvery)
	}
	if c.Stream.SideEvery <= 0 {
		return fmt.Errorf("stream.side_everyは1以上が必要です: %d", c.Stream.SideEvery)
	}
	if c.Stream.HeartbeatInterval < c.Stream.Tick {
		return fmt.Errorf("stream.heartbeat_interval(%s)はtick(%s)以上が必要です", c.Stream.HeartbeatInterval, c.Stream.Tick)
	}
	if c.Stream.HeartbeatInterval > MaxHeartbeatInterval {
		return fmt.Errorf("stream.heartbeat_interval(%s)は%s以下が必要です", c.Stream.HeartbeatInterval, MaxHeartbeatInterval)
	}
	return nil
}
