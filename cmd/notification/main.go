// 通知サービスのエントリポイント。
// 会員データから通知フィードを算出し、ポーリングAPIとServer-Sent Eventsで配信する。
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/nao1215/gymhub/internal/config"
	"github.com/nao1215/gymhub/internal/notification"
)

// service はserveが起動・終了するサーバー。
type service interface {
	Run() error
	Close() error
}

func main() {
	cfg, err := config.Load(os.Getenv("GYMHUB_CONFIG"))
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	server, err := notification.NewServer(cfg)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", cfg.Port)
	if err := serve(server); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
}

// serve はsを起動し、終了時には成否に関わらずsを閉じる。
func serve(s service) error {
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			log.Printf("通知サーバーの終了処理に失敗: %v", closeErr)
		}
	}()

	if err := s.Run(); err != nil {
		return fmt.Errorf("通知サービスの起動に失敗: %w", err)
	}
	return nil
}
