package streamclient

import (
	"context"
	"errors"
	"io"

	"github.com/nao1215/gymhub/pkg/event"
	"github.com/nao1215/gymhub/pkg/httpclient"
)

// 通知APIのパス。
const (
	pathNotifications = "/api/v1/notifications"
	pathStream        = "/api/v1/notifications/stream"
	pathMarkRead      = "/api/v1/notifications/read"
)

// API はクライアントが使う通知APIの操作。
type API interface {
	// Poll は現在のフィードを取得する。
	Poll(ctx context.Context) (*event.PollResponse, error)
	// MarkRead はkeyを既読にする。
	MarkRead(ctx context.Context, key string) error
	// OpenStream はストリーム接続を開く。
	OpenStream(ctx context.Context) (io.ReadCloser, error)
}

// HTTPAPI はhttpclient.Clientで通知APIを呼び出すAPI実装。
type HTTPAPI struct {
	client *httpclient.Client
}

// NewHTTPAPI は新しいHTTPAPIを生成する。
func NewHTTPAPI(client *httpclient.Client) *HTTPAPI {
	return &HTTPAPI{client: client}
}

// Poll は現在のフィードを取得する。
func (a *HTTPAPI) Poll(ctx context.Context) (*event.PollResponse, error) {
	var resp event.PollResponse
	if err := a.client.GetJSON(ctx, pathNotifications, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, errors.New("フィードの取得に失敗しました")
	}
	return &resp, nil
}

// MarkRead はkeyを既読にする。
func (a *HTTPAPI) MarkRead(ctx context.Context, key string) error {
	var resp event.MarkReadResponse
	if err := a.client.PostJSON(ctx, pathMarkRead, event.MarkReadRequest{NotificationID: key}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("既読化に失敗しました")
	}
	return nil
}

// OpenStream はストリーム接続を開く。
func (a *HTTPAPI) OpenStream(ctx context.Context) (io.ReadCloser, error) {
	return a.client.OpenStream(ctx, pathStream)
}
