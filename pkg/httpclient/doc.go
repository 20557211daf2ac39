// Package httpclient は通知APIを呼び出すHTTPクライアントを提供する。
//
// JSON形式のAPI呼び出しとServer-Sent Eventsのストリーム接続を扱い、
// 全リクエストにBearerトークンを付与する。
package httpclient
