// Package streamclient は通知ストリームのクライアントを提供する。
//
// Server-Sent Eventsで受け取ったフレームからローカルの通知一覧と未読数を保持し、
// 既読化・一括既読化・ローカルでの全消去を行う。ストリームに接続できない場合は
// 一定回数の再試行の後にポーリングへ切り替える。ストリームの状態に関わらず
// 定期的にポーリングで最新のフィードを取得し、取りこぼしを補う。
package streamclient
