// Package notification はジム会員ポータルの通知サービスを提供する。
//
// 会員データから通知候補を算出してランキングし、ユーザーごとの既読状態を
// 除外したフィードをポーリングAPIとServer-Sent Eventsで配信する。
// 既読状態の更新、古い既読状態の定期削除、同一ユーザーのストリームへの
// 無効化通知もこのパッケージが担う。
package notification
