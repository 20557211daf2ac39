// Package event は通知ストリームのワイヤプロトコルを定義する。
//
// サーバーからクライアントへ流れるServer-Sent Eventsのフレーム種別、
// 各フレームのJSONペイロード、およびフレームのエンコード・デコードを提供する。
// 通知サービス（送信側）とストリームクライアント（受信側）の両方がこのパッケージを共有する。
package event
