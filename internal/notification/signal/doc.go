// Package signal は会員の状態から通知候補を検出するシグナル群とランキングを提供する。
//
// 各シグナルはCollectorインターフェースの実装であり、Subject（ユーザーIDと基準時刻）を
// 受け取って0件以上のCandidateを返す。シグナルの集合は All で列挙される閉じた集合で、
// シグナルを追加する場合は実装を1つ足して All に登録するだけでよい。
//
// Collect は全シグナルを並行に実行し、個々のシグナルの失敗やタイムアウトを
// 空の結果として扱う。1つのシグナルの障害が他のシグナルを妨げることはない。
package signal
