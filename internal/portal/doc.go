// Package portal は会員管理ポータルのドメインデータを読み取り専用で提供する。
//
// 会員・支払い・出席・お知らせ・設備の各表は各CRUD画面が所有しており、
// 通知サービスはこのパッケージを通して参照するだけで書き込みは行わない。
package portal
