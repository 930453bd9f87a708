// Package model はドメインモデルを定義する。
package model

import "time"

// User はVK OAuthでサインインしたユーザーのアイデンティティレコードを表す。
// SocialIDはプロバイダー側のユーザーIDで、一度設定されたら変更されない。
// AccessTokenは再ログインのたびに上書きされる。
type User struct {
	ID          int64
	SocialID    string
	Username    string
	AccessToken string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session はユーザーのログインセッションを表す。
// Rememberがtrueの場合はブラウザを閉じても有効な長期セッションとして扱う。
type Session struct {
	ID        string
	UserID    int64
	Remember  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Friend はホーム画面に表示する友達1件を表す。
// 永続化されない表示専用のレコードで、ホーム画面の表示ごとに作り直される。
type Friend struct {
	Username string
	Link     string
}
