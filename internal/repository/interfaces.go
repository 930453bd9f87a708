// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/d2regular/flask-oauth2-example/internal/model"
)

// UserRepository はユーザーアイデンティティの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindBySocialID はプロバイダー側のユーザーIDでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindBySocialID(ctx context.Context, socialID string) (*model.User, error)

	// Upsert はsocial_idをキーにユーザーを作成または更新する。
	// 既存レコードがある場合はaccess_tokenのみを上書きし、usernameは変更しない。
	// social_idのUNIQUE制約と単一のINSERT ... ON CONFLICT文により、
	// 同一アカウントの同時ログインでも重複レコードは発生しない。
	Upsert(ctx context.Context, socialID, username, accessToken string) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
