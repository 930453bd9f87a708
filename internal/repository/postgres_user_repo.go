package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/d2regular/flask-oauth2-example/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, social_id, username, access_token, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.SocialID, &user.Username, &user.AccessToken, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}

// FindBySocialID はプロバイダー側のユーザーIDでユーザーを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindBySocialID(ctx context.Context, socialID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, social_id, username, access_token, created_at, updated_at
		 FROM users WHERE social_id = $1`,
		socialID,
	).Scan(&user.ID, &user.SocialID, &user.Username, &user.AccessToken, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by social ID: %w", err)
	}

	return user, nil
}

// Upsert はsocial_idをキーにユーザーを作成または更新する。
// 単一のINSERT ... ON CONFLICT文で実行するため、存在チェックと作成の間に
// 競合ウィンドウはない。既存レコードに対してはaccess_tokenのみを上書きし、
// usernameは初回作成時の値を保持する。
func (r *PostgresUserRepo) Upsert(ctx context.Context, socialID, username, accessToken string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (social_id, username, access_token)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (social_id)
		 DO UPDATE SET access_token = EXCLUDED.access_token, updated_at = now()
		 RETURNING id, social_id, username, access_token, created_at, updated_at`,
		socialID, username, accessToken,
	).Scan(&user.ID, &user.SocialID, &user.Username, &user.AccessToken, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
