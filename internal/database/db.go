package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// 小規模なWebアプリのための接続プール設定。
// OAuthコールバックとホームページ表示が主なクエリ発行元のため、
// 同時接続数は控えめに抑える。
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Open はPostgreSQLへの接続プールを初期化する。
// databaseURLには "postgres://oauthapp:secret@db:5432/oauthapp?sslmode=disable"
// 形式の接続URLを渡す。sql.Openはこの時点では接続を張らないので、
// 起動時の疎通確認は呼び出し側でPingを実行すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}
