package auth

import (
	"errors"
	"fmt"
)

// OAuthError はOAuthフロー全体の失敗を表す単一のエラー種別。
// 認可拒否、通信失敗、非成功ステータス、プロバイダーのエラー応答、
// 期待フィールドの欠落・不正はすべてこのエラーに集約され、
// 呼び出し側が生のトランスポートエラーやパースエラーを見ることはない。
// ルート境界ではフラッシュメッセージ＋リダイレクトとして回復される。
type OAuthError struct {
	Op  string // 失敗した操作: "authorize", "exchange_code", "fetch_profile", "fetch_friends"
	Err error  // 元になったエラー（省略可）
}

// Error はerrorインターフェースを実装する。
func (e *OAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("oauth %s failed", e.Op)
}

// Unwrap は元になったエラーを返す。
func (e *OAuthError) Unwrap() error { return e.Err }

// NewOAuthError はOAuthErrorを生成する。
func NewOAuthError(op string, err error) *OAuthError {
	return &OAuthError{Op: op, Err: err}
}

// IsOAuthError はエラーチェーンにOAuthErrorが含まれるかを判定する。
func IsOAuthError(err error) bool {
	var oe *OAuthError
	return errors.As(err, &oe)
}

// ErrUnknownProvider は設定されていないプロバイダーキーが指定されたことを表す。
// ルート境界ではHTTP 404にマップされる。
var ErrUnknownProvider = errors.New("unknown oauth provider")
