// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService はVK APIから取得した表示名（first_name/last_name等）を
// サニタイズし、プロバイダー由来のテキストに紛れ込んだマークアップから
// ユーザーを保護する。bluemondayの許可リストベースのポリシーを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService はプロバイダー由来の表示名のサニタイズ機能のインターフェースを定義する。
// プロフィール取得時と友達一覧のマッピング時に使用される。
type NameSanitizerService interface {
	// Sanitize は表示名からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 出力はエンティティエスケープされていないプレーンテキスト。
	// 前後の空白も除去する。空文字列の入力には空文字列を返す。
	Sanitize(name string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// 表示名にマークアップが含まれる正当なケースは存在しないため、
// 要素を一切許可しないStrictPolicyを使用する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からすべてのHTMLタグを除去したプレーンテキストを返す。
// bluemondayは出力をHTMLエンティティでエスケープするため、アンエスケープして
// プレーンテキストに戻す。O'Brien のような名前がエンティティ化されたまま
// 保存・表示されるのを防ぐ（表示時のエスケープはテンプレート側で行う）。
func (s *nameSanitizer) Sanitize(name string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(name)))
}
