// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"net/http"
	"net/url"
)

// flashCookieName は画面間で通知メッセージを受け渡すCookieの名前。
const flashCookieName = "flash"

// setFlash は次のリクエストで一度だけ表示される通知メッセージを設定する。
// 値はCookieで安全に運べるようURLエンコードする。
func setFlash(w http.ResponseWriter, secure bool, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash は通知メッセージを取り出し、Cookieを削除する。
// メッセージが無い場合は空文字列を返す。
func popFlash(w http.ResponseWriter, r *http.Request, secure bool) string {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})

	message, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return ""
	}
	return message
}
