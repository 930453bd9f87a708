package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/d2regular/flask-oauth2-example/internal/middleware"
	"github.com/d2regular/flask-oauth2-example/internal/model"
	"github.com/d2regular/flask-oauth2-example/internal/view"
)

// flashAuthorizationFailed は友達取得失敗時にログインページへ表示するメッセージ。
const flashAuthorizationFailed = "Authorization failed."

// UserFinder はホームハンドラーが必要とするユーザー検索インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// FriendFetcher は友達一覧の取得インターフェース。
type FriendFetcher interface {
	FetchFriends(ctx context.Context, socialID, accessToken string) ([]model.Friend, error)
}

// SessionRevoker はセッションの破棄インターフェース。
// トークン失効時の強制ログアウトでは、失効したトークンを参照する
// セッションをすべて無効化するため、ユーザー単位で破棄する。
type SessionRevoker interface {
	LogoutAll(ctx context.Context, userID int64) error
}

// HomeHandler は認証済みユーザー向けのホームページハンドラー。
type HomeHandler struct {
	users    UserFinder
	friends  FriendFetcher
	sessions SessionRevoker
	renderer *view.Renderer
	config   AuthHandlerConfig
}

// NewHomeHandler はHomeHandlerを生成する。
func NewHomeHandler(users UserFinder, friends FriendFetcher, sessions SessionRevoker, renderer *view.Renderer, config AuthHandlerConfig) *HomeHandler {
	return &HomeHandler{
		users:    users,
		friends:  friends,
		sessions: sessions,
		renderer: renderer,
		config:   config,
	}
}

// Index はホームページを表示する。保存済みのアクセストークンで
// 友達一覧をその場で取得する。トークン失効を含む取得失敗時は
// セッションを破棄し、通知メッセージとともにログインページへ戻す。
// GET / および GET /index（SessionMiddlewareの後に配置）
func (h *HomeHandler) Index(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/authorization", http.StatusFound)
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		slog.Error("failed to find user",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		// セッションは有効だがユーザーレコードが消えている場合
		h.forceLogout(w, r, userID)
		return
	}

	friends, err := h.friends.FetchFriends(r.Context(), user.SocialID, user.AccessToken)
	if err != nil {
		slog.Warn("failed to fetch friends",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		h.forceLogout(w, r, userID)
		return
	}

	err = h.renderer.RenderIndex(w, view.IndexData{
		Username: user.Username,
		Friends:  friends,
	})
	if err != nil {
		slog.Error("failed to render home page", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// forceLogout はユーザーの全セッションを破棄し、通知メッセージとともに
// ログインページへ戻す。
func (h *HomeHandler) forceLogout(w http.ResponseWriter, r *http.Request, userID int64) {
	if err := h.sessions.LogoutAll(r.Context(), userID); err != nil {
		slog.Error("failed to revoke sessions", slog.Int64("user_id", userID), slog.String("error", err.Error()))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	setFlash(w, h.config.CookieSecure, flashAuthorizationFailed)
	http.Redirect(w, r, "/authorization", http.StatusFound)
}
