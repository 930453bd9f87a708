package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/d2regular/flask-oauth2-example/internal/middleware"
	"github.com/d2regular/flask-oauth2-example/internal/model"
	"github.com/d2regular/flask-oauth2-example/internal/view"
)

// flashAuthenticationFailed はOAuthフロー失敗時にログインページへ表示するメッセージ。
const flashAuthenticationFailed = "Authentication failed."

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	KnownProvider(providerName string) bool
	AuthorizeURL(providerName string) (string, error)
	HandleCallback(ctx context.Context, providerName, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, userID int64) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain   string
	CookieSecure   bool
	SessionMaxAge  int // 通常セッションCookieの有効期間（秒）
	RememberMaxAge int // remember付きセッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	renderer *view.Renderer
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, renderer *view.Renderer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		renderer: renderer,
		config:   config,
	}
}

// LoginPage はログインページを表示する。認証済みユーザーはホームへ転送する。
// GET /authorization
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if h.isAuthenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	flash := popFlash(w, r, h.config.CookieSecure)
	err := h.renderer.RenderAuthorization(w, view.AuthorizationData{
		Flash:     flash,
		LoginPath: "/authorization/vk",
	})
	if err != nil {
		slog.Error("failed to render login page", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// Login は指定プロバイダーのOAuthフローを開始する。
// 未登録のプロバイダーキーは404を返す。認証済みユーザーはホームへ転送する。
// GET /authorization/{provider}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	if !h.service.KnownProvider(providerName) {
		http.NotFound(w, r)
		return
	}

	if h.isAuthenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	url, err := h.service.AuthorizeURL(providerName)
	if err != nil {
		slog.Error("failed to build authorize URL",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// プロバイダーが拒否した場合やトークン交換に失敗した場合は、
// 通知メッセージとともにログインページへ戻す。
// GET /callback/{provider}?code=xxx
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	if !h.service.KnownProvider(providerName) {
		http.NotFound(w, r)
		return
	}

	// 認証済みユーザーはプロバイダーへの問い合わせを行わずホームへ転送する
	if h.isAuthenticated(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	// 1. プロバイダーによる拒否（?error=access_denied等）のチェック
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		slog.Warn("oauth flow denied by provider",
			slog.String("provider", providerName),
			slog.String("error", errParam),
		)
		h.failLogin(w, r)
		return
	}

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		h.failLogin(w, r)
		return
	}

	// 3. 認証処理（トークン交換→プロフィール取得→ユーザー保存→セッション発行）
	session, err := h.service.HandleCallback(r.Context(), providerName, code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("provider", providerName),
			slog.String("error", err.Error()),
		)
		h.failLogin(w, r)
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	h.setSessionCookie(w, session)

	http.Redirect(w, r, "/", http.StatusFound)
}

// Logout はセッションを破棄し、ログインページへ転送する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := h.service.Logout(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, "/authorization", http.StatusFound)
}

// failLogin は通知メッセージを設定してログインページへ戻す。
func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request) {
	setFlash(w, h.config.CookieSecure, flashAuthenticationFailed)
	http.Redirect(w, r, "/authorization", http.StatusFound)
}

// isAuthenticated はリクエストのCookieが有効なセッションを指しているかを返す。
func (h *AuthHandler) isAuthenticated(r *http.Request) bool {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	return err == nil && user != nil
}

// setSessionCookie はセッションCookieを設定する。
// 有効期間はセッションのremember属性に応じて切り替える。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	maxAge := h.config.SessionMaxAge
	if session.Remember {
		maxAge = h.config.RememberMaxAge
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
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
}
