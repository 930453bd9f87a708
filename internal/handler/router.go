package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/d2regular/flask-oauth2-example/internal/middleware"
	"github.com/d2regular/flask-oauth2-example/internal/view"
)

// Pinger はヘルスチェックに必要なデータベース接続確認のインターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder  middleware.SessionFinder
	RateLimiter    *middleware.RateLimiter
	Logger         *slog.Logger
	StatusRecorder middleware.StatusRecorder // nil可

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ホームページ
	UserFinder    UserFinder
	FriendFetcher FriendFetcher

	// 描画
	Renderer *view.Renderer

	// 運用エンドポイント
	DB             Pinger
	MetricsHandler http.Handler
}

// NewRouter は全ルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders
//
// 認可フロー（/authorization/*, /callback/*）はIP単位のレート制限、
// 認証済み画面はSession → ユーザー単位のレート制限を追加で通す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.Renderer, deps.AuthConfig)
	homeHandler := NewHomeHandler(deps.UserFinder, deps.FriendFetcher, deps.AuthService, deps.Renderer, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/authorization", authHandler.LoginPage)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthFlowMiddleware())
		r.Get("/authorization/{provider}", authHandler.Login)
		r.Get("/callback/{provider}", authHandler.Callback)
	})
	r.Get("/logout", authHandler.Logout)

	// 運用エンドポイント
	r.Get("/health", newHealthHandler(deps.DB))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, "/authorization"))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", homeHandler.Index)
		r.Get("/index", homeHandler.Index)
	})

	return r
}

// newHealthHandler はデータベース接続を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("healthcheck failed", slog.String("error", err.Error()))
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}
