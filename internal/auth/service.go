// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/d2regular/flask-oauth2-example/internal/model"
	"github.com/d2regular/flask-oauth2-example/internal/repository"
	"github.com/d2regular/flask-oauth2-example/internal/security"
)

// Token はトークン交換の結果を表す。
// SocialIDはプロバイダー側のユーザーIDの文字列表現。
type Token struct {
	AccessToken string
	SocialID    string
}

// Profile はプロバイダーから取得した基本プロフィールを表す。
type Profile struct {
	FirstName string
	LastName  string
}

// Provider はOAuth認証プロバイダーのインターフェース。
// プロバイダーごとの実装をRegistryに登録することで、
// ルートロジックに手を入れずにプロバイダーを追加できる。
type Provider interface {
	// Name はプロバイダーキー（例: "vk"）を返す。
	Name() string
	// AuthorizeURL はプロバイダーの認可エンドポイントURLを生成する。
	AuthorizeURL() string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, code string) (*Token, error)
	// FetchProfile はアクセストークンで基本プロフィールを取得する。
	FetchProfile(ctx context.Context, socialID, accessToken string) (*Profile, error)
}

// Registry はプロバイダーキーからProviderを引く参照表。
type Registry map[string]Provider

// NewRegistry は渡されたプロバイダーをName()キーで登録したRegistryを生成する。
func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// Lookup は指定キーのプロバイダーを返す。キーは小文字化して照合する。
// 未登録の場合はErrUnknownProviderを返す。
func (r Registry) Lookup(name string) (Provider, error) {
	p, ok := r[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// MetricsRecorder は認証サービスが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordLoginSuccess(provider string)
	RecordLoginFailure(provider string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int // 通常セッションの有効期間（秒）
	RememberMaxAge int // remember付きセッションの有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers   Registry
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	sanitizer   security.NameSanitizerService
	metrics     MetricsRecorder
	config      ServiceConfig
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(
	providers Registry,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	sanitizer security.NameSanitizerService,
	metrics MetricsRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		providers:   providers,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		metrics:     metrics,
		config:      config,
	}
}

// AuthorizeURL は指定プロバイダーの認可URLを生成する。
// 未登録のプロバイダーキーの場合はErrUnknownProviderを返す。
func (s *Service) AuthorizeURL(providerName string) (string, error) {
	p, err := s.providers.Lookup(providerName)
	if err != nil {
		return "", err
	}
	return p.AuthorizeURL(), nil
}

// KnownProvider は指定キーのプロバイダーが登録済みかどうかを返す。
func (s *Service) KnownProvider(providerName string) bool {
	_, err := s.providers.Lookup(providerName)
	return err == nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// トークン交換→プロフィール取得→upsertの順で実行し、途中で失敗した場合は
// 何も永続化しない。初回ログインではsocial_idをキーにレコードを作成し、
// 再ログインではaccess_tokenのみを更新する（usernameは初回の値を保持）。
func (s *Service) HandleCallback(ctx context.Context, providerName, code string) (*model.Session, error) {
	p, err := s.providers.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	// 1. 認可コードをアクセストークンに交換
	token, err := p.ExchangeCode(ctx, code)
	if err != nil {
		s.recordLoginFailure(p.Name())
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. 基本プロフィールを取得（交換が成功してからのみ実行する）
	profile, err := p.FetchProfile(ctx, token.SocialID, token.AccessToken)
	if err != nil {
		s.recordLoginFailure(p.Name())
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	// 3. プロバイダー由来の表示名をサニタイズしてusernameを組み立てる
	username := s.sanitizer.Sanitize(profile.FirstName) + " " + s.sanitizer.Sanitize(profile.LastName)

	// 4. social_idをキーにアイデンティティをupsertする
	user, err := s.userRepo.Upsert(ctx, token.SocialID, username, token.AccessToken)
	if err != nil {
		s.recordLoginFailure(p.Name())
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	// 5. セッションを発行（常にremember付き）
	session, err := s.Login(ctx, user, true)
	if err != nil {
		s.recordLoginFailure(p.Name())
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.recordLoginSuccess(p.Name())
	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("provider", p.Name()),
	)

	return session, nil
}

// Login はユーザーのセッションを作成し永続化する。
// remember=trueの場合は長期セッションとして発行する。
func (s *Service) Login(ctx context.Context, user *model.User, remember bool) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	maxAge := s.config.SessionMaxAge
	if remember {
		maxAge = s.config.RememberMaxAge
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    user.ID,
		Remember:  remember,
		ExpiresAt: time.Now().Add(time.Duration(maxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// LogoutAll は指定ユーザーのすべてのセッションを削除する。
// アクセストークンの失効を検知した場合など、ユーザーの全デバイスを
// まとめてログアウトさせる必要がある場面で使用する。
func (s *Service) LogoutAll(ctx context.Context, userID int64) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	slog.Info("all sessions revoked", slog.Int64("user_id", userID))
	return nil
}

// GetCurrentUser はセッションIDから現在のユーザーを取得する。
// セッションが無効・期限切れ、またはユーザーが存在しない場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

func (s *Service) recordLoginSuccess(provider string) {
	if s.metrics != nil {
		s.metrics.RecordLoginSuccess(provider)
	}
}

func (s *Service) recordLoginFailure(provider string) {
	if s.metrics != nil {
		s.metrics.RecordLoginFailure(provider)
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
