package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/d2regular/flask-oauth2-example/internal/model"
	"github.com/d2regular/flask-oauth2-example/internal/repository"
)

// --- モック定義 ---

type mockProvider struct {
	name             string
	authorizeURL     string
	exchangeCodeFunc func(ctx context.Context, code string) (*Token, error)
	fetchProfileFunc func(ctx context.Context, socialID, accessToken string) (*Profile, error)
	exchangeCalls    int
	fetchCalls       int
}

func (m *mockProvider) Name() string         { return m.name }
func (m *mockProvider) AuthorizeURL() string { return m.authorizeURL }

func (m *mockProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	m.exchangeCalls++
	return m.exchangeCodeFunc(ctx, code)
}

func (m *mockProvider) FetchProfile(ctx context.Context, socialID, accessToken string) (*Profile, error) {
	m.fetchCalls++
	return m.fetchProfileFunc(ctx, socialID, accessToken)
}

type mockUserRepo struct {
	findByIDFunc       func(ctx context.Context, id int64) (*model.User, error)
	findBySocialIDFunc func(ctx context.Context, socialID string) (*model.User, error)
	upsertFunc         func(ctx context.Context, socialID, username, accessToken string) (*model.User, error)
	upsertCalls        int
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockUserRepo) FindBySocialID(ctx context.Context, socialID string) (*model.User, error) {
	return m.findBySocialIDFunc(ctx, socialID)
}

func (m *mockUserRepo) Upsert(ctx context.Context, socialID, username, accessToken string) (*model.User, error) {
	m.upsertCalls++
	return m.upsertFunc(ctx, socialID, username, accessToken)
}

type mockSessionRepo struct {
	createFunc         func(ctx context.Context, session *model.Session) error
	findByIDFunc       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFunc     func(ctx context.Context, id string) error
	deleteByUserIDFunc func(ctx context.Context, userID int64) error
	deleteExpiredFunc  func(ctx context.Context) (int64, error)
	createCalls        int
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	m.createCalls++
	return m.createFunc(ctx, session)
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.findByIDFunc(ctx, id)
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFunc(ctx, id)
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	return m.deleteByUserIDFunc(ctx, userID)
}

func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return m.deleteExpiredFunc(ctx)
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(name string) string { return strings.TrimSpace(name) }

type mockMetrics struct {
	successes []string
	failures  []string
}

func (m *mockMetrics) RecordLoginSuccess(provider string) { m.successes = append(m.successes, provider) }
func (m *mockMetrics) RecordLoginFailure(provider string) { m.failures = append(m.failures, provider) }

// コンパイル時のインターフェース実装チェック
var (
	_ Provider                     = (*mockProvider)(nil)
	_ repository.UserRepository    = (*mockUserRepo)(nil)
	_ repository.SessionRepository = (*mockSessionRepo)(nil)
	_ MetricsRecorder              = (*mockMetrics)(nil)
)

func newTestService(p Provider, userRepo repository.UserRepository, sessionRepo repository.SessionRepository, metrics MetricsRecorder) *Service {
	return NewService(
		NewRegistry(p),
		userRepo,
		sessionRepo,
		passthroughSanitizer{},
		metrics,
		ServiceConfig{SessionMaxAge: 86400, RememberMaxAge: 30 * 86400},
	)
}

// --- Registry ---

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry(&mockProvider{name: "vk"})

	t.Run("registered provider", func(t *testing.T) {
		p, err := registry.Lookup("vk")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if p.Name() != "vk" {
			t.Errorf("Name() = %q, want %q", p.Name(), "vk")
		}
	})

	t.Run("case insensitive", func(t *testing.T) {
		if _, err := registry.Lookup("VK"); err != nil {
			t.Errorf("Lookup(VK) error = %v", err)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := registry.Lookup("github")
		if !errors.Is(err, ErrUnknownProvider) {
			t.Errorf("expected ErrUnknownProvider, got %v", err)
		}
	})
}

// --- HandleCallback ---

func TestService_HandleCallback_NewUser_CreatesSessionAndRecord(t *testing.T) {
	provider := &mockProvider{
		name: "vk",
		exchangeCodeFunc: func(ctx context.Context, code string) (*Token, error) {
			if code != "auth-code" {
				t.Errorf("code = %q, want %q", code, "auth-code")
			}
			return &Token{AccessToken: "tok-1", SocialID: "100200"}, nil
		},
		fetchProfileFunc: func(ctx context.Context, socialID, accessToken string) (*Profile, error) {
			if socialID != "100200" || accessToken != "tok-1" {
				t.Errorf("FetchProfile(%q, %q), want (100200, tok-1)", socialID, accessToken)
			}
			return &Profile{FirstName: "Ivan", LastName: "Petrov"}, nil
		},
	}

	userRepo := &mockUserRepo{
		upsertFunc: func(ctx context.Context, socialID, username, accessToken string) (*model.User, error) {
			if socialID != "100200" {
				t.Errorf("socialID = %q, want %q", socialID, "100200")
			}
			if username != "Ivan Petrov" {
				t.Errorf("username = %q, want %q", username, "Ivan Petrov")
			}
			if accessToken != "tok-1" {
				t.Errorf("accessToken = %q, want %q", accessToken, "tok-1")
			}
			return &model.User{ID: 1, SocialID: socialID, Username: username, AccessToken: accessToken}, nil
		},
	}

	var created *model.Session
	sessionRepo := &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error {
			created = session
			return nil
		},
	}

	metrics := &mockMetrics{}
	service := newTestService(provider, userRepo, sessionRepo, metrics)

	session, err := service.HandleCallback(context.Background(), "vk", "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}

	if session.UserID != 1 {
		t.Errorf("UserID = %d, want 1", session.UserID)
	}
	if !session.Remember {
		t.Error("OAuthログイン後のセッションはremember付きであるべき")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64 hex chars", len(session.ID))
	}
	if created == nil || created.ID != session.ID {
		t.Error("session should be persisted via repository")
	}
	if len(metrics.successes) != 1 || metrics.successes[0] != "vk" {
		t.Errorf("successes = %v, want [vk]", metrics.successes)
	}
}

func TestService_HandleCallback_ExchangeError_NoMutation(t *testing.T) {
	provider := &mockProvider{
		name: "vk",
		exchangeCodeFunc: func(ctx context.Context, code string) (*Token, error) {
			return nil, NewOAuthError("exchange_code", errors.New("invalid_grant"))
		},
		fetchProfileFunc: func(ctx context.Context, socialID, accessToken string) (*Profile, error) {
			t.Fatal("FetchProfile should not be called after exchange failure")
			return nil, nil
		},
	}
	userRepo := &mockUserRepo{
		upsertFunc: func(ctx context.Context, socialID, username, accessToken string) (*model.User, error) {
			t.Fatal("Upsert should not be called after exchange failure")
			return nil, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error {
			t.Fatal("Create should not be called after exchange failure")
			return nil
		},
	}

	metrics := &mockMetrics{}
	service := newTestService(provider, userRepo, sessionRepo, metrics)

	_, err := service.HandleCallback(context.Background(), "vk", "bad-code")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsOAuthError(err) {
		t.Errorf("expected wrapped OAuthError, got %v", err)
	}
	if userRepo.upsertCalls != 0 {
		t.Errorf("upsertCalls = %d, want 0", userRepo.upsertCalls)
	}
	if sessionRepo.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", sessionRepo.createCalls)
	}
	if len(metrics.failures) != 1 {
		t.Errorf("failures = %v, want one entry", metrics.failures)
	}
}

func TestService_HandleCallback_ProfileError_NoUpsert(t *testing.T) {
	provider := &mockProvider{
		name: "vk",
		exchangeCodeFunc: func(ctx context.Context, code string) (*Token, error) {
			return &Token{AccessToken: "tok", SocialID: "100200"}, nil
		},
		fetchProfileFunc: func(ctx context.Context, socialID, accessToken string) (*Profile, error) {
			return nil, NewOAuthError("fetch_profile", errors.New("authorization failed"))
		},
	}
	userRepo := &mockUserRepo{
		upsertFunc: func(ctx context.Context, socialID, username, accessToken string) (*model.User, error) {
			t.Fatal("Upsert should not be called after profile failure")
			return nil, nil
		},
	}
	sessionRepo := &mockSessionRepo{}

	service := newTestService(provider, userRepo, sessionRepo, nil)

	_, err := service.HandleCallback(context.Background(), "vk", "code")
	if err == nil {
		t.Fatal("expected error")
	}
	if userRepo.upsertCalls != 0 {
		t.Errorf("upsertCalls = %d, want 0", userRepo.upsertCalls)
	}
}

func TestService_HandleCallback_UnknownProvider(t *testing.T) {
	provider := &mockProvider{
		name: "vk",
		exchangeCodeFunc: func(ctx context.Context, code string) (*Token, error) {
			t.Fatal("ExchangeCode should not be called for unknown provider")
			return nil, nil
		},
	}
	service := newTestService(provider, &mockUserRepo{}, &mockSessionRepo{}, nil)

	_, err := service.HandleCallback(context.Background(), "github", "code")
	if !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
	if provider.exchangeCalls != 0 {
		t.Errorf("exchangeCalls = %d, want 0", provider.exchangeCalls)
	}
}

func TestService_HandleCallback_SanitizesDisplayName(t *testing.T) {
	provider := &mockProvider{
		name: "vk",
		exchangeCodeFunc: func(ctx context.Context, code string) (*Token, error) {
			return &Token{AccessToken: "tok", SocialID: "1"}, nil
		},
		fetchProfileFunc: func(ctx context.Context, socialID, accessToken string) (*Profile, error) {
			return &Profile{FirstName: "  Ivan ", LastName: " Petrov  "}, nil
		},
	}

	var gotUsername string
	userRepo := &mockUserRepo{
		upsertFunc: func(ctx context.Context, socialID, username, accessToken string) (*model.User, error) {
			gotUsername = username
			return &model.User{ID: 1, SocialID: socialID, Username: username, AccessToken: accessToken}, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error { return nil },
	}

	service := newTestService(provider, userRepo, sessionRepo, nil)

	if _, err := service.HandleCallback(context.Background(), "vk", "code"); err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if gotUsername != "Ivan Petrov" {
		t.Errorf("username = %q, want sanitized %q", gotUsername, "Ivan Petrov")
	}
}

// --- AuthorizeURL / KnownProvider ---

func TestService_AuthorizeURL(t *testing.T) {
	provider := &mockProvider{name: "vk", authorizeURL: "https://oauth.vk.com/authorize?client_id=1"}
	service := newTestService(provider, &mockUserRepo{}, &mockSessionRepo{}, nil)

	url, err := service.AuthorizeURL("vk")
	if err != nil {
		t.Fatalf("AuthorizeURL() error = %v", err)
	}
	if url != provider.authorizeURL {
		t.Errorf("url = %q, want %q", url, provider.authorizeURL)
	}

	if _, err := service.AuthorizeURL("github"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestService_KnownProvider(t *testing.T) {
	service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, &mockSessionRepo{}, nil)

	if !service.KnownProvider("vk") {
		t.Error("KnownProvider(vk) = false, want true")
	}
	if service.KnownProvider("github") {
		t.Error("KnownProvider(github) = true, want false")
	}
}

// --- Login / Logout / GetCurrentUser ---

func TestService_Login_MaxAgeByRemember(t *testing.T) {
	tests := []struct {
		name        string
		remember    bool
		wantSeconds float64
	}{
		{"remember session", true, 30 * 86400},
		{"regular session", false, 86400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created *model.Session
			sessionRepo := &mockSessionRepo{
				createFunc: func(ctx context.Context, session *model.Session) error {
					created = session
					return nil
				},
			}
			service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, sessionRepo, nil)

			session, err := service.Login(context.Background(), &model.User{ID: 7}, tt.remember)
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}

			lifetime := session.ExpiresAt.Sub(session.CreatedAt).Seconds()
			if lifetime < tt.wantSeconds-5 || lifetime > tt.wantSeconds+5 {
				t.Errorf("session lifetime = %.0fs, want ~%.0fs", lifetime, tt.wantSeconds)
			}
			if created == nil {
				t.Fatal("session should be persisted")
			}
			if session.Remember != tt.remember {
				t.Errorf("Remember = %v, want %v", session.Remember, tt.remember)
			}
		})
	}
}

func TestService_Login_UniqueSessionIDs(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		createFunc: func(ctx context.Context, session *model.Session) error { return nil },
	}
	service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, sessionRepo, nil)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		session, err := service.Login(context.Background(), &model.User{ID: 1}, false)
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if seen[session.ID] {
			t.Fatalf("duplicate session ID generated: %s", session.ID)
		}
		seen[session.ID] = true
	}
}

func TestService_Logout(t *testing.T) {
	t.Run("deletes session", func(t *testing.T) {
		var deletedID string
		sessionRepo := &mockSessionRepo{
			deleteByIDFunc: func(ctx context.Context, id string) error {
				deletedID = id
				return nil
			},
		}
		service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, sessionRepo, nil)

		if err := service.Logout(context.Background(), "sess-1"); err != nil {
			t.Fatalf("Logout() error = %v", err)
		}
		if deletedID != "sess-1" {
			t.Errorf("deletedID = %q, want %q", deletedID, "sess-1")
		}
	})

	t.Run("empty session ID", func(t *testing.T) {
		service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, &mockSessionRepo{}, nil)
		if err := service.Logout(context.Background(), ""); err == nil {
			t.Error("expected error for empty session ID")
		}
	})
}

func TestService_LogoutAll(t *testing.T) {
	t.Run("deletes all user sessions", func(t *testing.T) {
		var deletedUserID int64
		sessionRepo := &mockSessionRepo{
			deleteByUserIDFunc: func(ctx context.Context, userID int64) error {
				deletedUserID = userID
				return nil
			},
		}
		service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, sessionRepo, nil)

		if err := service.LogoutAll(context.Background(), 7); err != nil {
			t.Fatalf("LogoutAll() error = %v", err)
		}
		if deletedUserID != 7 {
			t.Errorf("deletedUserID = %d, want 7", deletedUserID)
		}
	})

	t.Run("store error", func(t *testing.T) {
		sessionRepo := &mockSessionRepo{
			deleteByUserIDFunc: func(ctx context.Context, userID int64) error {
				return errors.New("connection refused")
			},
		}
		service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, sessionRepo, nil)

		if err := service.LogoutAll(context.Background(), 7); err == nil {
			t.Error("expected error when session deletion fails")
		}
	})
}

func TestService_GetCurrentUser(t *testing.T) {
	user := &model.User{ID: 7, SocialID: "100200", Username: "Ivan Petrov"}

	t.Run("valid session", func(t *testing.T) {
		sessionRepo := &mockSessionRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
				return &model.Session{ID: id, UserID: 7}, nil
			},
		}
		userRepo := &mockUserRepo{
			findByIDFunc: func(ctx context.Context, id int64) (*model.User, error) {
				if id != 7 {
					t.Errorf("FindByID(%d), want 7", id)
				}
				return user, nil
			},
		}
		service := newTestService(&mockProvider{name: "vk"}, userRepo, sessionRepo, nil)

		got, err := service.GetCurrentUser(context.Background(), "sess-1")
		if err != nil {
			t.Fatalf("GetCurrentUser() error = %v", err)
		}
		if got == nil || got.ID != 7 {
			t.Errorf("got = %+v, want user ID 7", got)
		}
	})

	t.Run("empty session ID", func(t *testing.T) {
		service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, &mockSessionRepo{}, nil)
		got, err := service.GetCurrentUser(context.Background(), "")
		if err != nil {
			t.Fatalf("GetCurrentUser() error = %v", err)
		}
		if got != nil {
			t.Errorf("got = %+v, want nil", got)
		}
	})

	t.Run("expired or missing session", func(t *testing.T) {
		sessionRepo := &mockSessionRepo{
			findByIDFunc: func(ctx context.Context, id string) (*model.Session, error) {
				return nil, nil
			},
		}
		service := newTestService(&mockProvider{name: "vk"}, &mockUserRepo{}, sessionRepo, nil)

		got, err := service.GetCurrentUser(context.Background(), "gone")
		if err != nil {
			t.Fatalf("GetCurrentUser() error = %v", err)
		}
		if got != nil {
			t.Errorf("got = %+v, want nil", got)
		}
	})
}
