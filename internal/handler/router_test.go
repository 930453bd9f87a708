package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/d2regular/flask-oauth2-example/internal/middleware"
	"github.com/d2regular/flask-oauth2-example/internal/model"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error { return m.err }

func newTestRouter(t *testing.T, sessionFinder middleware.SessionFinder, pinger Pinger) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	if sessionFinder == nil {
		sessionFinder = &nilSessionFinder{}
	}
	if pinger == nil {
		pinger = &mockPinger{}
	}

	return NewRouter(&RouterDeps{
		SessionFinder: sessionFinder,
		RateLimiter:   rl,
		Logger:        slog.Default(),
		AuthService:   &mockAuthService{},
		AuthConfig:    testAuthConfig(),
		UserFinder: &mockUserFinder{
			findByIDFn: func(ctx context.Context, id int64) (*model.User, error) {
				return &model.User{ID: id, SocialID: "100200", Username: "Ivan Petrov", AccessToken: "tok"}, nil
			},
		},
		FriendFetcher: &mockFriendFetcher{
			fetchFriendsFn: func(ctx context.Context, socialID, accessToken string) ([]model.Friend, error) {
				return nil, nil
			},
		},
		Renderer: testRenderer(t),
		DB:       pinger,
	})
}

type nilSessionFinder struct{}

func (nilSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}

type staticSessionFinder struct {
	session *model.Session
}

func (s *staticSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if s.session != nil && s.session.ID == id {
		return s.session, nil
	}
	return nil, nil
}

func TestRouter_GuardedRoutes_RedirectUnauthenticated(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	for _, path := range []string{"/", "/index"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

			if w.Code != http.StatusFound {
				t.Fatalf("status = %d, want 302", w.Code)
			}
			if loc := w.Header().Get("Location"); loc != "/authorization" {
				t.Errorf("Location = %q, want /authorization", loc)
			}
		})
	}
}

func TestRouter_GuardedRoutes_ServeAuthenticated(t *testing.T) {
	finder := &staticSessionFinder{
		session: &model.Session{ID: "sess-1", UserID: 7, ExpiresAt: time.Now().Add(time.Hour)},
	}
	router := newTestRouter(t, finder, nil)

	req := httptest.NewRequest(http.MethodGet, "/index", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "sess-1"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRouter_LoginPage_Reachable(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorization", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := newTestRouter(t, nil, &mockPinger{})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if w.Body.String() != "ok" {
			t.Errorf("body = %q, want ok", w.Body.String())
		}
	})

	t.Run("database down", func(t *testing.T) {
		router := newTestRouter(t, nil, &mockPinger{err: errors.New("connection refused")})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
	})
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/authorization", nil))

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}
