// Package friend はVKの友達一覧の取得機能を提供する。
// friends.get APIを呼び出し、表示用のFriendモデルへ変換する。
package friend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/d2regular/flask-oauth2-example/internal/auth"
	"github.com/d2regular/flask-oauth2-example/internal/model"
	"github.com/d2regular/flask-oauth2-example/internal/security"
)

const (
	// defaultAPIBaseURL はVK APIメソッドのベースURL。
	defaultAPIBaseURL = "https://api.vk.com/method"
	// defaultProfileBaseURL は友達プロフィールへのリンクのベースURL。
	defaultProfileBaseURL = "https://vk.com/id"
	// friendCount は1回の表示で取得する友達の件数。
	friendCount = 5
)

// MetricsRecorder は友達取得のメトリクス記録インターフェース。nil実装可。
type MetricsRecorder interface {
	RecordFriendsFetched(provider string, count int)
	RecordFriendsFetchFailure(provider string)
	RecordProviderLatency(operation string, duration time.Duration)
}

// VKClientConfig はVKClientの生成パラメータ。
// ゼロ値のフィールドには本番エンドポイントが設定される。
type VKClientConfig struct {
	APIVersion     string
	APIBaseURL     string // テスト用に差し替え可能
	ProfileBaseURL string // テスト用に差し替え可能
	HTTPClient     *http.Client
}

// VKClient はVK friends.get APIのクライアント。
// 認証済みユーザーのアクセストークンを使い、ランダムな友達を取得する。
type VKClient struct {
	httpClient     *http.Client
	apiBaseURL     string
	profileBaseURL string
	version        string
	sanitizer      security.NameSanitizerService
	metrics        MetricsRecorder
}

// NewVKClient はVKClientの新しいインスタンスを生成する。metricsはnil可。
func NewVKClient(cfg VKClientConfig, sanitizer security.NameSanitizerService, metrics MetricsRecorder) *VKClient {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.ProfileBaseURL == "" {
		cfg.ProfileBaseURL = defaultProfileBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &VKClient{
		httpClient:     cfg.HTTPClient,
		apiBaseURL:     cfg.APIBaseURL,
		profileBaseURL: cfg.ProfileBaseURL,
		version:        cfg.APIVersion,
		sanitizer:      sanitizer,
		metrics:        metrics,
	}
}

// vkFriendsGetResponse はfriends.getのレスポンスボディ。
// VK APIはエラー時もHTTP 200でerrorオブジェクトを返す。
type vkFriendsGetResponse struct {
	Error    *vkAPIError       `json:"error"`
	Response *vkFriendsPayload `json:"response"`
}

type vkAPIError struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type vkFriendsPayload struct {
	Count int            `json:"count"`
	Items []vkFriendItem `json:"items"`
}

type vkFriendItem struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FetchFriends は指定ユーザーのVK友達をランダムに5件取得する。
// 表示名はサニタイズの上でfirst_name+last_nameを連結し、リンクは
// 数値IDベースのプロフィールURLを組み立てる。トークン失効を含む
// あらゆるAPI失敗はauth.OAuthErrorとして返す。
func (c *VKClient) FetchFriends(ctx context.Context, socialID, accessToken string) ([]model.Friend, error) {
	// 1. リクエストURL構築
	reqURL := fmt.Sprintf("%s/friends.get", c.apiBaseURL)
	params := url.Values{}
	params.Set("user_id", socialID)
	params.Set("order", "random")
	params.Set("count", strconv.Itoa(friendCount))
	params.Set("fields", "nickname")
	params.Set("v", c.version)
	params.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, auth.NewOAuthError("fetch_friends", fmt.Errorf("failed to create request: %w", err))
	}

	// 2. HTTPリクエスト実行
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordProviderLatency("fetch_friends", time.Since(start))
	}
	if err != nil {
		c.recordFailure()
		return nil, auth.NewOAuthError("fetch_friends", fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure()
		return nil, auth.NewOAuthError("fetch_friends", fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		c.recordFailure()
		return nil, auth.NewOAuthError("fetch_friends", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	// 3. レスポンス解釈（HTTP 200でもerrorオブジェクトを返すことがある）
	var parsed vkFriendsGetResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.recordFailure()
		return nil, auth.NewOAuthError("fetch_friends", fmt.Errorf("failed to parse response: %w", err))
	}
	if parsed.Error != nil {
		c.recordFailure()
		slog.Warn("friends request rejected",
			slog.Int("error_code", parsed.Error.ErrorCode),
			slog.String("error_msg", parsed.Error.ErrorMsg),
		)
		return nil, auth.NewOAuthError("fetch_friends",
			fmt.Errorf("api error %d: %s", parsed.Error.ErrorCode, parsed.Error.ErrorMsg))
	}
	if parsed.Response == nil {
		c.recordFailure()
		return nil, auth.NewOAuthError("fetch_friends", fmt.Errorf("response field is missing"))
	}

	// 4. 表示モデルへの変換
	friends := make([]model.Friend, 0, len(parsed.Response.Items))
	for _, item := range parsed.Response.Items {
		username := c.sanitizer.Sanitize(item.FirstName) + c.sanitizer.Sanitize(item.LastName)
		friends = append(friends, model.Friend{
			Username: username,
			Link:     c.profileBaseURL + strconv.FormatInt(item.ID, 10),
		})
	}

	if c.metrics != nil {
		c.metrics.RecordFriendsFetched("vk", len(friends))
	}
	return friends, nil
}

func (c *VKClient) recordFailure() {
	if c.metrics != nil {
		c.metrics.RecordFriendsFetchFailure("vk")
	}
}
