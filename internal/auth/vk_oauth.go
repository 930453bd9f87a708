package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultVKAuthorizeURL = "https://oauth.vk.com/authorize"
	defaultVKTokenURL     = "https://oauth.vk.com/access_token"
	defaultVKAPIBaseURL   = "https://api.vk.com/method"

	// vkScope は友達一覧の取得とオフラインアクセスを要求する。
	vkScope = "friends, offline"
)

// LatencyRecorder はプロバイダーAPI呼び出しのレイテンシ記録インターフェース。
// 成功・失敗を問わず呼び出しごとに記録される。nil実装可。
type LatencyRecorder interface {
	RecordProviderLatency(operation string, duration time.Duration)
}

// VKOAuthConfig はVK OAuthプロバイダーの設定。
type VKOAuthConfig struct {
	ClientID     string
	ClientSecret string
	// CallbackURL はこのアプリの /callback/vk 絶対URL。
	// 認可URLとトークン交換の両方で同一の値を使用しなければならない。
	CallbackURL string
	APIVersion  string

	// テスト用にオーバーライド可能なURL
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string

	// HTTPClient はプロバイダー呼び出しに使用するクライアント。
	// タイムアウトを設定したクライアントを渡すこと。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client

	// Metrics はプロバイダー呼び出しのレイテンシを記録する。nil可。
	Metrics LatencyRecorder
}

// VKOAuthProvider はvk.com向けの'OAuth 2.0 Authorization Framework'の実装。
type VKOAuthProvider struct {
	config     VKOAuthConfig
	httpClient *http.Client
}

// NewVKOAuthProvider はVKOAuthProviderを生成する。
func NewVKOAuthProvider(config VKOAuthConfig) *VKOAuthProvider {
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = defaultVKAuthorizeURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultVKTokenURL
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultVKAPIBaseURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &VKOAuthProvider{config: config, httpClient: httpClient}
}

// Name はプロバイダーキーを返す。
func (p *VKOAuthProvider) Name() string { return "vk" }

// AuthorizeURL はVKの認可エンドポイントURLを生成する。
// URL構築以外の副作用はない。
func (p *VKOAuthProvider) AuthorizeURL() string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.CallbackURL},
		"scope":         {vkScope},
		"response_type": {"code"},
		"v":             {p.config.APIVersion},
	}
	return p.config.AuthorizeURL + "?" + params.Encode()
}

// vkTokenResponse はVKのトークンエンドポイントのレスポンス。
// エラー時は error / error_description が設定される。
type vkTokenResponse struct {
	AccessToken      string `json:"access_token"`
	UserID           int64  `json:"user_id"`
	ErrorField       string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// vkAPIError はVK APIメソッドのエラー応答。
// APIメソッドはHTTP 200でもボディにerrorオブジェクトを返すことがある。
type vkAPIError struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// vkUsersGetResponse はusers.getメソッドのレスポンス。
type vkUsersGetResponse struct {
	Error    *vkAPIError     `json:"error"`
	Response []vkUserProfile `json:"response"`
}

type vkUserProfile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ExchangeCode は認可コードをアクセストークンに交換する。
// トークンと合わせてVK側のユーザーID（social id）が返る。
// 非成功ステータス、ボディのerrorフィールド、access_tokenまたはuser_idの
// 欠落はすべてOAuthErrorになる。リトライはしない。
func (p *VKOAuthProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.CallbackURL},
		"code":          {code},
	}

	body, statusCode, err := p.get(ctx, "exchange_code", p.config.TokenURL+"?"+params.Encode())
	if err != nil {
		return nil, NewOAuthError("exchange_code", err)
	}

	var tokenResp vkTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, NewOAuthError("exchange_code", fmt.Errorf("failed to parse token response: %w", err))
	}

	// ステータスに関わらず、ボディのerrorフィールドを先に確認する
	if tokenResp.ErrorField != "" {
		return nil, NewOAuthError("exchange_code",
			fmt.Errorf("provider returned error %q: %s", tokenResp.ErrorField, tokenResp.ErrorDescription))
	}
	if statusCode != http.StatusOK {
		return nil, NewOAuthError("exchange_code",
			fmt.Errorf("token endpoint returned status %d", statusCode))
	}
	if tokenResp.AccessToken == "" {
		return nil, NewOAuthError("exchange_code", fmt.Errorf("empty access token in response"))
	}
	if tokenResp.UserID == 0 {
		return nil, NewOAuthError("exchange_code", fmt.Errorf("missing user_id in response"))
	}

	return &Token{
		AccessToken: tokenResp.AccessToken,
		SocialID:    strconv.FormatInt(tokenResp.UserID, 10),
	}, nil
}

// FetchProfile はアクセストークンでVKのユーザー情報（users.get）を取得する。
// 失敗条件はExchangeCodeと同様。responseが空の場合もOAuthErrorになる。
func (p *VKOAuthProvider) FetchProfile(ctx context.Context, socialID, accessToken string) (*Profile, error) {
	params := url.Values{
		"user_id":      {socialID},
		"v":            {p.config.APIVersion},
		"access_token": {accessToken},
	}

	body, statusCode, err := p.get(ctx, "fetch_profile", p.config.APIBaseURL+"/users.get?"+params.Encode())
	if err != nil {
		return nil, NewOAuthError("fetch_profile", err)
	}

	var usersResp vkUsersGetResponse
	if err := json.Unmarshal(body, &usersResp); err != nil {
		return nil, NewOAuthError("fetch_profile", fmt.Errorf("failed to parse profile response: %w", err))
	}

	if usersResp.Error != nil {
		return nil, NewOAuthError("fetch_profile",
			fmt.Errorf("provider returned error %d: %s", usersResp.Error.ErrorCode, usersResp.Error.ErrorMsg))
	}
	if statusCode != http.StatusOK {
		return nil, NewOAuthError("fetch_profile",
			fmt.Errorf("profile endpoint returned status %d", statusCode))
	}
	if len(usersResp.Response) == 0 {
		return nil, NewOAuthError("fetch_profile", fmt.Errorf("empty response array"))
	}

	profile := usersResp.Response[0]
	if profile.FirstName == "" {
		return nil, NewOAuthError("fetch_profile", fmt.Errorf("missing first_name in response"))
	}

	return &Profile{
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	}, nil
}

// get はGETリクエストを実行し、ボディとステータスコードを返す。
// operation単位でレイテンシをメトリクスに記録する。
// タイムアウトを含むトランスポートエラーはそのまま返す（呼び出し側でOAuthErrorに包む）。
func (p *VKOAuthProvider) get(ctx context.Context, operation, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if p.config.Metrics != nil {
		p.config.Metrics.RecordProviderLatency(operation, time.Since(start))
	}
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// compile-time interface check
var _ Provider = (*VKOAuthProvider)(nil)
