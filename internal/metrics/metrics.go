// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// auth.MetricsRecorderとfriend.MetricsRecorderの両方を満たす。
type Collector struct {
	loginSuccess     *prometheus.CounterVec
	loginFail        *prometheus.CounterVec
	friendsFetched   prometheus.Counter
	friendsFetchFail *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthapp_login_success_total",
			Help: "OAuthログイン成功の合計数（プロバイダー別）",
		}, []string{"provider"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthapp_login_fail_total",
			Help: "OAuthログイン失敗の合計数（プロバイダー別）",
		}, []string{"provider"}),
		friendsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "oauthapp_friends_fetched_total",
			Help: "取得された友達の合計数",
		}),
		friendsFetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthapp_friends_fetch_fail_total",
			Help: "友達取得失敗の合計数（プロバイダー別）",
		}, []string{"provider"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauthapp_provider_latency_seconds",
			Help:    "プロバイダーAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauthapp_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.friendsFetched,
		c.friendsFetchFail,
		c.providerLatency,
		c.httpStatus,
	)

	return c
}

// RecordLoginSuccess はOAuthログイン成功を記録する。
func (c *Collector) RecordLoginSuccess(provider string) {
	c.loginSuccess.WithLabelValues(provider).Inc()
}

// RecordLoginFailure はOAuthログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(provider string) {
	c.loginFail.WithLabelValues(provider).Inc()
}

// RecordFriendsFetched は取得した友達の件数を記録する。
func (c *Collector) RecordFriendsFetched(provider string, count int) {
	c.friendsFetched.Add(float64(count))
}

// RecordFriendsFetchFailure は友達取得の失敗を記録する。
func (c *Collector) RecordFriendsFetchFailure(provider string) {
	c.friendsFetchFail.WithLabelValues(provider).Inc()
}

// RecordProviderLatency はプロバイダーAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(operation string, duration time.Duration) {
	c.providerLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
