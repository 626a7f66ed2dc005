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
// middleware.DecisionRecorder と integration.Recorder を満たす。
type Collector struct {
	gatekeeperHalts *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	tokenOperations *prometheus.CounterVec
	sweptEntries    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gatekeeperHalts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_gatekeeper_halts_total",
			Help: "ゲートキーパーのチェックで打ち切られたリクエスト数",
		}, []string{"check", "status_code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_http_requests_total",
			Help: "メソッド・ステータスコード別のリクエスト数",
		}, []string{"method", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_http_request_duration_seconds",
			Help:    "リクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		tokenOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_token_operations_total",
			Help: "OAuthトークン操作の結果別の回数",
		}, []string{"operation", "outcome"}),
		sweptEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_ratelimit_swept_entries_total",
			Help: "スイープで削除されたレート制限エントリの合計数",
		}),
	}

	reg.MustRegister(
		c.gatekeeperHalts,
		c.httpRequests,
		c.httpDuration,
		c.tokenOperations,
		c.sweptEntries,
	)

	return c
}

// RecordGatekeeperHalt はチェックによる打ち切りを記録する。
func (c *Collector) RecordGatekeeperHalt(check string, status int) {
	c.gatekeeperHalts.WithLabelValues(check, strconv.Itoa(status)).Inc()
}

// RecordHTTPRequest は完了したリクエストを記録する。
func (c *Collector) RecordHTTPRequest(method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTokenOperation はトークン交換・更新・切断の結果を記録する。
func (c *Collector) RecordTokenOperation(operation, outcome string) {
	c.tokenOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordSweep はスイープで削除したエントリ数を記録する。
func (c *Collector) RecordSweep(removed int) {
	c.sweptEntries.Add(float64(removed))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
