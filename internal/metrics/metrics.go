// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証ミドルウェア、認可ガード、共有リンク管理から利用する。
type MetricsCollector interface {
	RecordTokenVerification(result string)
	RecordAuthzDecision(operation string, decision string)
	RecordShareResolution(found bool)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokenVerifications *prometheus.CounterVec
	authzDecisions     *prometheus.CounterVec
	shareResolutions   *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notekeep_token_verifications_total",
			Help: "トークン検証の結果別件数",
		}, []string{"result"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notekeep_authz_decisions_total",
			Help: "所有者認可の操作別・判定別件数",
		}, []string{"operation", "decision"}),
		shareResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notekeep_share_resolutions_total",
			Help: "共有トークン解決の結果別件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notekeep_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.tokenVerifications,
		c.authzDecisions,
		c.shareResolutions,
		c.httpStatus,
	)

	return c
}

// RecordTokenVerification はトークン検証結果を記録する。
// resultはvalid、missing、malformed、invalid_signature、expiredのいずれか。
func (c *Collector) RecordTokenVerification(result string) {
	c.tokenVerifications.WithLabelValues(result).Inc()
}

// RecordAuthzDecision は認可判定を記録する。
func (c *Collector) RecordAuthzDecision(operation string, decision string) {
	c.authzDecisions.WithLabelValues(operation, decision).Inc()
}

// RecordShareResolution は共有トークン解決結果を記録する。
func (c *Collector) RecordShareResolution(found bool) {
	result := "not_found"
	if found {
		result = "found"
	}
	c.shareResolutions.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewStatusMiddleware はレスポンスのステータスコードをCollectorに記録するミドルウェアを返す。
func NewStatusMiddleware(recorder MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			recorder.RecordHTTPStatus(rec.statusCode)
		})
	}
}

// statusWriter は最初に書き込まれたステータスコードを保持する。
type statusWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.statusCode = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
