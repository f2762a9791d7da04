// Package metrics はゲート・配信・バックグラウンド処理の Prometheus メトリクスを提供します。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "download_gate"

type Metrics struct {
	registry *prometheus.Registry

	GateAttemptsTotal   *prometheus.CounterVec
	TokensIssuedTotal   *prometheus.CounterVec
	DownloadsTotal      *prometheus.CounterVec
	CatalogChangesTotal *prometheus.CounterVec
	SweepRemovedTotal   prometheus.Counter
	SweepRunsTotal      prometheus.Counter
	BlobCleanupTotal    *prometheus.CounterVec
}

// New は専用のレジストリにメトリクスを登録します。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		GateAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_attempts_total",
			Help:      "Password gate submissions by scope and outcome",
		}, []string{"scope", "outcome"}),
		TokensIssuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Bearer tokens issued by scope",
		}, []string{"scope"}),
		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download requests by outcome",
		}, []string{"outcome"}),
		CatalogChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_changes_total",
			Help:      "Catalog mutations by action",
		}, []string{"action"}),
		SweepRemovedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kv_sweep_removed_total",
			Help:      "Expired entries removed by the memory store sweeper",
		}),
		SweepRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kv_sweep_runs_total",
			Help:      "Completed memory store sweeps",
		}),
		BlobCleanupTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_cleanup_total",
			Help:      "Queued blob deletions by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveGate(scope, outcome string) {
	m.GateAttemptsTotal.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) ObserveTokenIssued(scope string) {
	m.TokensIssuedTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) ObserveDownload(outcome string) {
	m.DownloadsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCatalogChange(action string) {
	m.CatalogChangesTotal.WithLabelValues(action).Inc()
}

// ObserveSweep は kv.WithSweepObserver に渡すコールバックです。
func (m *Metrics) ObserveSweep(removed int) {
	m.SweepRunsTotal.Inc()
	m.SweepRemovedTotal.Add(float64(removed))
}

func (m *Metrics) ObserveBlobCleanup(result string) {
	m.BlobCleanupTotal.WithLabelValues(result).Inc()
}

// Handler は /metrics 用の HTTP ハンドラーを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
