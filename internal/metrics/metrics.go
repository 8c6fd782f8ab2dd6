// Package metrics exposes node counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kvs"

// Metrics groups the collectors updated by the ABCI application.
type Metrics struct {
	registry *prometheus.Registry

	Executions  *prometheus.CounterVec
	TxResults   *prometheus.CounterVec
	BlockHeight prometheus.Gauge
	StoredKeys  prometheus.Gauge
}

// New registers all collectors, including Go runtime stats, on a fresh
// registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_executions_total",
			Help:      "Contract calls by action and result.",
		}, []string{"action", "result"}),
		TxResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_txs_total",
			Help:      "Delivered transactions by ABCI result code.",
		}, []string{"code"}),
		BlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "block_height",
			Help:      "Height of the last committed block.",
		}),
		StoredKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_keys",
			Help:      "Entries held by the contract at the last commit.",
		}),
	}
	m.registry.MustRegister(
		m.Executions,
		m.TxResults,
		m.BlockHeight,
		m.StoredKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry is the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
