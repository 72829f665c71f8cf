// Package metrics exposes collection progress as Prometheus collectors.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"twits-archive-tool/internal/collector"
	"twits-archive-tool/internal/stocktwits"
)

const namespace = "twits_archive"

// Collection implements collector.Observer on its own registry.
type Collection struct {
	Registry *prometheus.Registry

	PagesFetched    *prometheus.CounterVec
	MessagesFetched prometheus.Counter
	FetchErrors     *prometheus.CounterVec
	Flushes         prometheus.Counter
	MessagesWritten prometheus.Counter
	ChunkAnchor     prometheus.Gauge
}

// New registers the collection metrics on a fresh registry.
func New() *Collection {
	reg := prometheus.NewRegistry()
	m := &Collection{
		Registry: reg,
		PagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Stream pages fetched, by entity kind",
		}, []string{"entity_kind"}),
		MessagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_fetched_total",
			Help:      "Messages returned by the stream API, duplicates included",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed stream fetches, by entity kind",
		}, []string{"entity_kind"}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Chunk flushes written",
		}),
		MessagesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_written_total",
			Help:      "Deduplicated messages written to chunk files",
		}),
		ChunkAnchor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunk_anchor_timestamp_seconds",
			Help:      "Anchor of the chunk currently being walked, as a Unix timestamp",
		}),
	}
	reg.MustRegister(m.PagesFetched, m.MessagesFetched, m.FetchErrors, m.Flushes, m.MessagesWritten, m.ChunkAnchor)
	return m
}

func (m *Collection) PageFetched(kind stocktwits.EntityKind, messages int) {
	m.PagesFetched.WithLabelValues(string(kind)).Inc()
	m.MessagesFetched.Add(float64(messages))
}

func (m *Collection) FetchFailed(kind stocktwits.EntityKind) {
	m.FetchErrors.WithLabelValues(string(kind)).Inc()
}

func (m *Collection) Flushed(rec collector.FlushRecord) {
	m.Flushes.Inc()
	m.MessagesWritten.Add(float64(rec.Written))
}

func (m *Collection) ChunkAdvanced(anchor time.Time) {
	m.ChunkAnchor.Set(float64(anchor.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Collection) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
