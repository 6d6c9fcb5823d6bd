package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsService 摄取与检索的Prometheus指标
type MetricsService struct {
	ingestedChunks  *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	recallRequests  prometheus.Counter
	recallDuration  prometheus.Histogram
	recallEmptyHits prometheus.Counter
}

// NewMetricsService 注册并创建指标服务
func NewMetricsService() *MetricsService {
	return &MetricsService{
		ingestedChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "testweaver_ingested_chunks_total",
			Help: "Number of chunks stored through the ingestion pipeline.",
		}, []string{"source_type"}),
		ingestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "testweaver_ingest_duration_seconds",
			Help:    "End-to-end duration of ingestion requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type"}),
		recallRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "testweaver_recall_requests_total",
			Help: "Number of long-term memory recall requests.",
		}),
		recallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "testweaver_recall_duration_seconds",
			Help:    "Duration of recall requests including embedding.",
			Buckets: prometheus.DefBuckets,
		}),
		recallEmptyHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "testweaver_recall_empty_total",
			Help: "Number of recall requests that returned no results.",
		}),
	}
}

// ObserveIngest 记录一次摄取
func (m *MetricsService) ObserveIngest(sourceType string, storedChunks int, elapsed time.Duration) {
	m.ingestedChunks.WithLabelValues(sourceType).Add(float64(storedChunks))
	m.ingestDuration.WithLabelValues(sourceType).Observe(elapsed.Seconds())
}

// ObserveRecall 记录一次回忆
func (m *MetricsService) ObserveRecall(hits int, elapsed time.Duration) {
	m.recallRequests.Inc()
	m.recallDuration.Observe(elapsed.Seconds())
	if hits == 0 {
		m.recallEmptyHits.Inc()
	}
}
