package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько занял вызов удаленного аудит-сервиса
	RemoteCallDuration *prometheus.HistogramVec

	// Traffic: запущенные аудиты
	AuditsStarted prometheus.Counter

	// Кэш результатов: short-circuit против похода в API
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Errors: классификация отказов по таксономии
	ErrorTotal *prometheus.CounterVec

	// Отбитые публичные запросы (лимит по IP)
	RateLimitRejections prometheus.Counter

	// Ретенционная зачистка: сколько записей удалено
	SweepDeleted prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RemoteCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitevitals_remote_call_duration_seconds",
			Help:    "Histogram of remote audit API call latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"operation", "outcome"}),

		AuditsStarted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sitevitals_audits_started_total",
			Help: "Total number of audits submitted to the remote service.",
		}),

		CacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sitevitals_result_cache_hits_total",
			Help: "Start requests served from the result cache.",
		}),

		CacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sitevitals_result_cache_misses_total",
			Help: "Start requests that had to contact the remote service.",
		}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sitevitals_errors_total",
			Help: "Total number of errors by taxonomy type.",
		}, []string{"type"}), // типы: not_configured, invalid_input, transport, remote, invalid_response, not_found

		RateLimitRejections: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sitevitals_rate_limit_rejections_total",
			Help: "Public start-audit attempts rejected by the per-IP limit.",
		}),

		SweepDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sitevitals_retention_deleted_total",
			Help: "Audit records removed by the retention sweep.",
		}),
	}
}
