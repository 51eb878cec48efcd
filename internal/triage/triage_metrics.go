package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal     *prometheus.CounterVec
	AILatency        prometheus.Histogram
	ProviderErrors   *prometheus.CounterVec
	DangerSigns      *prometheus.CounterVec
	Escalations      prometheus.Counter
	Inconsistencies  prometheus.Counter
	TemplateFetches  prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okapi_triages_total",
			Help: "Total triage runs by final tier and decision path.",
		}, []string{"tier", "path"}),
		AILatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "okapi_ai_latency_seconds",
			Help:    "Wall-clock duration of AI assessment attempts.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s .. ~64s
		}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okapi_provider_errors_total",
			Help: "AI provider failures by kind (timeout, validation, transport).",
		}, []string{"kind"}),
		DangerSigns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okapi_danger_signs_total",
			Help: "Detected danger signs by signature.",
		}, []string{"sign"}),
		Escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okapi_uncertainty_escalations_total",
			Help: "GREEN results upgraded to YELLOW by the uncertainty policy.",
		}),
		Inconsistencies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okapi_assessment_inconsistencies_total",
			Help: "Non-GREEN assessments returned without a referral recommendation.",
		}),
		TemplateFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okapi_template_fetches_total",
			Help: "Prompt template fetches from object storage (at most one per process).",
		}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.AILatency,
		m.ProviderErrors,
		m.DangerSigns,
		m.Escalations,
		m.Inconsistencies,
		m.TemplateFetches,
	)

	return m
}

// Hooks returns EngineHooks that increment the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnComplete: func(tier Level, path string, latencyMs int64) {
			m.TriagesTotal.WithLabelValues(string(tier), path).Inc()
			if path != PathOverride {
				m.AILatency.Observe(float64(latencyMs) / 1000)
			}
		},
		OnProviderError: func(kind string) {
			m.ProviderErrors.WithLabelValues(kind).Inc()
		},
		OnDangerSign: func(sign Sign) {
			m.DangerSigns.WithLabelValues(string(sign)).Inc()
		},
		OnEscalation: func() {
			m.Escalations.Inc()
		},
		OnInconsistency: func() {
			m.Inconsistencies.Inc()
		},
	}
}
