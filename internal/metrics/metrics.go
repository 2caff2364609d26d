// Package metrics exposes Prometheus instrumentation for the gameplay backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "biohunter"

// Recorder holds every metric the services report. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	sessionsRecorded     prometheus.Counter
	publishFailures      prometheus.Counter
	gachaPulls           *prometheus.CounterVec
	insufficientFunds    prometheus.Counter
	achievementsGranted  *prometheus.CounterVec
	sessionsPurged       prometheus.Counter
	eventHandlerFailures *prometheus.CounterVec
	rankingProjections   *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
}

// NewRecorder registers all metrics on a dedicated registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sessionsRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_recorded_total",
			Help:      "Quiz sessions committed with their aggregate update.",
		}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_event_publish_failures_total",
			Help:      "Session-recorded events that could not be published.",
		}),
		gachaPulls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gacha_pulls_total",
			Help:      "Successful gacha pulls by rarity.",
		}, []string{"rarity"}),
		insufficientFunds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gacha_insufficient_funds_total",
			Help:      "Gacha pulls rejected for lack of currency.",
		}),
		achievementsGranted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_granted_total",
			Help:      "Achievements newly granted.",
		}, []string{"achievement"}),
		sessionsPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "Sessions deleted by the retention cleaner.",
		}),
		eventHandlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler invocations that failed after retries.",
		}, []string{"handler"}),
		rankingProjections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_projections_total",
			Help:      "Ranking entries upserted by type.",
		}, []string{"type"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) SessionRecorded() {
	if r != nil {
		r.sessionsRecorded.Inc()
	}
}

func (r *Recorder) PublishFailed() {
	if r != nil {
		r.publishFailures.Inc()
	}
}

func (r *Recorder) GachaPull(rarity string) {
	if r != nil {
		r.gachaPulls.WithLabelValues(rarity).Inc()
	}
}

func (r *Recorder) InsufficientFunds() {
	if r != nil {
		r.insufficientFunds.Inc()
	}
}

func (r *Recorder) AchievementGranted(id string) {
	if r != nil {
		r.achievementsGranted.WithLabelValues(id).Inc()
	}
}

func (r *Recorder) SessionsPurged(n int64) {
	if r != nil && n > 0 {
		r.sessionsPurged.Add(float64(n))
	}
}

func (r *Recorder) EventHandlerFailed(handler string) {
	if r != nil {
		r.eventHandlerFailures.WithLabelValues(handler).Inc()
	}
}

func (r *Recorder) RankingProjected(rankingType string) {
	if r != nil {
		r.rankingProjections.WithLabelValues(rankingType).Inc()
	}
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if r != nil {
		r.httpRequestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
	}
}
