package moderator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	mediaImage = "image"
	mediaVideo = "video"
)

var (
	verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postguard_moderation_verdicts_total",
			Help: "Moderation verdicts by media kind, decision and stage.",
		},
		[]string{"media", "decision", "stage"},
	)

	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postguard_moderation_duration_seconds",
			Help:    "Duration of one image or video check in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"media"},
	)

	detectorDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postguard_detector_duration_seconds",
		Help:    "Latency of single detector calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	bypassedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postguard_moderation_bypassed_total",
			Help: "Checks approved because moderation is disabled.",
		},
		[]string{"media"},
	)

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postguard_verdict_cache_hits_total",
		Help: "Verdict cache hits.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postguard_verdict_cache_misses_total",
		Help: "Verdict cache misses.",
	})
)

func observeVerdict(media string, v *Verdict, elapsed time.Duration) {
	verdictsTotal.WithLabelValues(media, string(v.Details.Decision), string(v.Stage)).Inc()
	checkDuration.WithLabelValues(media).Observe(elapsed.Seconds())
}
