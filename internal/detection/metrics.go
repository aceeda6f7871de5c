package detection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// issuesDetected найденные проблемы по типу
	issuesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layer_inspector_issues_detected_total",
		Help: "Total detected issues by type",
	}, []string{"type"})

	// issuesSuppressed проблемы, отброшенные списком игнорируемых
	issuesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "layer_inspector_issues_suppressed_total",
		Help: "Total issues dropped because their fingerprint is ignored",
	})

	detectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "layer_inspector_detection_duration_seconds",
		Help:    "Detection phase duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
	}, []string{"phase"})

	layersProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layer_inspector_layers_processed_total",
		Help: "Total layers processed by phase",
	}, []string{"phase"})

	detectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layer_inspector_detection_runs_total",
		Help: "Total detection runs by result",
	}, []string{"result"})
)

const (
	phaseFeatures     = "features"
	phaseResinForward = "resin_trap_pass1"
	phaseResinReverse = "resin_trap_pass2"
	phaseTotal        = "total"
)
