package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "specsync"

// Metrics contains all Prometheus metrics for specsync.
type Metrics struct {
	// Runs.
	RunsTriggered  prometheus.Counter
	RunsCompleted  *prometheus.CounterVec
	RunsInProgress prometheus.Gauge
	RunDuration    *prometheus.HistogramVec
	StageDuration  *prometheus.HistogramVec
	LockContention prometheus.Counter

	// Diff and annotation.
	ChangedPaths    prometheus.Histogram
	BatchesTotal    *prometheus.CounterVec
	BatchDuration   prometheus.Histogram
	IndexPollsTotal *prometheus.CounterVec

	// Snapshots.
	SnapshotsCreated prometheus.Counter
	SnapshotsDeleted prometheus.Counter

	// Publishing.
	PublishTotal *prometheus.CounterVec

	// HTTP.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// GitHub API.
	GitHubAPIRequestsTotal   *prometheus.CounterVec
	GitHubAPIErrorsTotal     *prometheus.CounterVec
	GitHubRateLimitRemaining prometheus.Gauge

	// Build info.
	BuildInfo *prometheus.GaugeVec
}

// New creates a new Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a new Metrics instance and registers all metrics
// on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Runs.
		RunsTriggered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_triggered_total",
				Help:      "Total number of pipeline runs triggered",
			},
		),
		RunsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of pipeline runs finished, by outcome",
			},
			[]string{"status", "error_kind"},
		),
		RunsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_in_progress",
				Help:      "Number of pipeline runs currently executing",
			},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Pipeline run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
			[]string{"status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
			},
			[]string{"stage"},
		),
		LockContention: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_contention_total",
				Help:      "Total number of runs rejected because the project was locked",
			},
		),

		// Diff and annotation.
		ChangedPaths: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "changed_paths",
				Help:      "Number of added or modified paths per run",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "annotation_batches_total",
				Help:      "Total number of annotation batches, by outcome",
			},
			[]string{"status"},
		),
		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "annotation_batch_duration_seconds",
				Help:      "Annotation batch duration in seconds",
				Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
		),
		IndexPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_polls_total",
				Help:      "Total number of repository index status polls, by reported state",
			},
			[]string{"state"},
		),

		// Snapshots.
		SnapshotsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_created_total",
				Help:      "Total number of snapshots persisted",
			},
		),
		SnapshotsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_deleted_total",
				Help:      "Total number of snapshots removed by history cleanup",
			},
		),

		// Publishing.
		PublishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_total",
				Help:      "Total number of publish attempts, by publisher and outcome",
			},
			[]string{"publisher", "status"},
		),

		// HTTP.
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// GitHub API.
		GitHubAPIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "github_api_requests_total",
				Help:      "Total number of GitHub API requests",
			},
			[]string{"endpoint"},
		),
		GitHubAPIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "github_api_errors_total",
				Help:      "Total number of GitHub API errors",
			},
			[]string{"endpoint"},
		),
		GitHubRateLimitRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "github_rate_limit_remaining",
				Help:      "Remaining GitHub API rate limit",
			},
		),

		// Build info.
		BuildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build information",
			},
			[]string{"version", "commit", "date"},
		),
	}

	return m
}

// SetBuildInfo sets the build info metric.
func (m *Metrics) SetBuildInfo(version, commit, date string) {
	m.BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// RecordRunTriggered increments the runs triggered counter.
func (m *Metrics) RecordRunTriggered() {
	m.RunsTriggered.Inc()
}

// RecordRunStarted marks a run as executing.
func (m *Metrics) RecordRunStarted() {
	m.RunsInProgress.Inc()
}

// RecordRunFinished records the outcome of a run. errorKind is empty for
// successful runs.
func (m *Metrics) RecordRunFinished(status, errorKind string, seconds float64) {
	m.RunsInProgress.Dec()
	m.RunsCompleted.WithLabelValues(status, errorKind).Inc()
	m.RunDuration.WithLabelValues(status).Observe(seconds)
}

// RecordStage records the duration of a single stage.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordLockContention increments the lock contention counter.
func (m *Metrics) RecordLockContention() {
	m.LockContention.Inc()
}

// RecordChangedPaths observes the number of changed paths in a run.
func (m *Metrics) RecordChangedPaths(n int) {
	m.ChangedPaths.Observe(float64(n))
}

// RecordBatch records a finished annotation batch.
func (m *Metrics) RecordBatch(ok bool, seconds float64) {
	status := "success"
	if !ok {
		status = "failed"
	}

	m.BatchesTotal.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(seconds)
}

// RecordIndexPoll records one repository index status poll.
func (m *Metrics) RecordIndexPoll(state string) {
	m.IndexPollsTotal.WithLabelValues(state).Inc()
}

// RecordSnapshotCreated increments the snapshots created counter.
func (m *Metrics) RecordSnapshotCreated() {
	m.SnapshotsCreated.Inc()
}

// RecordSnapshotsDeleted adds to the snapshots deleted counter.
func (m *Metrics) RecordSnapshotsDeleted(n int64) {
	m.SnapshotsDeleted.Add(float64(n))
}

// RecordPublish records a publish attempt.
func (m *Metrics) RecordPublish(publisher string, ok bool) {
	status := "success"
	if !ok {
		status = "failed"
	}

	m.PublishTotal.WithLabelValues(publisher, status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordGitHubAPIRequest records a GitHub API request.
func (m *Metrics) RecordGitHubAPIRequest(endpoint string) {
	m.GitHubAPIRequestsTotal.WithLabelValues(endpoint).Inc()
}

// RecordGitHubAPIError records a GitHub API error.
func (m *Metrics) RecordGitHubAPIError(endpoint string) {
	m.GitHubAPIErrorsTotal.WithLabelValues(endpoint).Inc()
}

// SetGitHubRateLimit sets the GitHub rate limit remaining gauge.
func (m *Metrics) SetGitHubRateLimit(remaining float64) {
	m.GitHubRateLimitRemaining.Set(remaining)
}
