package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	SubmissionResult string
	JobResult        string
)

const (
	SubmissionResultSubmitted SubmissionResult = "submitted"
	SubmissionResultDryRun    SubmissionResult = "dry_run"
	SubmissionResultFailed    SubmissionResult = "failed"

	JobResultSucceeded JobResult = "succeeded"
	JobResultFailed    JobResult = "failed"

	DeliveryStateCandidates = "candidates"
	DeliveryStateSkipped    = "skipped"
	DeliveryStateIncomplete = "incomplete"
	DeliveryStatePending    = "pending"
)

const SizerMetricsPrefix = "sizer_"

// Metrics covers one sizer run. A run is a short-lived process, so rather than being scraped the registry is
// written out once at exit with WriteToTextfile.
type Metrics struct {
	registry *prometheus.Registry

	pairs            *prometheus.GaugeVec
	submissions      *prometheus.CounterVec
	submitRetries    prometheus.Counter
	jobs             *prometheus.CounterVec
	resubmissions    prometheus.Counter
	pairsEncoded     prometheus.Counter
	chunksWritten    prometheus.Counter
	encodingDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		pairs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: SizerMetricsPrefix + "delivery_pairs",
			Help: "Number of read pairs in the delivery grouped by resolution state",
		}, []string{"state"}),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: SizerMetricsPrefix + "job_submissions",
			Help: "Number of job submissions grouped by result",
		}, []string{"result"}),
		submitRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: SizerMetricsPrefix + "job_submission_retries",
			Help: "Number of job submissions retried after a transient error",
		}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: SizerMetricsPrefix + "jobs_finished",
			Help: "Number of monitored jobs that reached a final state grouped by result",
		}, []string{"result"}),
		resubmissions: factory.NewCounter(prometheus.CounterOpts{
			Name: SizerMetricsPrefix + "job_resubmissions",
			Help: "Number of failed jobs resubmitted by the monitor",
		}),
		pairsEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: SizerMetricsPrefix + "pairs_encoded",
			Help: "Number of read pairs written to chunks",
		}),
		chunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: SizerMetricsPrefix + "chunks_written",
			Help: "Number of chunks written",
		}),
		encodingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    SizerMetricsPrefix + "encoding_duration_seconds",
			Help:    "Time taken to encode one read pair into chunks",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}),
	}
}

// RecordDelivery records the size of each resolution state, e.g. "candidates", "skipped", "pending".
func (m *Metrics) RecordDelivery(state string, pairs int) {
	m.pairs.With(map[string]string{"state": state}).Set(float64(pairs))
}

func (m *Metrics) RecordSubmission(result SubmissionResult) {
	m.submissions.With(map[string]string{"result": string(result)}).Inc()
}

func (m *Metrics) RecordSubmissionRetry() {
	m.submitRetries.Inc()
}

func (m *Metrics) RecordJobFinished(result JobResult) {
	m.jobs.With(map[string]string{"result": string(result)}).Inc()
}

func (m *Metrics) RecordResubmission() {
	m.resubmissions.Inc()
}

func (m *Metrics) RecordEncoding(pairs int64, chunks int, seconds float64) {
	m.pairsEncoded.Add(float64(pairs))
	m.chunksWritten.Add(float64(chunks))
	m.encodingDuration.Observe(seconds)
}

// Registry exposes the underlying registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteToTextfile writes every metric in the text exposition format, e.g. for the node exporter's textfile
// collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return errors.WithStack(prometheus.WriteToTextfile(path, m.registry))
}
