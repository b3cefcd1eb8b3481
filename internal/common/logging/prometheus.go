package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// PrometheusHook implements logrus.Hook, counting log lines by level.
type PrometheusHook struct {
	counters *prometheus.CounterVec
}

// NewPrometheusHook creates the log_messages counter, with the given name prefix, on registerer.
func NewPrometheusHook(registerer prometheus.Registerer, prefix string) *PrometheusHook {
	counters := promauto.With(registerer).NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "log_messages",
		Help: "Total number of log lines logged by level",
	}, []string{"level"})
	return &PrometheusHook{counters: counters}
}

func (h *PrometheusHook) Levels() []logrus.Level {
	return []logrus.Level{
		logrus.DebugLevel,
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
	}
}

func (h *PrometheusHook) Fire(entry *logrus.Entry) error {
	h.counters.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
