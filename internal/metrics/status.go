package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"kswitchd/internal/daemon"
)

// StatusCollector reads daemon status at scrape time.
type StatusCollector struct {
	status func() daemon.Status

	enabled    *prometheus.Desc
	undoDepth  *prometheus.Desc
	phrase     *prometheus.Desc
	suppressed *prometheus.Desc
	threshold  *prometheus.Desc
}

// NewStatusCollector creates a collector over status, usually
// (*daemon.Daemon).Status.
func NewStatusCollector(status func() daemon.Status) *StatusCollector {
	return &StatusCollector{
		status:     status,
		enabled:    prometheus.NewDesc(namespace+"_enabled", "1 when correction is enabled.", nil, nil),
		undoDepth:  prometheus.NewDesc(namespace+"_undo_depth", "Entries on the undo stack.", nil, nil),
		phrase:     prometheus.NewDesc(namespace+"_phrase_words", "Words in the pending phrase.", nil, nil),
		suppressed: prometheus.NewDesc(namespace+"_suppressed_patterns", "Learned patterns that are no longer corrected.", nil, nil),
		threshold:  prometheus.NewDesc(namespace+"_confidence_threshold", "Minimum confidence to apply a correction.", nil, nil),
	}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enabled
	ch <- c.undoDepth
	ch <- c.phrase
	ch <- c.suppressed
	ch <- c.threshold
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.status()
	enabled := 0.0
	if st.Enabled {
		enabled = 1
	}
	ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, enabled)
	ch <- prometheus.MustNewConstMetric(c.undoDepth, prometheus.GaugeValue, float64(st.UndoDepth))
	ch <- prometheus.MustNewConstMetric(c.phrase, prometheus.GaugeValue, float64(st.PhraseWords))
	ch <- prometheus.MustNewConstMetric(c.suppressed, prometheus.GaugeValue, float64(st.Suppressed))
	ch <- prometheus.MustNewConstMetric(c.threshold, prometheus.GaugeValue, st.Threshold)
}
