package perf

import (
	"github.com/encodeous/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aodv"

// Counter records into a windowed metric for expvar and a prometheus counter
type Counter struct {
	metric.Metric
	prom prometheus.Counter
}

func NewCounter(window, name, help string) *Counter {
	return &Counter{
		Metric: metric.NewCounter(window),
		prom: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}),
	}
}

func (c *Counter) Add(n float64) {
	c.Metric.Add(n)
	c.prom.Add(n)
}

type Histogram struct {
	metric.Metric
	prom prometheus.Histogram
}

func NewHistogram(window, name, help string) *Histogram {
	return &Histogram{
		Metric: metric.NewHistogram(window),
		prom: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}

func (h *Histogram) Add(n float64) {
	h.Metric.Add(n)
	h.prom.Observe(n)
}
