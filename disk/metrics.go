package disk

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	diskPrometheusMetrics sync.Once

	diskOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockfs",
			Subsystem: "disk",
			Name:      "operations_total",
			Help:      "Number of block device operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"})
	diskOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blockfs",
			Subsystem: "disk",
			Name:      "operation_duration_seconds",
			Help:      "Amount of time spent per block device operation, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		},
		[]string{"operation"})
)

type metricsDisk struct {
	base Disk
}

// NewMetricsDisk creates a decorator for Disk that exposes Prometheus
// metrics on the number, outcome and latency of block reads and writes.
func NewMetricsDisk(base Disk) Disk {
	diskPrometheusMetrics.Do(func() {
		prometheus.MustRegister(diskOperations)
		prometheus.MustRegister(diskOperationDurationSeconds)
	})

	return &metricsDisk{
		base: base,
	}
}

func observe(operation string, err error, timer *prometheus.Timer) {
	timer.ObserveDuration()
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	diskOperations.WithLabelValues(operation, outcome).Inc()
}

func (d *metricsDisk) ReadTo(a uint64, b Block) error {
	timer := prometheus.NewTimer(diskOperationDurationSeconds.WithLabelValues("read"))
	err := d.base.ReadTo(a, b)
	observe("read", err, timer)
	return err
}

func (d *metricsDisk) Read(a uint64) (Block, error) {
	buf := NewBlock()
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *metricsDisk) Write(a uint64, v Block) error {
	timer := prometheus.NewTimer(diskOperationDurationSeconds.WithLabelValues("write"))
	err := d.base.Write(a, v)
	observe("write", err, timer)
	return err
}

func (d *metricsDisk) Size() (uint64, error) {
	return d.base.Size()
}

func (d *metricsDisk) Barrier() error {
	timer := prometheus.NewTimer(diskOperationDurationSeconds.WithLabelValues("barrier"))
	err := d.base.Barrier()
	observe("barrier", err, timer)
	return err
}

func (d *metricsDisk) Close() error {
	return d.base.Close()
}
