package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dupmover"

// Collector holds the counters for a single run in its own registry.
type Collector struct {
	registry *prometheus.Registry

	FilesProcessed prometheus.Counter
	FilesSkipped   *prometheus.CounterVec
	Duplicates     *prometheus.CounterVec
	BytesRelocated prometheus.Counter
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Files hashed successfully.",
		}),
		FilesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Files skipped, by reason.",
		}, []string{"reason"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_total",
			Help:      "Duplicates found, by relocation outcome.",
		}, []string{"moved"}),
		BytesRelocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_relocated_total",
			Help:      "Bytes moved into the duplicate folder.",
		}),
	}
	c.registry.MustRegister(c.FilesProcessed, c.FilesSkipped, c.Duplicates, c.BytesRelocated)
	return c
}

func (c *Collector) Processed() {
	c.FilesProcessed.Inc()
}

func (c *Collector) Skipped(reason string) {
	c.FilesSkipped.WithLabelValues(reason).Inc()
}

func (c *Collector) Duplicate(moved bool, size int64) {
	c.Duplicates.WithLabelValues(strconv.FormatBool(moved)).Inc()
	if moved {
		c.BytesRelocated.Add(float64(size))
	}
}

// Registry exposes the underlying registry as a Gatherer.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the counters in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Registry())
}
