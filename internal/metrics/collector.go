package metrics

import (
	"batchd/internal/batching"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "ring", "batches"),
		"Batches per ring by lifecycle state",
		[]string{"ring", "state"}, nil,
	)
	reservedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "ring", "reserved_slots"),
		"Slots reserved across the batches of a ring",
		[]string{"ring"}, nil,
	)
)

var states = []batching.State{
	batching.StateFilling, batching.StateClosing, batching.StateDispatching, batching.StateDraining,
}

// RingCollector reports ring occupancy from snapshots taken at scrape time.
type RingCollector struct {
	snapshot func() []batching.RingSnapshot
}

// NewRingCollector returns a collector reading state through snapshot.
func NewRingCollector(snapshot func() []batching.RingSnapshot) *RingCollector {
	return &RingCollector{snapshot: snapshot}
}

func (c *RingCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- batchesDesc
	ch <- reservedDesc
}

func (c *RingCollector) Collect(ch chan<- prometheus.Metric) {
	for _, rs := range c.snapshot() {
		counts := make(map[string]int, len(states))
		reserved := 0
		for _, b := range rs.Batches {
			counts[b.State]++
			reserved += b.Cursor
		}
		for _, st := range states {
			ch <- prometheus.MustNewConstMetric(batchesDesc, prometheus.GaugeValue, float64(counts[st.String()]), rs.Name, st.String())
		}
		ch <- prometheus.MustNewConstMetric(reservedDesc, prometheus.GaugeValue, float64(reserved), rs.Name)
	}
}
