package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zvdy/emrfleet/src/journal"
)

// journalPoolCollector exposes the journal database pool as gauges.
type journalPoolCollector struct {
	stats func() journal.PoolStats

	acquiredDesc *prometheus.Desc
	idleDesc     *prometheus.Desc
	totalDesc    *prometheus.Desc
}

// RegisterJournalPool exports the pool statistics of a Postgres journal.
func RegisterJournalPool(reg prometheus.Registerer, stats func() journal.PoolStats) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return registerCollector(reg, &journalPoolCollector{
		stats:        stats,
		acquiredDesc: prometheus.NewDesc("emrfleet_journal_pool_acquired", "Journal connections in use", nil, nil),
		idleDesc:     prometheus.NewDesc("emrfleet_journal_pool_idle", "Idle journal connections", nil, nil),
		totalDesc:    prometheus.NewDesc("emrfleet_journal_pool_total", "Open journal connections", nil, nil),
	})
}

func (c *journalPoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.idleDesc
	ch <- c.totalDesc
}

func (c *journalPoolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.idleDesc, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(s.Total))
}
