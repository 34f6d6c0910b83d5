package collector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zvdy/emrfleet/src/models"
	"github.com/zvdy/emrfleet/src/reconcile"
)

// Lister lists the merged fleet.
type Lister interface {
	ListClusters(ctx context.Context) ([]models.MergedClusterRecord, error)
}

// ClusterCollector periodically counts clusters per state for the metrics
// gauge. The counts are never served to API callers.
type ClusterCollector struct {
	lister   Lister
	publish  func(map[string]int)
	log      *logrus.Logger
	interval time.Duration
}

// NewClusterCollector creates a new ClusterCollector instance. publish
// receives the per-state counts after every successful collection.
func NewClusterCollector(lister Lister, publish func(map[string]int), log *logrus.Logger, interval time.Duration) *ClusterCollector {
	return &ClusterCollector{
		lister:   lister,
		publish:  publish,
		log:      log,
		interval: interval,
	}
}

// Start begins collecting cluster states
func (cc *ClusterCollector) Start(ctx context.Context) {
	ticker := time.NewTicker(cc.interval)
	defer ticker.Stop()

	cc.log.Info("Cluster collector started")

	// Initial collection
	cc.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			cc.log.Info("Cluster collector stopped")
			return
		case <-ticker.C:
			cc.collect(ctx)
		}
	}
}

func (cc *ClusterCollector) collect(ctx context.Context) {
	if err := cc.Collect(ctx); err != nil {
		cc.log.Errorf("Failed to collect cluster states: %v", err)
	}
}

// Collect lists the fleet once and publishes the state counts.
func (cc *ClusterCollector) Collect(ctx context.Context) error {
	clusters, err := cc.lister.ListClusters(ctx)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for state, group := range reconcile.GroupByState(clusters) {
		counts[state] = len(group)
	}

	if cc.publish != nil {
		cc.publish(counts)
	}
	cc.log.WithField("clusters", len(clusters)).Debug("Collected cluster states")
	return nil
}
