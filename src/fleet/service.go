// Package fleet serves the merged cluster view and lifecycle commands.
package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zvdy/emrfleet/src/dispatch"
	"github.com/zvdy/emrfleet/src/journal"
	"github.com/zvdy/emrfleet/src/metrics"
	"github.com/zvdy/emrfleet/src/models"
	"github.com/zvdy/emrfleet/src/orchestrator"
	"github.com/zvdy/emrfleet/src/reconcile"
)

// Registry reads declared cluster records.
type Registry interface {
	FetchAll(ctx context.Context) models.Outcome[models.ClusterConfigRecord]
	FetchOne(ctx context.Context, name string) (models.ClusterConfigRecord, error)
}

// Orchestrator reads live cluster state.
type Orchestrator interface {
	ListActive(ctx context.Context) models.Outcome[models.LiveClusterState]
	Describe(ctx context.Context, id string) (models.LiveClusterState, error)
}

// Dispatcher sends lifecycle commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, clusterName string, action dispatch.Action) (json.RawMessage, error)
}

// Options tune the service.
type Options struct {
	// AllowedCluster restricts every operation to one cluster name when set.
	AllowedCluster string
	// FailOnUnavailable turns whole-fetch failures into errors instead of
	// empty results.
	FailOnUnavailable bool
	// DescribeMatched fetches applications and tags for matched clusters.
	DescribeMatched     bool
	DescribeConcurrency int
}

// Service combines the registry, the orchestrator and the dispatcher.
type Service struct {
	registry     Registry
	orchestrator Orchestrator
	engine       *reconcile.Engine
	dispatcher   Dispatcher
	journal      journal.Store
	opts         Options
	log          *logrus.Logger
}

// NewService creates a new fleet service. A nil store disables the journal.
func NewService(
	registry Registry,
	orchestrator Orchestrator,
	engine *reconcile.Engine,
	dispatcher Dispatcher,
	store journal.Store,
	opts Options,
	log *logrus.Logger,
) *Service {
	if store == nil {
		store = journal.Nop{}
	}
	if opts.DescribeConcurrency < 1 {
		opts.DescribeConcurrency = 4
	}
	return &Service{
		registry:     registry,
		orchestrator: orchestrator,
		engine:       engine,
		dispatcher:   dispatcher,
		journal:      store,
		opts:         opts,
		log:          log,
	}
}

// Restricted reports whether the service serves a single cluster.
func (s *Service) Restricted() bool {
	return s.opts.AllowedCluster != ""
}

func (s *Service) allowed(name string) error {
	if s.Restricted() && name != s.opts.AllowedCluster {
		return fmt.Errorf("cluster %s: %w", name, models.ErrClusterNotFound)
	}
	return nil
}

// ListClusters returns the merged view of every configured cluster. In
// restricted mode only the allowed cluster is listed.
func (s *Service) ListClusters(ctx context.Context) ([]models.MergedClusterRecord, error) {
	var configs []models.ClusterConfigRecord
	var live models.Outcome[models.LiveClusterState]

	if s.Restricted() {
		rec, err := s.registry.FetchOne(ctx, s.opts.AllowedCluster)
		switch {
		case errors.Is(err, models.ErrRecordNotFound):
			metrics.RecordFetch(metrics.SourceRegistry, true)
			return make([]models.MergedClusterRecord, 0), nil
		case err != nil:
			metrics.RecordFetch(metrics.SourceRegistry, false)
			if s.opts.FailOnUnavailable {
				return nil, err
			}
			s.log.WithField("source", metrics.SourceRegistry).Warnf("Upstream unavailable, continuing with empty result: %v", err)
			return make([]models.MergedClusterRecord, 0), nil
		}
		metrics.RecordFetch(metrics.SourceRegistry, true)
		configs = []models.ClusterConfigRecord{rec}
		live = s.orchestrator.ListActive(ctx)
		metrics.RecordFetch(metrics.SourceOrchestrator, live.Available())
	} else {
		var cfgOutcome models.Outcome[models.ClusterConfigRecord]
		cfgOutcome, live = s.fetchBoth(ctx)
		if err := s.checkOutcome(metrics.SourceRegistry, cfgOutcome.Cause); err != nil {
			return nil, err
		}
		configs = cfgOutcome.Items
	}

	if err := s.checkOutcome(metrics.SourceOrchestrator, live.Cause); err != nil {
		return nil, err
	}

	merged := s.engine.Merge(configs, live.Items)
	if s.opts.DescribeMatched {
		s.describeMatched(ctx, merged)
	}
	return merged, nil
}

// fetchBoth reads configuration and live state concurrently. Neither fetch
// fails the group; each outcome carries its own cause.
func (s *Service) fetchBoth(ctx context.Context) (models.Outcome[models.ClusterConfigRecord], models.Outcome[models.LiveClusterState]) {
	var (
		cfgOutcome  models.Outcome[models.ClusterConfigRecord]
		liveOutcome models.Outcome[models.LiveClusterState]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfgOutcome = s.registry.FetchAll(gctx)
		return nil
	})
	g.Go(func() error {
		liveOutcome = s.orchestrator.ListActive(gctx)
		return nil
	})
	_ = g.Wait()

	metrics.RecordFetch(metrics.SourceRegistry, cfgOutcome.Available())
	metrics.RecordFetch(metrics.SourceOrchestrator, liveOutcome.Available())
	return cfgOutcome, liveOutcome
}

func (s *Service) checkOutcome(source string, cause error) error {
	if cause == nil {
		return nil
	}
	if s.opts.FailOnUnavailable {
		return fmt.Errorf("%s: %w: %w", source, models.ErrUpstreamUnavailable, cause)
	}
	s.log.WithField("source", source).Warnf("Upstream unavailable, continuing with empty result: %v", cause)
	return nil
}

// describeMatched replaces applications and tags of matched records with the
// detailed view. Terminated clusters are skipped. Failures leave the record
// as merged.
func (s *Service) describeMatched(ctx context.Context, merged []models.MergedClusterRecord) {
	running := make([]models.MergedClusterRecord, 0, len(merged))
	for _, rec := range merged {
		if !orchestrator.IsTerminal(rec.State) {
			running = append(running, rec)
		}
	}
	ids := reconcile.MatchedIDs(running)
	details := make([]*models.LiveClusterState, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.DescribeConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			detail, err := s.orchestrator.Describe(gctx, id)
			if err != nil {
				s.log.WithField("cluster_id", id).Warnf("Failed to describe cluster: %v", err)
				return nil
			}
			details[i] = &detail
			return nil
		})
	}
	_ = g.Wait()

	byID := make(map[string]*models.LiveClusterState, len(ids))
	for i, id := range ids {
		if details[i] != nil {
			byID[id] = details[i]
		}
	}
	for i := range merged {
		if merged[i].ClusterID == nil {
			continue
		}
		if detail, ok := byID[*merged[i].ClusterID]; ok {
			merged[i].Applications = detail.Applications
			merged[i].Tags = detail.Tags
		}
	}
}

// GetCluster returns the merged view of one cluster.
func (s *Service) GetCluster(ctx context.Context, name string) (models.MergedClusterRecord, error) {
	if err := s.allowed(name); err != nil {
		return models.MergedClusterRecord{}, err
	}

	clusters, err := s.ListClusters(ctx)
	if err != nil {
		return models.MergedClusterRecord{}, err
	}
	for _, c := range clusters {
		if c.Name == name {
			return c, nil
		}
	}
	return models.MergedClusterRecord{}, fmt.Errorf("cluster %s: %w", name, models.ErrClusterNotFound)
}

// Stats summarizes the fleet by state.
func (s *Service) Stats(ctx context.Context) (models.FleetStats, error) {
	clusters, err := s.ListClusters(ctx)
	if err != nil {
		return models.FleetStats{}, err
	}
	return reconcile.Stats(clusters), nil
}

// StartCluster asks the executor to create name.
func (s *Service) StartCluster(ctx context.Context, name string) (json.RawMessage, error) {
	return s.run(ctx, name, dispatch.ActionStart, models.OperationStart)
}

// TerminateCluster asks the executor to terminate name immediately.
func (s *Service) TerminateCluster(ctx context.Context, name string) (json.RawMessage, error) {
	return s.run(ctx, name, dispatch.ActionTerminate, models.OperationTerminate)
}

func (s *Service) run(ctx context.Context, name string, action dispatch.Action, opType models.OperationType) (json.RawMessage, error) {
	if err := s.allowed(name); err != nil {
		return nil, err
	}

	op := models.NewOperation(opType, name)
	start := time.Now()
	payload, err := s.dispatcher.Dispatch(ctx, name, action)
	metrics.RecordDispatch(string(action), err, time.Since(start))
	if err != nil {
		op.Fail(err)
	}

	if jerr := s.journal.Record(context.WithoutCancel(ctx), op); jerr != nil {
		s.log.WithField("cluster", name).Warnf("Failed to record operation: %v", jerr)
	}
	return payload, err
}

// RecentOperations returns the latest dispatched commands, newest first.
func (s *Service) RecentOperations(ctx context.Context, limit int) ([]models.Operation, error) {
	return s.journal.Recent(ctx, limit)
}

// Ready reports whether the configuration registry answers.
func (s *Service) Ready(ctx context.Context) error {
	if s.Restricted() {
		_, err := s.registry.FetchOne(ctx, s.opts.AllowedCluster)
		if err != nil && !errors.Is(err, models.ErrRecordNotFound) {
			return err
		}
		return nil
	}
	if out := s.registry.FetchAll(ctx); !out.Available() {
		return fmt.Errorf("registry: %w: %w", models.ErrUpstreamUnavailable, out.Cause)
	}
	return nil
}
