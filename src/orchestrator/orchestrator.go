// Package orchestrator reads live cluster state from EMR.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	emrtypes "github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/emrfleet/src/models"
)

// Timeline keys, as named by EMR.
const (
	TimelineCreation = "CreationDateTime"
	TimelineReady    = "ReadyDateTime"
	TimelineEnd      = "EndDateTime"
)

// ListedStates are the states requested from EMR. Terminated clusters stay
// visible for a while, so they are included to report a final observed state.
var ListedStates = []emrtypes.ClusterState{
	emrtypes.ClusterStateStarting,
	emrtypes.ClusterStateBootstrapping,
	emrtypes.ClusterStateRunning,
	emrtypes.ClusterStateWaiting,
	emrtypes.ClusterStateTerminating,
	emrtypes.ClusterStateTerminated,
	emrtypes.ClusterStateTerminatedWithErrors,
}

// API is the subset of the EMR client used by Client.
type API interface {
	ListClusters(ctx context.Context, params *emr.ListClustersInput, optFns ...func(*emr.Options)) (*emr.ListClustersOutput, error)
	DescribeCluster(ctx context.Context, params *emr.DescribeClusterInput, optFns ...func(*emr.Options)) (*emr.DescribeClusterOutput, error)
}

// Client lists live clusters.
type Client struct {
	api API
	log *logrus.Logger
}

// NewClient creates a new orchestrator client
func NewClient(api API, log *logrus.Logger) *Client {
	return &Client{api: api, log: log}
}

// ListActive returns every cluster in ListedStates, in the order EMR reports
// them. Failures produce an unavailable outcome.
func (c *Client) ListActive(ctx context.Context) models.Outcome[models.LiveClusterState] {
	var states []models.LiveClusterState

	paginator := emr.NewListClustersPaginator(c.api, &emr.ListClustersInput{
		ClusterStates: ListedStates,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.log.Warnf("Failed to list EMR clusters: %v", err)
			return models.Unavailable[models.LiveClusterState](fmt.Errorf("failed to list clusters: %w", err))
		}
		for _, summary := range page.Clusters {
			states = append(states, fromSummary(summary))
		}
	}

	c.log.Debugf("Listed %d live clusters", len(states))
	return models.Ok(states)
}

// Describe returns the full live state of one cluster, including the
// applications and tags that list summaries omit.
func (c *Client) Describe(ctx context.Context, id string) (models.LiveClusterState, error) {
	out, err := c.api.DescribeCluster(ctx, &emr.DescribeClusterInput{ClusterId: aws.String(id)})
	if err != nil {
		return models.LiveClusterState{}, fmt.Errorf("failed to describe cluster %s: %w", id, err)
	}
	if out.Cluster == nil {
		return models.LiveClusterState{}, fmt.Errorf("describe cluster %s: empty response", id)
	}

	cl := out.Cluster
	state := models.LiveClusterState{
		Name:         aws.ToString(cl.Name),
		ID:           aws.ToString(cl.Id),
		Applications: make([]models.Application, 0, len(cl.Applications)),
		Tags:         make([]models.Tag, 0, len(cl.Tags)),
	}
	applyStatus(&state, cl.Status)
	for _, app := range cl.Applications {
		state.Applications = append(state.Applications, models.Application{
			Name:    aws.ToString(app.Name),
			Version: aws.ToString(app.Version),
		})
	}
	for _, tag := range cl.Tags {
		state.Tags = append(state.Tags, models.Tag{
			Key:   aws.ToString(tag.Key),
			Value: aws.ToString(tag.Value),
		})
	}
	return state, nil
}

func fromSummary(s emrtypes.ClusterSummary) models.LiveClusterState {
	state := models.LiveClusterState{
		Name:         aws.ToString(s.Name),
		ID:           aws.ToString(s.Id),
		Applications: make([]models.Application, 0),
		Tags:         make([]models.Tag, 0),
	}
	applyStatus(&state, s.Status)
	return state
}

func applyStatus(state *models.LiveClusterState, status *emrtypes.ClusterStatus) {
	if status == nil {
		return
	}
	state.State = string(status.State)

	if r := status.StateChangeReason; r != nil {
		reason := aws.ToString(r.Message)
		if reason == "" {
			reason = string(r.Code)
		}
		if reason != "" {
			state.StateChangeReason = &reason
		}
	}

	if tl := status.Timeline; tl != nil {
		state.Timeline = make(map[string]string, 3)
		if tl.CreationDateTime != nil {
			state.Timeline[TimelineCreation] = models.FormatTimestamp(*tl.CreationDateTime)
		}
		if tl.ReadyDateTime != nil {
			state.Timeline[TimelineReady] = models.FormatTimestamp(*tl.ReadyDateTime)
		}
		if tl.EndDateTime != nil {
			state.Timeline[TimelineEnd] = models.FormatTimestamp(*tl.EndDateTime)
		}
	}
}
