package orchestrator

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	emrtypes "github.com/aws/aws-sdk-go-v2/service/emr/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEMR struct {
	pages     []*emr.ListClustersOutput
	listErr   error
	listCalls []*emr.ListClustersInput

	described map[string]*emrtypes.Cluster
}

func (f *fakeEMR) ListClusters(_ context.Context, in *emr.ListClustersInput, _ ...func(*emr.Options)) (*emr.ListClustersOutput, error) {
	copied := *in
	f.listCalls = append(f.listCalls, &copied)
	if f.listErr != nil {
		return nil, f.listErr
	}
	idx := len(f.listCalls) - 1
	if idx >= len(f.pages) {
		return &emr.ListClustersOutput{}, nil
	}
	return f.pages[idx], nil
}

func (f *fakeEMR) DescribeCluster(_ context.Context, in *emr.DescribeClusterInput, _ ...func(*emr.Options)) (*emr.DescribeClusterOutput, error) {
	cl, ok := f.described[aws.ToString(in.ClusterId)]
	if !ok {
		return nil, errors.New("InvalidRequestException: cluster id is not valid")
	}
	return &emr.DescribeClusterOutput{Cluster: cl}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestListActive_RequestsStatesAndFollowsMarker(t *testing.T) {
	created := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	api := &fakeEMR{pages: []*emr.ListClustersOutput{
		{
			Clusters: []emrtypes.ClusterSummary{{
				Id:   aws.String("j-1"),
				Name: aws.String("etl-prod"),
				Status: &emrtypes.ClusterStatus{
					State: emrtypes.ClusterStateWaiting,
					StateChangeReason: &emrtypes.ClusterStateChangeReason{
						Message: aws.String("Cluster ready after last step completed."),
					},
					Timeline: &emrtypes.ClusterTimeline{CreationDateTime: &created},
				},
			}},
			Marker: aws.String("m1"),
		},
		{
			Clusters: []emrtypes.ClusterSummary{{
				Id:   aws.String("j-2"),
				Name: aws.String("reporting"),
				Status: &emrtypes.ClusterStatus{
					State: emrtypes.ClusterStateTerminated,
					StateChangeReason: &emrtypes.ClusterStateChangeReason{
						Code: emrtypes.ClusterStateChangeReasonCodeUserRequest,
					},
				},
			}},
		},
	}}
	client := NewClient(api, quietLogger())

	outcome := client.ListActive(context.Background())

	require.True(t, outcome.Available())
	require.Len(t, api.listCalls, 2)
	assert.Equal(t, ListedStates, api.listCalls[0].ClusterStates)
	assert.Equal(t, "m1", aws.ToString(api.listCalls[1].Marker))

	require.Len(t, outcome.Items, 2)
	first := outcome.Items[0]
	assert.Equal(t, "etl-prod", first.Name)
	assert.Equal(t, "j-1", first.ID)
	assert.Equal(t, "WAITING", first.State)
	require.NotNil(t, first.StateChangeReason)
	assert.Equal(t, "Cluster ready after last step completed.", *first.StateChangeReason)
	assert.Equal(t, map[string]string{TimelineCreation: "2024-05-10T08:00:00+00:00"}, first.Timeline)
	assert.Empty(t, first.Applications)
	assert.Empty(t, first.Tags)

	second := outcome.Items[1]
	require.NotNil(t, second.StateChangeReason)
	assert.Equal(t, "USER_REQUEST", *second.StateChangeReason)
	assert.Nil(t, second.Timeline)
}

func TestListActive_IncludesTerminalStates(t *testing.T) {
	assert.Contains(t, ListedStates, emrtypes.ClusterStateTerminated)
	assert.Contains(t, ListedStates, emrtypes.ClusterStateTerminatedWithErrors)
	assert.Len(t, ListedStates, 7)
}

func TestListActive_DegradesOnError(t *testing.T) {
	client := NewClient(&fakeEMR{listErr: errors.New("connection reset")}, quietLogger())

	outcome := client.ListActive(context.Background())

	assert.False(t, outcome.Available())
	assert.Empty(t, outcome.Items)
	assert.ErrorContains(t, outcome.Cause, "connection reset")
}

func TestDescribe(t *testing.T) {
	api := &fakeEMR{described: map[string]*emrtypes.Cluster{
		"j-1": {
			Id:     aws.String("j-1"),
			Name:   aws.String("etl-prod"),
			Status: &emrtypes.ClusterStatus{State: emrtypes.ClusterStateRunning},
			Applications: []emrtypes.Application{
				{Name: aws.String("Spark"), Version: aws.String("3.5.0")},
			},
			Tags: []emrtypes.Tag{{Key: aws.String("team"), Value: aws.String("data")}},
		},
	}}
	client := NewClient(api, quietLogger())

	state, err := client.Describe(context.Background(), "j-1")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", state.State)
	assert.Equal(t, "Spark", state.Applications[0].Name)
	assert.Equal(t, "3.5.0", state.Applications[0].Version)
	assert.Equal(t, "team", state.Tags[0].Key)

	_, err = client.Describe(context.Background(), "j-missing")
	assert.Error(t, err)
}

func TestStateHelpers(t *testing.T) {
	for _, s := range []string{StateStarting, StateBootstrapping, StateRunning, StateWaiting} {
		assert.True(t, IsActive(s), s)
		assert.False(t, IsTerminal(s), s)
	}
	assert.False(t, IsActive(StateTerminating))
	assert.True(t, IsTerminal(StateTerminated))
	assert.True(t, IsTerminal(StateTerminatedWithErrors))

	assert.Equal(t, "FAILED", DisplayState(StateTerminatedWithErrors))
	assert.Equal(t, "UNKNOWN", DisplayState(""))
	assert.Equal(t, "RUNNING", DisplayState(StateRunning))
}
