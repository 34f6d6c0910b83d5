// Package dispatch sends cluster lifecycle commands to the asynchronous executor.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Envelope routing, as expected by the executor's HTTP-style entry point.
const (
	ExecutionsPath = "/executions/clusters"

	JobTypeCluster         = "CLUSTER"
	RequestTypeCreate      = "CREATE"
	RequestTypeDelete      = "DELETE"
	TerminationModeDefault = "IMMEDIATE"
)

// Action is a lifecycle transition.
type Action string

const (
	ActionStart     Action = "start"
	ActionTerminate Action = "terminate"
)

// Envelope is the request handed to the executor. Body holds the JSON-encoded
// CommandBody.
type Envelope struct {
	Resource   string `json:"resource"`
	Path       string `json:"path"`
	Body       string `json:"body"`
	HTTPMethod string `json:"httpMethod"`
}

// CommandBody is the payload of an Envelope. FifoKey orders commands for the
// same cluster in the executor's queue.
type CommandBody struct {
	ClusterName     string `json:"cluster_name"`
	JobType         string `json:"job_type"`
	RequestType     string `json:"request_type"`
	FifoKey         string `json:"fifo_key"`
	TerminationMode string `json:"termination_mode,omitempty"`
}

// Executor processes envelopes sharing a key in submission order and never
// concurrently. EnqueueOrdered blocks until the executor answers and returns
// its raw response payload.
type Executor interface {
	EnqueueOrdered(ctx context.Context, key string, env Envelope) ([]byte, error)
}

// Dispatcher builds command envelopes and hands them to an Executor. It keeps
// no local state; ordering is the executor's responsibility.
type Dispatcher struct {
	executor Executor
	log      *logrus.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(executor Executor, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{executor: executor, log: log}
}

// BuildEnvelope returns the envelope for action on clusterName.
func BuildEnvelope(clusterName string, action Action) (Envelope, error) {
	body := CommandBody{
		ClusterName: clusterName,
		JobType:     JobTypeCluster,
		FifoKey:     clusterName,
	}
	method := "POST"

	switch action {
	case ActionStart:
		body.RequestType = RequestTypeCreate
	case ActionTerminate:
		body.RequestType = RequestTypeDelete
		body.TerminationMode = TerminationModeDefault
		method = "DELETE"
	default:
		return Envelope{}, fmt.Errorf("unknown action: %s", action)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode command body: %w", err)
	}

	return Envelope{
		Resource:   ExecutionsPath,
		Path:       ExecutionsPath,
		Body:       string(encoded),
		HTTPMethod: method,
	}, nil
}

// Start requests creation of clusterName.
func (d *Dispatcher) Start(ctx context.Context, clusterName string) (json.RawMessage, error) {
	return d.Dispatch(ctx, clusterName, ActionStart)
}

// Terminate requests immediate termination of clusterName.
func (d *Dispatcher) Terminate(ctx context.Context, clusterName string) (json.RawMessage, error) {
	return d.Dispatch(ctx, clusterName, ActionTerminate)
}

// Dispatch sends action for clusterName and returns the executor response
// unmodified. No existence or state check is made; the executor owns
// validation and idempotency.
func (d *Dispatcher) Dispatch(ctx context.Context, clusterName string, action Action) (json.RawMessage, error) {
	env, err := BuildEnvelope(clusterName, action)
	if err != nil {
		return nil, err
	}

	logger := d.log.WithFields(logrus.Fields{
		"cluster": clusterName,
		"action":  action,
	})
	logger.Info("Dispatching cluster command")

	payload, err := d.executor.EnqueueOrdered(ctx, clusterName, env)
	if err != nil {
		logger.Errorf("Cluster command failed: %v", err)
		return nil, withCommand(err, action, clusterName)
	}

	if !json.Valid(payload) {
		err := &DispatchError{
			Action:  action,
			Cluster: clusterName,
			Payload: payload,
			Err:     fmt.Errorf("executor response is not valid JSON"),
		}
		logger.Error(err.Error())
		return nil, err
	}

	logger.Debug("Cluster command accepted by executor")
	return json.RawMessage(payload), nil
}
