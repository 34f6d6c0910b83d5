package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationType is the lifecycle action of a dispatched command.
type OperationType string

const (
	OperationStart     OperationType = "start"
	OperationTerminate OperationType = "terminate"
)

// OperationStatus is the dispatch result as seen by this service.
type OperationStatus string

const (
	OperationSuccess OperationStatus = "success"
	OperationFailed  OperationStatus = "failed"
)

// Operation records one dispatched lifecycle command.
type Operation struct {
	ID          string          `json:"id"`
	Type        OperationType   `json:"type"`
	ClusterName string          `json:"clusterName"`
	Timestamp   time.Time       `json:"timestamp"`
	Status      OperationStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
}

// NewOperation creates an Operation stamped with a fresh id and the current time.
func NewOperation(opType OperationType, clusterName string) Operation {
	return Operation{
		ID:          uuid.NewString(),
		Type:        opType,
		ClusterName: clusterName,
		Timestamp:   time.Now().UTC(),
		Status:      OperationSuccess,
	}
}

// Fail marks the operation as failed with err.
func (o *Operation) Fail(err error) {
	o.Status = OperationFailed
	if err != nil {
		o.Error = err.Error()
	}
}
