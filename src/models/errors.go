package models

import "errors"

var (
	// ErrRecordNotFound is returned when a single-record registry lookup finds no key.
	ErrRecordNotFound = errors.New("record not found")

	// ErrClusterNotFound is returned when a cluster name is unknown or not allowed.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrUpstreamUnavailable marks failures of the registry or orchestrator as a whole.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
