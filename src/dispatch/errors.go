package dispatch

import (
	"errors"
	"fmt"
)

// DispatchError reports a failed executor invocation: a transport failure, a
// function error or a non-success status. Payload carries whatever the
// executor returned.
type DispatchError struct {
	Action        Action
	Cluster       string
	StatusCode    int32
	FunctionError string
	Payload       []byte
	Err           error
}

func (e *DispatchError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Action, e.Cluster)
	if e.FunctionError != "" {
		msg += fmt.Sprintf(": function error %s", e.FunctionError)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// withCommand fills in the command identity of err, wrapping plain errors.
func withCommand(err error, action Action, cluster string) error {
	var de *DispatchError
	if errors.As(err, &de) {
		de.Action = action
		de.Cluster = cluster
		return de
	}
	return &DispatchError{Action: action, Cluster: cluster, Err: err}
}
