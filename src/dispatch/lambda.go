package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaAPI is the subset of the Lambda client used by LambdaExecutor.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// LambdaExecutor invokes a function that enqueues envelopes on a FIFO queue
// grouped by the command's fifo_key. The key is carried inside the envelope
// body, so the invocation itself does not use it.
type LambdaExecutor struct {
	api          LambdaAPI
	functionName string
	timeout      time.Duration
}

// NewLambdaExecutor creates an executor invoking functionName. A positive
// timeout bounds each invocation.
func NewLambdaExecutor(api LambdaAPI, functionName string, timeout time.Duration) *LambdaExecutor {
	return &LambdaExecutor{
		api:          api,
		functionName: functionName,
		timeout:      timeout,
	}
}

func singleAttempt(o *lambda.Options) {
	o.Retryer = aws.NopRetryer{}
}

// EnqueueOrdered invokes the function synchronously and returns its payload.
// Each call makes a single attempt, whatever retryer the client was built
// with: a retried start could land after a later terminate.
func (e *LambdaExecutor) EnqueueOrdered(ctx context.Context, key string, env Envelope) ([]byte, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope for %s: %w", key, err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(e.functionName),
		InvocationType: lambdatypes.InvocationTypeRequestResponse,
		Payload:        payload,
	}, singleAttempt)
	if err != nil {
		return nil, &DispatchError{Err: fmt.Errorf("failed to invoke %s: %w", e.functionName, err)}
	}

	if fnErr := aws.ToString(out.FunctionError); fnErr != "" || out.StatusCode < 200 || out.StatusCode > 299 {
		return nil, &DispatchError{
			StatusCode:    out.StatusCode,
			FunctionError: fnErr,
			Payload:       out.Payload,
		}
	}

	return out.Payload, nil
}
