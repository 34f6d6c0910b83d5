// Package awsclient builds the shared AWS configuration for the SSM, EMR and
// Lambda clients.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/emr"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/zvdy/emrfleet/src/config"
)

// Clients bundles the service clients used by the fleet.
type Clients struct {
	SSM    *ssm.Client
	EMR    *emr.Client
	Lambda *lambda.Client
}

// Load resolves an aws.Config from cfg. Static keys take precedence over the
// profile; with neither, the default credential chain applies.
func Load(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	} else if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// New creates the service clients from cfg.
func New(ctx context.Context, cfg config.AWSConfig) (*Clients, error) {
	awsCfg, err := Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(awsCfg, cfg.Endpoint), nil
}

// NewFromConfig creates the service clients, pointing them at endpoint when set.
// The Lambda client never retries: commands share a per-cluster FIFO queue and
// a retried start could be enqueued after a later terminate.
func NewFromConfig(awsCfg aws.Config, endpoint string) *Clients {
	var base *string
	if endpoint != "" {
		base = aws.String(endpoint)
	}
	return &Clients{
		SSM: ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
			o.BaseEndpoint = base
		}),
		EMR: emr.NewFromConfig(awsCfg, func(o *emr.Options) {
			o.BaseEndpoint = base
		}),
		Lambda: lambda.NewFromConfig(awsCfg, func(o *lambda.Options) {
			o.BaseEndpoint = base
			o.Retryer = aws.NopRetryer{}
		}),
	}
}
