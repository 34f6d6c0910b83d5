// Package registry reads declared cluster records from SSM Parameter Store.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/zvdy/emrfleet/src/models"
)

// RawValueKey holds the original payload of a record that is not valid JSON.
const RawValueKey = "rawValue"

// API is the subset of the SSM client used by Client.
type API interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Client reads cluster configuration records stored under a key prefix.
type Client struct {
	api             API
	prefix          string
	exclusionMarker string
	log             *logrus.Logger
}

// NewClient creates a registry client for records under prefix. Records whose
// name contains exclusionMarker are dropped from full listings.
func NewClient(api API, prefix, exclusionMarker string, log *logrus.Logger) *Client {
	return &Client{
		api:             api,
		prefix:          prefix,
		exclusionMarker: exclusionMarker,
		log:             log,
	}
}

// Prefix returns the key prefix the client reads from.
func (c *Client) Prefix() string {
	return c.prefix
}

// FetchAll returns every record under the prefix, following NextToken until
// the registry reports no further pages. Registry failures produce an
// unavailable outcome instead of an error.
func (c *Client) FetchAll(ctx context.Context) models.Outcome[models.ClusterConfigRecord] {
	var params []ssmtypes.Parameter

	paginator := ssm.NewGetParametersByPathPaginator(c.api, &ssm.GetParametersByPathInput{
		Path:           aws.String(c.prefix),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"prefix": c.prefix,
				"pages":  pages,
			}).Warnf("Failed to fetch cluster configurations: %v", err)
			return models.Unavailable[models.ClusterConfigRecord](
				fmt.Errorf("failed to list parameters under %s: %w", c.prefix, err))
		}
		pages++
		params = append(params, page.Parameters...)
	}

	records := make([]models.ClusterConfigRecord, 0, len(params))
	for _, p := range params {
		key := aws.ToString(p.Name)
		name := c.nameFromKey(key)
		if c.exclusionMarker != "" && strings.Contains(name, c.exclusionMarker) {
			continue
		}
		records = append(records, c.toRecord(p))
	}

	c.log.Debugf("Fetched %d cluster configurations (%d pages, %d parameters)", len(records), pages, len(params))
	return models.Ok(records)
}

// FetchOne returns the record for a single cluster name. A missing key yields
// models.ErrRecordNotFound; any other failure wraps models.ErrUpstreamUnavailable.
func (c *Client) FetchOne(ctx context.Context, name string) (models.ClusterConfigRecord, error) {
	key := c.prefix + name
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(key),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if isNotFoundError(err) {
			return models.ClusterConfigRecord{}, fmt.Errorf("parameter %s: %w", key, models.ErrRecordNotFound)
		}
		c.log.WithField("key", key).Warnf("Failed to fetch cluster configuration: %v", err)
		return models.ClusterConfigRecord{}, fmt.Errorf("failed to get parameter %s: %w: %w", key, models.ErrUpstreamUnavailable, err)
	}
	if out.Parameter == nil {
		return models.ClusterConfigRecord{}, fmt.Errorf("parameter %s: %w", key, models.ErrRecordNotFound)
	}
	return c.toRecord(*out.Parameter), nil
}

func (c *Client) nameFromKey(key string) string {
	return strings.TrimPrefix(key, c.prefix)
}

func (c *Client) toRecord(p ssmtypes.Parameter) models.ClusterConfigRecord {
	key := aws.ToString(p.Name)
	return models.NewClusterConfigRecord(c.nameFromKey(key), key, ParsePayload(aws.ToString(p.Value)), p.LastModifiedDate)
}

// ParsePayload decodes a record payload as JSON, falling back to
// {"rawValue": raw} when it is not valid JSON.
func ParsePayload(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]interface{}{RawValueKey: raw}
	}
	return v
}

// isNotFoundError checks if the error is a missing parameter.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var pnf *ssmtypes.ParameterNotFound
	if errors.As(err, &pnf) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ParameterNotFound"
	}

	return false
}
