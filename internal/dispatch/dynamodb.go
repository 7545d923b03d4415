package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// DDBAPI is the subset of the DynamoDB client used by DynamoSource.
type DDBAPI interface {
	Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoSource reads the dispatch records of one hub run from a table keyed
// PK=HUBRUN#<hub run id>, SK=REPO#<owner/name>.
type DynamoSource struct {
	client    DDBAPI
	tableName string
	hubRunID  string
	logger    *slog.Logger
}

// DynamoOption configures a DynamoSource.
type DynamoOption func(*DynamoSource)

// WithDDBClient sets a custom DynamoDB client (useful for testing).
func WithDDBClient(c DDBAPI) DynamoOption {
	return func(s *DynamoSource) { s.client = c }
}

// WithDynamoLogger sets the logger.
func WithDynamoLogger(l *slog.Logger) DynamoOption {
	return func(s *DynamoSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewDynamoSource creates a DynamoSource. Without WithDDBClient the AWS default
// credential chain is used; cfg.Endpoint targets DynamoDB Local.
func NewDynamoSource(ctx context.Context, cfg *types.DynamoDBConfig, hubRunID string, opts ...DynamoOption) (*DynamoSource, error) {
	if cfg == nil || cfg.TableName == "" {
		return nil, fmt.Errorf("dispatch table name is required")
	}
	if hubRunID == "" {
		return nil, fmt.Errorf("hub run id is required to query dispatch table %s", cfg.TableName)
	}

	s := &DynamoSource{
		tableName: cfg.TableName,
		hubRunID:  hubRunID,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.client != nil {
		return s, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	s.client = dynamodb.NewFromConfig(awsCfg, clientOpts...)
	return s, nil
}

// Load queries every REPO# item under the hub run partition, following
// pagination. Items come back in sort-key order.
func (s *DynamoSource) Load(ctx context.Context) ([]types.DispatchEntry, error) {
	var (
		out       []types.DispatchEntry
		startKey  map[string]ddbtypes.AttributeValue
		pageCount int
	)
	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     &ddbtypes.AttributeValueMemberS{Value: hubRunPK(s.hubRunID)},
				":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRepo},
			},
			ExclusiveStartKey: startKey,
			ConsistentRead:    aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("querying dispatch table %s: %w", s.tableName, err)
		}
		pageCount++

		var page []types.DispatchEntry
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &page); err != nil {
			return nil, fmt.Errorf("decoding dispatch records: %w", err)
		}
		for _, e := range page {
			if e.Repo == "" {
				s.logger.Warn("skipping dispatch record without repo", "table", s.tableName, "hubRunID", s.hubRunID)
				continue
			}
			out = append(out, e)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		startKey = resp.LastEvaluatedKey
	}

	s.logger.Info("dispatch metadata loaded", "table", s.tableName, "hubRunID", s.hubRunID, "entries", len(out), "pages", pageCount)
	return out, nil
}
