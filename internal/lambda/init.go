package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/dwsmith1983/fleetgate/internal/alert"
	"github.com/dwsmith1983/fleetgate/internal/archive"
	"github.com/dwsmith1983/fleetgate/internal/config"
	"github.com/dwsmith1983/fleetgate/internal/dispatch"
	"github.com/dwsmith1983/fleetgate/internal/github"
	"github.com/dwsmith1983/fleetgate/internal/secrets"
	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Deps holds shared dependencies for the aggregator handler.
type Deps struct {
	Config     *types.ProjectConfig
	Thresholds types.ThresholdConfig
	Client     *github.Client
	DDB        dispatch.DDBAPI
	Store      *archive.Store
	Publisher  *archive.Publisher
	AlertFn    func(context.Context, types.Alert)
	Logger     *slog.Logger

	now func() time.Time
}

// Init creates shared dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, GITHUB_TOKEN, TOKEN_SECRET_ARN, GITHUB_API_URL,
// ARTIFACT_NAME, CONCURRENCY, THRESHOLDS_FILE, REPORT_BUCKET, REPORT_PREFIX,
// EVENT_BUS_NAME, SNS_TOPIC_ARN, ALERT_QUEUE_URL
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	if tableName == "" {
		return nil, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}
	concurrency, err := strconv.Atoi(envOrDefault("CONCURRENCY", "0"))
	if err != nil {
		return nil, fmt.Errorf("parsing CONCURRENCY: %w", err)
	}

	cfg := &types.ProjectConfig{
		GitHub: types.GitHubConfig{
			APIURL:         os.Getenv("GITHUB_API_URL"),
			TokenSecretARN: os.Getenv("TOKEN_SECRET_ARN"),
		},
		ArtifactName:  os.Getenv("ARTIFACT_NAME"),
		Concurrency:   concurrency,
		DispatchTable: &types.DynamoDBConfig{TableName: tableName, Region: region},
	}

	thresholds, err := config.LoadThresholds(envOrDefault("THRESHOLDS_FILE", ""))
	if err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	resolver := secrets.NewResolver(secrets.WithSecretsClient(secretsmanager.NewFromConfig(awsCfg)))
	token, err := resolver.Token(ctx, "", cfg.GitHub.TokenSecretARN)
	if err != nil {
		return nil, fmt.Errorf("resolving provider token: %w", err)
	}
	client, err := github.NewFromConfig(cfg.GitHub, token, logger)
	if err != nil {
		return nil, fmt.Errorf("creating provider client: %w", err)
	}

	d := &Deps{
		Config:     cfg,
		Thresholds: thresholds,
		Client:     client,
		DDB:        dynamodb.NewFromConfig(awsCfg),
		Logger:     logger,
	}

	if bucket := os.Getenv("REPORT_BUCKET"); bucket != "" {
		archiveCfg := &types.ArchiveConfig{Bucket: bucket, Prefix: os.Getenv("REPORT_PREFIX")}
		d.Store, err = archive.NewStore(ctx, archiveCfg, archive.WithS3Client(s3.NewFromConfig(awsCfg)))
		if err != nil {
			return nil, fmt.Errorf("creating report store: %w", err)
		}
	}
	if bus := os.Getenv("EVENT_BUS_NAME"); bus != "" {
		d.Publisher, err = archive.NewPublisher(ctx, &types.EventsConfig{BusName: bus},
			archive.WithEventBridgeClient(eventbridge.NewFromConfig(awsCfg)))
		if err != nil {
			return nil, fmt.Errorf("creating event publisher: %w", err)
		}
	}

	dispatcher, err := alert.NewDispatcher(ctx, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}
	if topicARN := os.Getenv("SNS_TOPIC_ARN"); topicARN != "" {
		sink, err := alert.NewSNSSink(ctx, topicARN, alert.WithSNSClient(sns.NewFromConfig(awsCfg)))
		if err != nil {
			return nil, fmt.Errorf("creating SNS sink: %w", err)
		}
		dispatcher.AddSink(sink)
	}
	if queueURL := os.Getenv("ALERT_QUEUE_URL"); queueURL != "" {
		sink, err := alert.NewSQSSink(ctx, queueURL, alert.WithSQSClient(sqs.NewFromConfig(awsCfg)))
		if err != nil {
			return nil, fmt.Errorf("creating SQS sink: %w", err)
		}
		dispatcher.AddSink(sink)
	}
	if dispatcher.Len() > 0 {
		d.AlertFn = dispatcher.AlertFunc()
	} else {
		d.AlertFn = func(_ context.Context, a types.Alert) {
			logger.Info("alert", "level", a.Level, "repo", a.Repo, "hubRunID", a.HubRunID, "message", a.Message)
		}
	}

	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
