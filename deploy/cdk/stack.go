package main

import (
	"path/filepath"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsevents"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslambda"
	"github.com/aws/aws-cdk-go/awscdk/v2/awslogs"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssecretsmanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssns"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// NewFleetgateStack provisions the dispatch table, report bucket, alert topic,
// event bus and the aggregator Lambda that ties them together.
func NewFleetgateStack(scope constructs.Construct, id string, cfg StackConfig) awscdk.Stack {
	stack := awscdk.NewStack(scope, &id, nil)

	// Dispatch records: PK=HUBRUN#<id>, SK=REPO#<owner/name>
	table := awsdynamodb.NewTableV2(stack, jsii.String("DispatchTable"), &awsdynamodb.TablePropsV2{
		TableName: jsii.String(cfg.Name + "-dispatch"),
		PartitionKey: &awsdynamodb.Attribute{
			Name: jsii.String("PK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		SortKey: &awsdynamodb.Attribute{
			Name: jsii.String("SK"),
			Type: awsdynamodb.AttributeType_STRING,
		},
		Billing:             awsdynamodb.Billing_OnDemand(nil),
		TimeToLiveAttribute: jsii.String("ttl"),
		RemovalPolicy:       removalPolicy(cfg.DestroyOnDelete),
	})

	bucket := awss3.NewBucket(stack, jsii.String("ReportBucket"), &awss3.BucketProps{
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		Encryption:        awss3.BucketEncryption_S3_MANAGED,
		EnforceSSL:        jsii.Bool(true),
		RemovalPolicy:     removalPolicy(cfg.DestroyOnDelete),
		AutoDeleteObjects: jsii.Bool(cfg.DestroyOnDelete),
		LifecycleRules: &[]*awss3.LifecycleRule{
			{
				Prefix:     jsii.String(cfg.ReportPrefix + "/"),
				Expiration: awscdk.Duration_Days(jsii.Number(cfg.ReportRetentionDays)),
			},
		},
	})

	topic := awssns.NewTopic(stack, jsii.String("AlertTopic"), &awssns.TopicProps{
		TopicName: jsii.String(cfg.Name + "-alerts"),
	})

	bus := awsevents.NewEventBus(stack, jsii.String("EventBus"), &awsevents.EventBusProps{
		EventBusName: jsii.String(cfg.Name),
	})

	env := &map[string]*string{
		"TABLE_NAME":     table.TableName(),
		"REPORT_BUCKET":  bucket.BucketName(),
		"REPORT_PREFIX":  jsii.String(cfg.ReportPrefix),
		"EVENT_BUS_NAME": bus.EventBusName(),
		"SNS_TOPIC_ARN":  topic.TopicArn(),
	}
	if cfg.GitHubAPIURL != "" {
		(*env)["GITHUB_API_URL"] = jsii.String(cfg.GitHubAPIURL)
	}
	if cfg.ArtifactName != "" {
		(*env)["ARTIFACT_NAME"] = jsii.String(cfg.ArtifactName)
	}
	if cfg.TokenSecretARN != "" {
		(*env)["TOKEN_SECRET_ARN"] = jsii.String(cfg.TokenSecretARN)
	}

	aggregatorFn := awslambda.NewFunction(stack, jsii.String("aggregator"), &awslambda.FunctionProps{
		FunctionName: jsii.String(cfg.Name + "-aggregator"),
		Runtime:      awslambda.Runtime_PROVIDED_AL2023(),
		Handler:      jsii.String("bootstrap"),
		Code:         awslambda.Code_FromAsset(jsii.String(filepath.Join(cfg.LambdaDistDir, "aggregator")), nil),
		Architecture: awslambda.Architecture_ARM_64(),
		MemorySize:   jsii.Number(cfg.MemorySize),
		Timeout:      awscdk.Duration_Seconds(jsii.Number(cfg.Timeout)),
		Environment:  env,
		LogRetention: logRetentionDays(cfg.LogRetentionDays),
	})

	table.GrantReadData(aggregatorFn)
	bucket.GrantPut(aggregatorFn, jsii.String(cfg.ReportPrefix+"/*"))
	topic.GrantPublish(aggregatorFn)
	aggregatorFn.AddToRolePolicy(awsiam.NewPolicyStatement(&awsiam.PolicyStatementProps{
		Actions:   &[]*string{jsii.String("events:PutEvents")},
		Resources: &[]*string{bus.EventBusArn()},
	}))
	if cfg.TokenSecretARN != "" {
		secret := awssecretsmanager.Secret_FromSecretCompleteArn(stack, jsii.String("TokenSecret"), jsii.String(cfg.TokenSecretARN))
		secret.GrantRead(aggregatorFn, nil)
	}

	awscdk.NewCfnOutput(stack, jsii.String("TableName"), &awscdk.CfnOutputProps{
		Value: table.TableName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("ReportBucket"), &awscdk.CfnOutputProps{
		Value: bucket.BucketName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("TopicArn"), &awscdk.CfnOutputProps{
		Value: topic.TopicArn(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("EventBusName"), &awscdk.CfnOutputProps{
		Value: bus.EventBusName(),
	})
	awscdk.NewCfnOutput(stack, jsii.String("AggregatorFunctionArn"), &awscdk.CfnOutputProps{
		Value: aggregatorFn.FunctionArn(),
	})

	return stack
}

func removalPolicy(destroy bool) awscdk.RemovalPolicy {
	if destroy {
		return awscdk.RemovalPolicy_DESTROY
	}
	return awscdk.RemovalPolicy_RETAIN
}

func logRetentionDays(days float64) awslogs.RetentionDays {
	switch days {
	case 1:
		return awslogs.RetentionDays_ONE_DAY
	case 3:
		return awslogs.RetentionDays_THREE_DAYS
	case 7:
		return awslogs.RetentionDays_ONE_WEEK
	case 14:
		return awslogs.RetentionDays_TWO_WEEKS
	case 30:
		return awslogs.RetentionDays_ONE_MONTH
	case 90:
		return awslogs.RetentionDays_THREE_MONTHS
	case 365:
		return awslogs.RetentionDays_ONE_YEAR
	default:
		return awslogs.RetentionDays_ONE_WEEK
	}
}
