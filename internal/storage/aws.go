package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/notification-agent/internal/config"
)

// AWSClients bundles the service clients the agent talks to. All share one
// aws.Config.
type AWSClients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	SES      *sesv2.Client
	SQS      *sqs.Client
}

// LoadAWSConfig resolves region, profile and credentials. Static keys win
// over the default chain; an empty profile means the IAM role on ECS.
func LoadAWSConfig(ctx context.Context, c config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if profile := c.GetProfile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	if c.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(c.Endpoint)
	}
	return cfg, nil
}

// NewAWSClients builds every client from one config.
func NewAWSClients(ctx context.Context, c config.AWSConfig) (*AWSClients, error) {
	cfg, err := LoadAWSConfig(ctx, c)
	if err != nil {
		return nil, err
	}
	return &AWSClients{
		DynamoDB: dynamodb.NewFromConfig(cfg),
		S3: s3.NewFromConfig(cfg, func(o *s3.Options) {
			// localstack serves buckets by path, not virtual host
			o.UsePathStyle = c.Endpoint != ""
		}),
		SES: sesv2.NewFromConfig(cfg),
		SQS: sqs.NewFromConfig(cfg),
	}, nil
}
