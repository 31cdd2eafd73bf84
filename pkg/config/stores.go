package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/mover/pkg/store"
	badgerstore "github.com/marmos91/mover/pkg/store/badger"
	memorystore "github.com/marmos91/mover/pkg/store/memory"
	s3store "github.com/marmos91/mover/pkg/store/s3"
)

// NewStore builds the content-addressed backend selected by the
// configuration. Only the type-specific option map matching Backend.Type is
// consulted.
func NewStore(ctx context.Context, cfg BackendConfig) (store.Store, error) {
	switch cfg.Type {
	case "memory":
		return memorystore.New(), nil
	case "badger":
		return createBadgerStore(ctx, cfg)
	case "s3":
		return createS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", cfg.Type)
	}
}

// createBadgerStore creates a BadgerDB-backed store.
func createBadgerStore(ctx context.Context, cfg BackendConfig) (store.Store, error) {
	var storeCfg badgerstore.Config
	if err := mapstructure.Decode(cfg.Badger, &storeCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}

	// The generic connection string doubles as the database directory when
	// the badger section gives no explicit path.
	if storeCfg.Path == "" {
		storeCfg.Path = cfg.URL
	}

	s, err := badgerstore.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger store: %w", err)
	}

	return s, nil
}

// s3Options represents the S3 section of the backend configuration.
type s3Options struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// createS3Store creates an S3-backed store.
func createS3Store(ctx context.Context, cfg BackendConfig) (store.Store, error) {
	var opts s3Options
	if err := mapstructure.Decode(cfg.S3, &opts); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("s3 backend: region is required")
	}

	client, err := createS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	s, err := s3store.New(ctx, s3store.Config{
		Client:    client,
		Bucket:    opts.Bucket,
		KeyPrefix: opts.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 store: %w", err)
	}

	return s, nil
}

// createS3Client builds an S3 client, supporting custom endpoints (MinIO,
// Localstack) and static credentials. Without static credentials the default
// AWS credential chain applies.
func createS3Client(ctx context.Context, opts s3Options) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}
