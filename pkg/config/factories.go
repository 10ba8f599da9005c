package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/spacemaster/spacedrive/internal/logger"
	"github.com/spacemaster/spacedrive/pkg/blob"
	blobMemory "github.com/spacemaster/spacedrive/pkg/blob/memory"
	blobS3 "github.com/spacemaster/spacedrive/pkg/blob/s3"
	"github.com/spacemaster/spacedrive/pkg/identity"
	"github.com/spacemaster/spacedrive/pkg/metadata"
	metaBadger "github.com/spacemaster/spacedrive/pkg/metadata/badger"
	metaMemory "github.com/spacemaster/spacedrive/pkg/metadata/memory"
)

// CreateMetadataStore creates a metadata store based on configuration.
//
// This factory uses the Type field to determine which store
// implementation to create, then decodes the type-specific option map
// and passes it to the store's constructor.
//
// Supported types:
//   - "memory": pkg/metadata/memory (in-memory, ephemeral)
//   - "badger": pkg/metadata/badger (BadgerDB, persistent)
func CreateMetadataStore(ctx context.Context, cfg *MetadataConfig) (metadata.MetadataStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return metaMemory.NewMemoryMetadataStore(), nil
	case "badger":
		store, err := metaBadger.NewBadgerMetadataStoreFromOptions(cfg.Badger)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q (supported: memory, badger)", cfg.Type)
	}
}

// CreateBlobStore creates a blob store based on configuration.
//
// Supported types:
//   - "memory": pkg/blob/memory (in-memory, ephemeral)
//   - "s3": pkg/blob/s3 (Amazon S3 or compatible storage)
func CreateBlobStore(ctx context.Context, cfg *BlobConfig) (blob.BlobStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return blobMemory.NewMemoryBlobStore(), nil
	case "s3":
		return createS3BlobStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q (supported: memory, s3)", cfg.Type)
	}
}

// createS3BlobStore builds an S3 client from the option map and wraps
// it in the S3 blob store.
func createS3BlobStore(ctx context.Context, options map[string]any) (blob.BlobStore, error) {
	type S3BlobStoreOptions struct {
		Region          string        `mapstructure:"region"`
		Bucket          string        `mapstructure:"bucket"`
		KeyPrefix       string        `mapstructure:"key_prefix"`
		Endpoint        string        `mapstructure:"endpoint"`
		AccessKeyID     string        `mapstructure:"access_key_id"`
		SecretAccessKey string        `mapstructure:"secret_access_key"`
		URLTTL          time.Duration `mapstructure:"url_ttl"`
		MaxRetries      int           `mapstructure:"max_retries"`
	}

	var storeOpts S3BlobStoreOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &storeOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode S3 blob store options: %w", err)
	}

	if storeOpts.Bucket == "" {
		return nil, fmt.Errorf("S3 blob store: bucket is required")
	}
	if storeOpts.Region == "" {
		return nil, fmt.Errorf("S3 blob store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(storeOpts.Region))

	// Custom endpoint for S3-compatible storage (MinIO, Localstack, etc.)
	if storeOpts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               storeOpts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsConfig.WithEndpointResolverWithOptions(customResolver))
	}

	// Static credentials if provided, otherwise the default chain
	if storeOpts.AccessKeyID != "" && storeOpts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeOpts.AccessKeyID,
			storeOpts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeOpts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Path-style addressing for compatibility with MinIO/Localstack
		if storeOpts.Endpoint != "" {
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Blob Store
	// ========================================================================

	store, err := blobS3.NewS3BlobStore(ctx, blobS3.S3BlobStoreConfig{
		Client:    client,
		Bucket:    storeOpts.Bucket,
		KeyPrefix: storeOpts.KeyPrefix,
		URLTTL:    storeOpts.URLTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 blob store: %w", err)
	}

	logger.Info("S3 blob store initialized: bucket=%s, region=%s, prefix=%s",
		storeOpts.Bucket, storeOpts.Region, storeOpts.KeyPrefix)

	return store, nil
}

// CreateDirectory builds the static identity directory from the
// configured user list.
func CreateDirectory(cfg *DirectoryConfig) *identity.StaticDirectory {
	principals := make([]metadata.Principal, 0, len(cfg.Users))
	for _, user := range cfg.Users {
		principals = append(principals, metadata.Principal{ID: user.ID, Email: user.Email})
	}

	if len(principals) > 0 {
		logger.Info("Identity directory seeded with %d principals", len(principals))
	} else {
		logger.Warn("Identity directory is empty; sharing by email will not resolve")
	}

	return identity.NewStaticDirectory(principals)
}
