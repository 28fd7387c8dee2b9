package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	tserrors "github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/errors"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/localbucket"
)

// openBackend builds the local bucket backend described by cfg. The
// returned close function releases its connections.
func openBackend(ctx context.Context, cfg *config.Config) (localbucket.Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Local.Backend {
	case config.BackendMemory, "":
		return localbucket.NewMemoryBackend(), noop, nil

	case config.BackendFile:
		dir := cfg.StateDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create state dir %s: %w", dir, err)
		}
		return localbucket.NewFileBackend(filepath.Clean(dir)), noop, nil

	case config.BackendS3:
		return localbucket.NewS3Backend(newS3Client(cfg.Local.S3), cfg.Local.S3.Bucket, cfg.Local.S3.Prefix), noop, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Local.Redis.Addr,
			Password: cfg.Local.Redis.Password,
			DB:       cfg.Local.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.Local.Redis.Addr, err)
		}
		return localbucket.NewRedisBackend(client, cfg.Local.Redis.Prefix, cfg.RedisTTL()), client.Close, nil

	default:
		return nil, nil, tserrors.New("TS142").WithDetail(cfg.Local.Backend)
	}
}

// newS3Client creates an S3 client with static credentials from the
// environment. An empty endpoint uses AWS.
func newS3Client(cfg config.S3Config) *s3.Client {
	region := cfg.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := s3.Options{
		Region:       region,
		UsePathStyle: cfg.PathStyle,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
				SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
				SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
				Source:          "environment",
			}, nil
		})),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}
