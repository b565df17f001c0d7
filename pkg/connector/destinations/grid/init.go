package grid

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ultimatecoffee/shopsync/pkg/compression"
	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/connector/registry"
	"github.com/ultimatecoffee/shopsync/pkg/logger"
)

func init() {
	_ = registry.RegisterSink(config.SinkCSV, NewFileSink)
	_ = registry.RegisterSink(config.SinkGCS, NewGCSSink)
	_ = registry.RegisterSink(config.SinkS3, NewS3Sink)
}

func compressorFor(cfg *config.Config) (compression.Compressor, error) {
	alg, err := compression.ParseAlgorithm(cfg.Sink.Compression)
	if err != nil {
		return nil, err
	}
	return compression.NewCompressor(alg)
}

// NewFileSink creates a grid sink over sink.directory
func NewFileSink(_ context.Context, cfg *config.Config) (core.Sink, error) {
	comp, err := compressorFor(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewFileStore(cfg.Sink.Directory)
	if err != nil {
		return nil, err
	}
	return NewSink(config.SinkCSV, store, comp, logger.Get()), nil
}

// NewGCSSink creates a grid sink over sink.bucket in Cloud Storage
func NewGCSSink(ctx context.Context, cfg *config.Config) (core.Sink, error) {
	comp, err := compressorFor(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewGCSStore(ctx, cfg.Sink.Bucket, cfg.Sink.Prefix, cfg.Sink.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return NewSink(config.SinkGCS, store, comp, logger.Get()), nil
}

// NewS3Sink creates a grid sink over sink.bucket in S3
func NewS3Sink(ctx context.Context, cfg *config.Config) (core.Sink, error) {
	comp, err := compressorFor(cfg)
	if err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Sink.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Sink.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	store := NewS3Store(s3.NewFromConfig(awsCfg), cfg.Sink.Bucket, cfg.Sink.Prefix)
	return NewSink(config.SinkS3, store, comp, logger.Get()), nil
}
