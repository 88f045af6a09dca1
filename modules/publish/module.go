// Package publish implements the `publish` action, which uploads release
// artifacts to an S3 bucket or an S3-compatible store.
package publish

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/registry"
	"golang.org/x/sync/errgroup"
)

const maxParallelUploads = 4

// Uploader is the part of the S3 client the action uses.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// newUploader is replaced in tests.
var newUploader = func(ctx context.Context, input *Input) (Uploader, error) {
	var opts []func(*config.LoadOptions) error
	if input.Region != "" {
		opts = append(opts, config.WithRegion(input.Region))
	}
	if input.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(input.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if input.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(input.AccessKeyID, input.SecretAccessKey, ""),
		)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if input.Endpoint != "" {
			o.BaseEndpoint = aws.String(input.Endpoint)
		}
		o.UsePathStyle = input.PathStyle
	}), nil
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the publish action.
type Input struct {
	From    string   `arg:"from"`
	Include []string `arg:"include,required"`
	Bucket  string   `arg:"bucket,required"`
	// Prefix is prepended to every object key.
	Prefix   string `arg:"prefix"`
	Region   string `arg:"region"`
	Profile  string `arg:"profile"`
	Endpoint string `arg:"endpoint"`
	// PathStyle is needed by most S3-compatible stores.
	PathStyle       bool   `arg:"path_style"`
	AccessKeyID     string `arg:"access_key_id"`
	SecretAccessKey string `arg:"secret_access_key"`
}

// OnRunPublish is the handler for the `publish` action.
func OnRunPublish(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx).With("bucket", input.Bucket)

	from := env.Path(input.From)
	if from == "" {
		from = env.WorkDir
	}
	entries, err := fsutil.Expand(from, input.Include, false)
	if err != nil {
		return fmt.Errorf("failed to expand include: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("nothing to publish: %v matched no files", input.Include)
	}

	client, err := newUploader(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	var uploaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for _, e := range entries {
		key := path.Join(input.Prefix, filepath.ToSlash(e.Rel))
		g.Go(func() error {
			n, err := upload(gctx, client, input.Bucket, key, e.Path)
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", e.Path, err)
			}
			logger.Debug("Uploaded object.", "key", key, "size", n)
			uploaded.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Published artifacts", "objects", len(entries), "bytes", uploaded.Load(), "prefix", input.Prefix)
	return nil
}

func upload(ctx context.Context, client Uploader, bucket, key, file string) (int64, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}

	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return stat.Size(), err
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("publish", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunPublish,
	})
}
