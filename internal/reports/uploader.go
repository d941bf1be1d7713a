package reports

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	cfg "github.com/aristath/pulse/internal/config"
)

// Uploader pushes report artifacts to an S3-compatible bucket.
type Uploader struct {
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewUploader creates an uploader from report configuration.
// Returns nil when upload is disabled.
func NewUploader(ctx context.Context, rc *cfg.ReportsConfig, log zerolog.Logger) (*Uploader, error) {
	if rc == nil || !rc.UploadEnabled {
		return nil, nil
	}
	if rc.S3Bucket == "" {
		return nil, fmt.Errorf("report upload enabled but no bucket configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(rc.S3Region),
	}
	if rc.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(rc.S3AccessKey, rc.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if rc.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(rc.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Uploader{
		uploader: manager.NewUploader(client),
		bucket:   rc.S3Bucket,
		log:      log.With().Str("component", "report_uploader").Logger(),
	}, nil
}

// Upload sends a local artifact to the bucket and returns its object key.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer f.Close()

	key := fmt.Sprintf("reports/%s", filepath.Base(path))
	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload artifact %s: %w", path, err)
	}

	u.log.Info().Str("bucket", u.bucket).Str("key", key).Msg("report artifact uploaded")
	return key, nil
}
