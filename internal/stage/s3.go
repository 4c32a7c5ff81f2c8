package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Stager downloads s3://bucket/key locations with the AWS download
// manager.
type S3Stager struct {
	downloader *manager.Downloader
}

// NewS3Stager builds an S3Stager from the ambient AWS configuration
// (environment, shared config, instance role).
func NewS3Stager(ctx context.Context) (*S3Stager, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3 stager: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Stager{downloader: manager.NewDownloader(client)}, nil
}

func (s *S3Stager) StageIn(ctx context.Context, location, destPath string) error {
	bucket, key, err := splitS3Location(location)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("s3 stager: mkdir: %w", err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("s3 stager: create file: %w", err)
	}
	defer out.Close()

	_, err = s.downloader.Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("s3 stager: download %s: %w", location, err)
	}
	return nil
}

func splitS3Location(location string) (bucket, key string, err error) {
	scheme, rest := ParseScheme(location)
	if scheme != "s3" {
		return "", "", fmt.Errorf("s3 stager: unsupported scheme %q", scheme)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 stager: malformed location %q", location)
	}
	return bucket, key, nil
}
