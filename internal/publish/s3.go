// Package publish uploads finished report workbooks to S3.
package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"snowflake-mask-report/pkg/types"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Uploader is the part of manager.Uploader used here
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3 publishes workbooks under s3://bucket/prefix/<file>
type S3 struct {
	bucket   string
	prefix   string
	uploader Uploader
	log      logrus.FieldLogger
}

// NewS3 wires an S3 publisher with the given uploader
func NewS3(uploader Uploader, bucket, prefix string, log logrus.FieldLogger) *S3 {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &S3{bucket: bucket, prefix: prefix, uploader: uploader, log: log}
}

// NewS3FromEnv builds an uploader from the default AWS credential chain
func NewS3FromEnv(ctx context.Context, region, bucket, prefix string, log logrus.FieldLogger) (*S3, error) {
	if bucket == "" {
		return nil, types.Errorf(types.KindSetup, "configure publish", "S3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, types.NewError(types.KindSetup, "configure publish", fmt.Errorf("failed to load AWS config: %w", err))
	}
	return NewS3(manager.NewUploader(s3.NewFromConfig(cfg)), bucket, prefix, log), nil
}

// Key returns the object key for a local workbook path
func (p *S3) Key(localPath string) string {
	return path.Join(p.prefix, filepath.Base(localPath))
}

// Publish uploads the workbook at localPath and returns its s3:// location
func (p *S3) Publish(ctx context.Context, table, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", types.NewError(types.KindPublish, "publish report", fmt.Errorf("failed to open %s: %w", localPath, err))
	}
	defer f.Close()

	key := p.Key(localPath)
	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(xlsxContentType),
	})
	if err != nil {
		return "", types.NewError(types.KindPublish, "publish report", fmt.Errorf("failed to upload %s: %w", key, err))
	}

	location := fmt.Sprintf("s3://%s/%s", p.bucket, key)
	p.log.WithFields(logrus.Fields{"table": table, "location": location}).Info("Published report")
	return location, nil
}
