package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	appConfig "github.com/mansoorceksport/liftlog/internal/config"
	"github.com/mansoorceksport/liftlog/internal/domain"
)

// S3HistoryArchive copies finished workouts to an S3-compatible bucket
// (SeaweedFS, MinIO or AWS) as one JSON object per record.
type S3HistoryArchive struct {
	client *s3.Client
	bucket string
}

// NewS3HistoryArchive creates the archive and makes sure the bucket exists
func NewS3HistoryArchive(ctx context.Context, cfg appConfig.S3Config) (*S3HistoryArchive, error) {
	// S3-compatible stores still require signed requests, so static
	// credentials are always set
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %v", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true // Required for many S3-compatible stores including SeaweedFS
	})

	archive := &S3HistoryArchive{
		client: client,
		bucket: cfg.Bucket,
	}

	if err := archive.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return archive, nil
}

// Archive uploads the record under history/<user>/<id>.json
func (a *S3HistoryArchive) Archive(ctx context.Context, record *domain.HistoryRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(archiveKey(record)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload history record to S3: %w", err)
	}
	return nil
}

func archiveKey(record *domain.HistoryRecord) string {
	return fmt.Sprintf("history/%s/%s.json", record.UserID, record.ID)
}

// ensureBucket checks if bucket exists, creating it if necessary
func (a *S3HistoryArchive) ensureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(a.bucket),
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}
