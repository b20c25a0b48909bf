package credentials

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	awscredentials "github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/push-relay/interfaces"
)

// maxKeyFileSize bounds the object read from S3.
const maxKeyFileSize = 64 * 1024

// S3Source reads a service-account JSON key file from Amazon S3 or a
// compatible service.
type S3Source struct {
	client *s3.S3
	bucket string
	key    string
	log    *slog.Logger
}

// NewS3Source creates a new S3 credential source. Without an access key the
// SDK's default credential chain is used.
func NewS3Source(bucket, key, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Source, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}

	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	if accessKey != "" && secretKey != "" {
		cfg.Credentials = awscredentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "failed to create AWS session", Err: err}
	}

	return &S3Source{
		client: s3.New(sess),
		bucket: bucket,
		key:    key,
		log:    log,
	}, nil
}

func (s *S3Source) Load(ctx context.Context) (*ServiceAccount, error) {
	start := time.Now()

	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		s.log.Error("Failed to get key file from S3",
			slog.String("bucket", s.bucket),
			slog.String("key", s.key),
			"err", err)
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "s3 read failed", Err: err}
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, maxKeyFileSize))
	if err != nil {
		return nil, &interfaces.ConfigurationError{Field: "credentials", Reason: "could not read s3 object", Err: err}
	}

	s.log.Info("Loaded credentials from S3",
		slog.String("bucket", s.bucket),
		slog.String("key", s.key),
		slog.Duration("duration", time.Since(start)))

	return ParseServiceAccount(data)
}

func (s *S3Source) Name() string {
	return fmt.Sprintf("s3-%s/%s", s.bucket, s.key)
}
