package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API は S3Store が利用する S3 クライアントの操作です。
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store は S3 バケットに保存する Storage 実装です。
type S3Store struct {
	client  s3API
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// NewS3 は既定の認証情報チェーンで S3Store を作成します。
func NewS3(ctx context.Context, bucket, region string, logger *slog.Logger) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Store(s3.NewFromConfig(cfg), bucket, region, logger), nil
}

func newS3Store(client s3API, bucket, region string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client:  client,
		bucket:  bucket,
		baseURL: fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region),
		logger:  logger.With("component", "storage", "backend", "s3", "bucket", bucket),
	}
}

// Fetch はオブジェクトを取得します。
func (s *S3Store) Fetch(ctx context.Context, locator string) ([]byte, error) {
	key, err := s.key(locator)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// Put はオブジェクトを保存し、公開URLを返します。
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	s.logger.Debug("object stored", "key", key, "size", len(data))
	return s.baseURL + "/" + key, nil
}

// Delete はオブジェクトを削除します。
func (s *S3Store) Delete(ctx context.Context, key string) error {
	key, err := s.key(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// key は公開URL・s3:// URL・生のキーのいずれからでもキーを取り出します。
func (s *S3Store) key(locator string) (string, error) {
	if strings.HasPrefix(locator, "s3://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", ErrInvalidKey
		}
		if u.Host != s.bucket {
			return "", fmt.Errorf("%w: bucket %s", ErrInvalidKey, u.Host)
		}
		return CleanKey(u.Path)
	}
	return keyFromLocator(s.baseURL, locator)
}
