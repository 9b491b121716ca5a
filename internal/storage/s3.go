package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
)

// artifactCacheControl marks artifacts as immutable so CDN edges in front
// of the bucket keep them for a year.
const artifactCacheControl = "public, max-age=31536000, immutable"

// s3PutAPI is the slice of the S3 client the uploader calls.
type s3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// objectStoreUploader writes artifacts to any S3-compatible endpoint using
// path-style addressing, which keeps bucket names out of DNS.
type objectStoreUploader struct {
	client s3PutAPI
	desc   *ObjectStore
	logger zerolog.Logger
}

func newObjectStoreUploader(desc *ObjectStore, logger zerolog.Logger) *objectStoreUploader {
	region := desc.Region
	if region == "" {
		region = "us-east-1"
	}
	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(desc.Endpoint),
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(desc.AccessKey, desc.SecretKey, ""),
		UsePathStyle: true,
	})
	return &objectStoreUploader{
		client: client,
		desc:   desc,
		logger: logger.With().Str("component", "object-store-uploader").Logger(),
	}
}

func (u *objectStoreUploader) Provider() string {
	if u.desc.Provider != "" {
		return u.desc.Provider
	}
	return "s3"
}

func (u *objectStoreUploader) Upload(ctx context.Context, data []byte, name string) (*Result, error) {
	key := name
	if base := strings.Trim(u.desc.BasePath, "/"); base != "" {
		key = base + "/" + name
	}

	contentType := mimetype.Detect(data).String()
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.desc.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String(artifactCacheControl),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	u.logger.Info().
		Str("bucket", u.desc.Bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("artifact uploaded")

	res := &Result{
		Provider:   u.Provider(),
		StorageURL: strings.TrimSuffix(u.desc.Endpoint, "/") + "/" + u.desc.Bucket + "/" + key,
	}
	res.PublicURL = res.StorageURL
	if u.desc.BaseURL != "" {
		res.PublicURL = strings.TrimSuffix(u.desc.BaseURL, "/") + "/" + key
	}
	return res, nil
}
