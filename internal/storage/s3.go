package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// keyPrefix is the S3 key prefix under which tracks are mirrored.
const keyPrefix = "tracks/"

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage wraps LocalStorage and mirrors every track to S3.
// The local directory acts as a cache: reads fall back to S3 on a local miss.
type S3Storage struct {
	*LocalStorage
	client *s3.Client
	bucket string
	region string
}

// NewS3Storage creates a new S3Storage instance.
// The dir parameter is the local cache directory.
func NewS3Storage(dir string, cfg S3Config, opts ...LocalOption) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, ErrS3NotConfigured
	}
	local, err := NewLocalStorage(dir, opts...)
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// S3-compatible stores often reject the default streaming checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		})
	}

	return &S3Storage{
		LocalStorage: local,
		client:       s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:       cfg.Bucket,
		region:       cfg.Region,
	}, nil
}

// URL returns the public URL of the mirrored blob of a track.
func (s *S3Storage) URL(rec *Record) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, blobKey(rec))
}

// Put stores data locally and uploads blob and sidecar.
// A failed upload removes the local copy and fails the call.
func (s *S3Storage) Put(ctx context.Context, data []byte, filename string, metadata map[string]any) (string, error) {
	id, err := s.LocalStorage.Put(ctx, data, filename, metadata)
	if err != nil {
		return "", err
	}
	rec, err := s.LocalStorage.Record(ctx, id)
	if err != nil {
		return "", err
	}
	sidecar, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.upload(ctx, blobKey(rec), data); err != nil {
		_ = s.LocalStorage.Delete(context.WithoutCancel(ctx), id)
		return "", err
	}
	if err := s.upload(ctx, sidecarKey(id), sidecar); err != nil {
		_ = s.LocalStorage.Delete(context.WithoutCancel(ctx), id)
		_ = s.deleteObject(context.WithoutCancel(ctx), blobKey(rec))
		return "", err
	}
	return id, nil
}

// Get returns the blob from the local cache, restoring it from S3 on a miss.
func (s *S3Storage) Get(ctx context.Context, id string) ([]byte, error) {
	data, err := s.LocalStorage.Get(ctx, id)
	if !errors.Is(err, ErrNotFound) {
		return data, err
	}
	if err := s.restore(ctx, id); err != nil {
		return nil, err
	}
	return s.LocalStorage.Get(ctx, id)
}

// Record returns the sidecar from the local cache, restoring the track from S3 on a miss.
func (s *S3Storage) Record(ctx context.Context, id string) (*Record, error) {
	rec, err := s.LocalStorage.Record(ctx, id)
	if !errors.Is(err, ErrNotFound) {
		return rec, err
	}
	if err := s.restore(ctx, id); err != nil {
		return nil, err
	}
	return s.LocalStorage.Record(ctx, id)
}

// Delete removes the track locally and in S3.
func (s *S3Storage) Delete(ctx context.Context, id string) error {
	rec, err := s.Record(ctx, id)
	if err != nil {
		return err
	}
	if err := s.LocalStorage.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.deleteObject(ctx, blobKey(rec)); err != nil {
		return err
	}
	return s.deleteObject(ctx, sidecarKey(id))
}

// Cleanup expires tracks locally and removes their mirrored objects, so an
// expired track cannot be restored from S3.
func (s *S3Storage) Cleanup(ctx context.Context, maxAge time.Duration) ([]string, error) {
	removed, err := s.LocalStorage.Cleanup(ctx, maxAge)
	for _, id := range removed {
		// The extension is gone with the sidecar; removing absent keys is a no-op in S3.
		for ext := range AllowedExtensions {
			if derr := s.deleteObject(ctx, keyPrefix+id+ext); derr != nil && err == nil {
				err = derr
			}
		}
		if derr := s.deleteObject(ctx, sidecarKey(id)); derr != nil && err == nil {
			err = derr
		}
	}
	return removed, err
}

// restore downloads a track into the local cache.
func (s *S3Storage) restore(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	raw, err := s.download(ctx, sidecarKey(id))
	if err != nil {
		return err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil || rec.TrackID != id {
		return ErrNotFound
	}
	data, err := s.download(ctx, blobKey(&rec))
	if err != nil {
		return err
	}

	rec.Path = s.blobPath(id, rec.Extension)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeLocked(&rec, data); err != nil {
		return err
	}
	s.logger.Info("track restored from S3", slog.String("track_id", id))
	return nil
}

func (s *S3Storage) upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("upload to S3: %w", err)
	}
	return nil
}

// download fetches key. Any failure to fetch is reported as ErrNotFound
// wrapped with the cause.
func (s *S3Storage) download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %w", ErrNotFound, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read S3 object %s: %w", key, err)
	}
	return data, nil
}

func (s *S3Storage) deleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete from S3: %w", err)
	}
	return nil
}

func blobKey(rec *Record) string {
	ext := rec.Extension
	if ext == "" {
		ext = DefaultExtension
	}
	return keyPrefix + rec.TrackID + ext
}

func sidecarKey(id string) string {
	return keyPrefix + id + sidecarExt
}

var _ Storage = (*S3Storage)(nil)
