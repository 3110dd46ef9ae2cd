// Package storage archives generated lyrics in an S3 compatible bucket.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/welldanyogia/lyricsgate/internal/config"
)

// GenerationPrefix is the key prefix for every archived generation
const GenerationPrefix = "generations/"

const deleteBatchSize = 1000

// ObjectAPI is the subset of the S3 client the archive uses
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	s3.ListObjectsV2APIClient
}

// GenerationRecord is one archived generation
type GenerationRecord struct {
	ID          uuid.UUID `json:"id"`
	AccountID   uuid.UUID `json:"accountId"`
	Artist      string    `json:"artist"`
	Description string    `json:"description"`
	MaxLength   int       `json:"maxLength"`
	Lyrics      string    `json:"lyrics"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Archive stores generations under generations/<accountID>/<generationID>.json
type Archive struct {
	client ObjectAPI
	bucket string
	now    func() time.Time
}

// NewArchive creates an archive backed by an S3 compatible endpoint
func NewArchive(cfg config.StorageConfig) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is not configured")
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
	}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
		// MinIO and most self-hosted stores only serve path-style requests
		opts.UsePathStyle = true
	}

	return NewArchiveWithClient(s3.New(opts), cfg.Bucket), nil
}

// NewArchiveWithClient wraps an existing client
func NewArchiveWithClient(client ObjectAPI, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket, now: time.Now}
}

// GenerationKey returns the object key for one generation
func GenerationKey(accountID, generationID uuid.UUID) string {
	return AccountPrefix(accountID) + generationID.String() + ".json"
}

// AccountPrefix returns the key prefix holding an account's generations
func AccountPrefix(accountID uuid.UUID) string {
	return GenerationPrefix + accountID.String() + "/"
}

// SaveGeneration writes rec and returns its key. A zero ID or timestamp is filled in.
func (a *Archive) SaveGeneration(ctx context.Context, rec GenerationRecord) (string, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now().UTC()
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode generation: %w", err)
	}

	key := GenerationKey(rec.AccountID, rec.ID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store generation %s: %w", key, err)
	}
	return key, nil
}

// DeleteAccount removes every generation stored for the account and returns
// the number of objects deleted
func (a *Archive) DeleteAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	keys, err := a.listKeys(ctx, AccountPrefix(accountID), time.Time{})
	if err != nil {
		return 0, err
	}
	return a.deleteKeys(ctx, keys)
}

// listKeys returns keys under prefix. A non-zero olderThan skips objects
// modified at or after it.
func (a *Archive) listKeys(ctx context.Context, prefix string, olderThan time.Time) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return keys, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			if !olderThan.IsZero() && obj.LastModified != nil && !obj.LastModified.Before(olderThan) {
				continue
			}
			keys = append(keys, *obj.Key)
		}
	}
	return keys, nil
}

func (a *Archive) deleteKeys(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	for i := 0; i < len(keys); i += deleteBatchSize {
		end := min(i+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-i)
		for _, key := range keys[i:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete objects: %w", err)
		}
		deleted += len(ids) - len(out.Errors)
	}
	return deleted, nil
}
