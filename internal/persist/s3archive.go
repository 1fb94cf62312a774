package persist

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/park285/mill-arena/internal/domain"
	"github.com/park285/mill-arena/internal/obslog"
)

// ObjectAPI is the subset of the S3 client the archive uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive writes archived tournaments as gzipped JSON objects and delegates
// everything else, including a copy of each archive, to the wrapped Store.
type S3Archive struct {
	Store
	client ObjectAPI
	bucket string
	prefix string
}

// NewS3Archive loads the default AWS configuration (environment, shared files).
func NewS3Archive(ctx context.Context, next Store, bucket string) (*S3Archive, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3archive: load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("s3archive: head bucket %s: %w", bucket, err)
	}
	return NewS3ArchiveWithClient(next, client, bucket), nil
}

func NewS3ArchiveWithClient(next Store, client ObjectAPI, bucket string) *S3Archive {
	return &S3Archive{Store: next, client: client, bucket: bucket, prefix: "tournaments"}
}

func (a *S3Archive) objectKey(id string) string {
	return fmt.Sprintf("%s/%s.json.gz", a.prefix, strings.TrimSpace(id))
}

func (a *S3Archive) SaveArchivedTournament(ctx context.Context, t *domain.ArchivedTournament) error {
	if t == nil {
		return nil
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return fmt.Errorf("gzip archive: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("gzip archive: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(a.objectKey(t.ID)),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		obslog.L().Warn("archive_put_failed", zap.String("tournament_id", t.ID), zap.Error(err))
	}
	if a.Store != nil {
		if serr := a.Store.SaveArchivedTournament(ctx, t); serr != nil {
			return serr
		}
	}
	return err
}

func (a *S3Archive) LoadArchivedTournament(ctx context.Context, id string) (*domain.ArchivedTournament, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.objectKey(id)),
	})
	if err != nil {
		var apiErr smithy.APIError
		if !(errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey") {
			obslog.L().Warn("archive_get_failed", zap.String("tournament_id", id), zap.Error(err))
		}
		if a.Store != nil {
			return a.Store.LoadArchivedTournament(ctx, id)
		}
		return nil, ErrNotFound
	}
	defer out.Body.Close()

	zr, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", id, err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", id, err)
	}
	var t domain.ArchivedTournament
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", id, err)
	}
	return &t, nil
}
