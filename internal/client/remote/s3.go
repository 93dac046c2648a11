package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/google/uuid"
)

const s3HiddenPrefix = ".appdata/"

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures the S3 backend.
type S3Options struct {
	Region       string
	Bucket       string
	BaseEndpoint string
	FolderName   string
}

// S3Store implements Store on an S3-compatible bucket. Object keys look
// like <prefix><random id>/<name>; the key is the file id. The hidden
// location uses the ".appdata/" prefix, the visible one "<folder>/".
type S3Store struct {
	client s3API
	bucket string
	folder string
}

func newS3Store(client s3API, bucket, folder string) *S3Store {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = "NoteSync"
	}
	return &S3Store{client: client, bucket: bucket, folder: folder}
}

// NewS3Factory returns a Factory that builds an S3Store per key pair.
func NewS3Factory(opts S3Options) Factory {
	return func(ctx context.Context, cred models.Credential) (Store, error) {
		if cred.AccessKeyID == "" || cred.SecretAccessKey == "" {
			return nil, errors.New("s3: access key id and secret are required")
		}
		if opts.Bucket == "" {
			return nil, errors.New("s3: bucket is required")
		}

		cfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(opts.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cred.AccessKeyID, cred.SecretAccessKey, "",
			)))
		if err != nil {
			return nil, err
		}

		client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
			if opts.BaseEndpoint != "" {
				o.BaseEndpoint = aws.String(opts.BaseEndpoint)
				o.UsePathStyle = true
			}
		})
		return newS3Store(client, opts.Bucket, opts.FolderName), nil
	}
}

func (s *S3Store) prefix(loc models.StorageLocation) (string, error) {
	switch loc {
	case models.LocationHidden:
		return s3HiddenPrefix, nil
	case models.LocationVisible:
		return s.folder + "/", nil
	default:
		return "", fmt.Errorf("s3: unsupported location %q", loc)
	}
}

func (s *S3Store) locationOf(key string) models.StorageLocation {
	switch {
	case strings.HasPrefix(key, s3HiddenPrefix):
		return models.LocationHidden
	case strings.HasPrefix(key, s.folder+"/"):
		return models.LocationVisible
	default:
		return models.LocationUnset
	}
}

func (s *S3Store) FindByName(ctx context.Context, name string, loc models.StorageLocation) ([]models.RemoteFile, error) {
	prefix, err := s.prefix(loc)
	if err != nil {
		return nil, err
	}

	var out []models.RemoteFile
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, classifyS3(err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if path.Base(key) != name || strings.HasSuffix(key, "/") {
				continue
			}
			out = append(out, models.RemoteFile{
				ID:           key,
				Name:         name,
				ModifiedTime: aws.ToTime(obj.LastModified),
				Location:     loc,
			})
		}
	}

	SortNewestFirst(out)
	return out, nil
}

func (s *S3Store) GetMetadata(ctx context.Context, id string) (*models.RemoteFile, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, classifyS3(err)
	}
	return &models.RemoteFile{
		ID:           id,
		Name:         path.Base(id),
		ModifiedTime: aws.ToTime(head.LastModified),
		Location:     s.locationOf(id),
	}, nil
}

func (s *S3Store) Download(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, classifyS3(err)
	}
	defer obj.Body.Close()

	b, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %s: %w", id, err)
	}
	return b, nil
}

func (s *S3Store) Upload(ctx context.Context, name string, content []byte, targetID string, loc models.StorageLocation) (models.RemoteFile, error) {
	key := targetID
	if key == "" {
		prefix, err := s.prefix(loc)
		if err != nil {
			return models.RemoteFile{}, err
		}
		if loc == models.LocationVisible {
			if _, err := s.EnsureFolder(ctx, s.folder); err != nil {
				return models.RemoteFile{}, err
			}
		}
		key = prefix + uuid.NewString() + "/" + name
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return models.RemoteFile{}, classifyS3(err)
	}

	// PutObject does not return the server-side modification time
	meta, err := s.GetMetadata(ctx, key)
	if err != nil {
		return models.RemoteFile{}, err
	}
	return *meta, nil
}

func (s *S3Store) EnsureFolder(ctx context.Context, name string) (string, error) {
	key := strings.Trim(name, "/") + "/"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return "", classifyS3(err)
	}
	return key, nil
}

// classifyS3 maps SDK errors onto the common sentinels.
func classifyS3(err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", common.ErrRemoteNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %w", common.ErrRemoteNotFound, err)
		}
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		switch code := withStatus.HTTPStatusCode(); code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", common.ErrRemoteNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", &common.CredentialExpiredError{StatusCode: code, Reason: err.Error()}, err)
		}
	}
	return err
}
