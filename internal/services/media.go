package services

import (
	"context"
	"fmt"
	"time"

	appconfig "mjolobid-backend/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Media kinds map to key prefixes in the bucket
const (
	MediaProfile    = "profiles"
	MediaBid        = "bids"
	MediaAttachment = "attachments"
)

const uploadTTL = 5 * time.Minute

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var attachmentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Presigner is the part of s3.PresignClient used for uploads
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// MediaService hands out presigned upload URLs for user content
type MediaService struct {
	presigner Presigner
	bucket    string
}

// NewMediaService creates a media service backed by S3 or an S3-compatible endpoint
func NewMediaService(ctx context.Context, cfg appconfig.AWSConfig) (*MediaService, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewMediaServiceWithPresigner(s3.NewPresignClient(client), cfg.S3Bucket), nil
}

// NewMediaServiceWithPresigner creates a media service around an existing presigner
func NewMediaServiceWithPresigner(p Presigner, bucket string) *MediaService {
	return &MediaService{presigner: p, bucket: bucket}
}

// UploadURL is a presigned PUT for one object
type UploadURL struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
	ExpiresIn int    `json:"expires_in"`
}

// PresignUpload generates a pre-signed URL for uploading an object of kind owned by ownerID.
// Keys look like {kind}/{owner_id}/{uuid}{ext}.
func (s *MediaService) PresignUpload(ctx context.Context, kind, ownerID, contentType string) (*UploadURL, error) {
	allowed := imageTypes
	if kind == MediaAttachment {
		allowed = attachmentTypes
	}
	ext, ok := allowed[contentType]
	if !ok {
		return nil, validationError("unsupported content type %q", contentType)
	}

	key := fmt.Sprintf("%s/%s/%s%s", kind, ownerID, uuid.New().String(), ext)
	request, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = uploadTTL
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	return &UploadURL{
		UploadURL: request.URL,
		ObjectKey: key,
		ExpiresIn: int(uploadTTL.Seconds()),
	}, nil
}
