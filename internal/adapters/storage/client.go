package storage

import (
	"bytes"
	"context"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
)

const (
	// PresignedURLTTL is how long report download links stay valid.
	PresignedURLTTL = 24 * time.Hour
)

// MinIOService implements ObjectStore using MinIO.
type MinIOService struct {
	client *minio.Client
}

// NewMinIOService creates a new MinIO storage service. tlsInsecure skips
// certificate verification on the endpoint.
func NewMinIOService(cfg Config, tlsInsecure bool) (*MinIOService, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, eris.New("storage: MinIO is not configured")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	}
	if cfg.GetMinIOUseSSL() && tlsInsecure {
		transport, err := minio.DefaultTransport(true)
		if err != nil {
			return nil, eris.Wrap(err, "storage: build transport")
		}
		transport.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in via OUTBOUND_TLS_INSECURE
		opts.Transport = transport
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), opts)
	if err != nil {
		return nil, eris.Wrap(err, "storage: create MinIO client")
	}

	return &MinIOService{client: client}, nil
}

// EnsureBucketExists creates the bucket if it doesn't exist.
func (s *MinIOService) EnsureBucketExists(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return eris.Wrapf(err, "storage: check bucket %s", bucket)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return eris.Wrapf(err, "storage: create bucket %s", bucket)
		}
	}

	return nil
}

// UploadReport uploads data and returns the generated object key.
func (s *MinIOService) UploadReport(ctx context.Context, bucket, folder, fileName, contentType string, data []byte) (string, error) {
	if err := ValidateContentType(contentType); err != nil {
		return "", err
	}

	fileKey := ObjectKey(folder, fileName)
	_, err := s.client.PutObject(ctx, bucket, fileKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", eris.Wrapf(err, "storage: upload %s", fileKey)
	}
	return fileKey, nil
}

// GenerateDownloadURL creates a presigned URL for downloading a file.
func (s *MinIOService) GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*PresignedURL, error) {
	expiresAt := time.Now().Add(PresignedURLTTL)

	presignedURL, err := s.client.PresignedGetObject(ctx, bucket, fileKey, PresignedURLTTL, make(url.Values))
	if err != nil {
		return nil, eris.Wrapf(err, "storage: presign %s", fileKey)
	}

	return &PresignedURL{
		URL:       presignedURL.String(),
		FileKey:   fileKey,
		ExpiresAt: expiresAt,
	}, nil
}

var _ ObjectStore = (*MinIOService)(nil)
