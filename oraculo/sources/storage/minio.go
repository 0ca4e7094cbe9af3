package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"oraculo/oraculo/config"
	"oraculo/oraculo/utils/logging"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOClient is the document archive: uploaded source files plus a cache
// of previously extracted remote documents.
type MinIOClient struct {
	client *minio.Client
	bucket string
}

type ExtractionObject struct {
	Locator      string    `json:"locator"`
	DocumentType string    `json:"document_type"`
	Text         string    `json:"extracted_text"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewMinIOClient(ctx context.Context, cfg config.Config) (*MinIOClient, error) {
	bucket := cfg.MinIOBucket
	client, err := minio.New(
		cfg.MinIOEndpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOUseSSL,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
		logging.AppLogger.Info("created archive bucket", zap.String("bucket", bucket))
	}
	return &MinIOClient{client: client, bucket: bucket}, nil
}

// ExtractionKey hashes the locator so it is safe as an object name.
func ExtractionKey(locator string) string {
	hash := fmt.Sprintf("%x", md5.Sum([]byte(locator)))
	return path.Join("extractions", hash+".json")
}

// Get reads a stored source file.
func (m *MinIOClient) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Put stores a source file, e.g. one uploaded through the CLI.
func (m *MinIOClient) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// PutExtraction caches the text extracted from locator.
func (m *MinIOClient) PutExtraction(ctx context.Context, locator, documentType, text string) error {
	data, err := json.Marshal(ExtractionObject{
		Locator:      locator,
		DocumentType: documentType,
		Text:         text,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return err
	}
	return m.Put(ctx, ExtractionKey(locator), data, "application/json")
}

// GetExtraction returns the cached text for locator; ok is false on a miss.
func (m *MinIOClient) GetExtraction(ctx context.Context, locator string) (text string, ok bool, err error) {
	data, err := m.Get(ctx, ExtractionKey(locator))
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return "", false, nil
		}
		return "", false, err
	}
	var obj ExtractionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", false, fmt.Errorf("decode cached extraction: %w", err)
	}
	return obj.Text, true, nil
}
