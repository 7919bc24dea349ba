package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"vridge/internal/config"
)

var ErrUnsupportedPhoto = errors.New("неподдерживаемый тип файла. Разрешены: JPEG, PNG, GIF, WebP, HEIC")

var allowedPhotoTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp", "image/heic"}

// sniffLen is how much of the upload is read to detect its type.
const sniffLen = 3072

type Storage interface {
	UploadPhoto(ctx context.Context, ownerID string, fileName string, file io.Reader, size int64) (string, error)
	DeletePhoto(ctx context.Context, objectName string) error
	PhotoURL(ctx context.Context, objectName string) (string, error)
}

type MinIOClient struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	now    func() time.Time
}

func NewMinIOClient(ctx context.Context, cfg *config.Config) (*MinIOClient, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
		Secure: cfg.MinIO.UseSSL,
		Region: cfg.MinIO.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinIO.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки бакета %s: %w", cfg.MinIO.BucketName, err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.MinIO.BucketName, minio.MakeBucketOptions{Region: cfg.MinIO.Region})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания бакета %s: %w", cfg.MinIO.BucketName, err)
		}
	}

	return &MinIOClient{
		client: client,
		bucket: cfg.MinIO.BucketName,
		expiry: cfg.MinIO.URLExpiry,
		now:    time.Now,
	}, nil
}

// UploadPhoto stores the photo and returns its object name, which is what
// posts keep as the photo reference.
func (m *MinIOClient) UploadPhoto(ctx context.Context, ownerID string, fileName string, file io.Reader, size int64) (string, error) {
	body, mtype, err := DetectPhoto(file)
	if err != nil {
		return "", err
	}

	now := m.now()
	objectName := photoObjectName(ownerID, now, mtype.Extension())

	_, err = m.client.PutObject(ctx, m.bucket, objectName, body, size,
		minio.PutObjectOptions{
			ContentType: mtype.String(),
			UserMetadata: map[string]string{
				"original-filename": filepath.Base(fileName),
				"owner-id":          ownerID,
				"uploaded-at":       now.Format(time.RFC3339),
			},
		})
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки в MinIO: %w", err)
	}

	return objectName, nil
}

func (m *MinIOClient) DeletePhoto(ctx context.Context, objectName string) error {
	err := m.client.RemoveObject(ctx, m.bucket, objectName,
		minio.RemoveObjectOptions{
			GovernanceBypass: true,
		})
	if err != nil {
		return fmt.Errorf("ошибка удаления из MinIO: %w", err)
	}
	return nil
}

func (m *MinIOClient) PhotoURL(ctx context.Context, objectName string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectName, m.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка получения ссылки на фото: %w", err)
	}
	return u.String(), nil
}

// DetectPhoto sniffs the content type of an upload and returns a reader that
// still yields the whole file.
func DetectPhoto(file io.Reader) (io.Reader, *mimetype.MIME, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	for _, allowed := range allowedPhotoTypes {
		if mtype.Is(allowed) {
			return io.MultiReader(bytes.NewReader(head), file), mtype, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedPhoto, mtype.String())
}

func photoObjectName(ownerID string, now time.Time, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}

	return fmt.Sprintf("photos/%s/%d/%02d/%s%s",
		ownerID,
		now.Year(),
		now.Month(),
		uuid.New().String(),
		strings.ToLower(ext))
}
