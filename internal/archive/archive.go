// Package archive сохраняет транскрипты runs в S3-совместимое хранилище.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/hooks"
	"github.com/shaiso/Conveyor/internal/pipeline"
)

// Default configuration values.
const (
	defaultBucket = "conveyor-logs"
	defaultPrefix = "runs"
)

// Ошибки архива.
var (
	ErrMissingEndpoint = errors.New("archive endpoint is required")
	ErrNoExecution     = errors.New("no execution in context")
)

// ObjectStore — часть minio.Client, которой пользуется Uploader.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Config — конфигурация Uploader.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// Bucket — bucket для логов (default: "conveyor-logs").
	Bucket string

	// Prefix — префикс ключей (default: "runs").
	Prefix string

	// Store — готовый клиент; если задан, Endpoint и ключи не нужны.
	Store ObjectStore

	Logger *slog.Logger
}

// Uploader загружает транскрипты runs.
type Uploader struct {
	store  ObjectStore
	bucket string
	region string
	prefix string
	logger *slog.Logger
}

// New создаёт Uploader.
func New(cfg Config) (*Uploader, error) {
	store := cfg.Store
	if store == nil {
		if cfg.Endpoint == "" {
			return nil, ErrMissingEndpoint
		}
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure:    cfg.UseSSL,
			Region:    cfg.Region,
			Transport: newTransport(),
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		store = client
	}

	u := &Uploader{
		store:  store,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: cfg.Logger,
	}
	if u.bucket == "" {
		u.bucket = defaultBucket
	}
	if u.prefix == "" {
		u.prefix = defaultPrefix
	}
	if u.logger == nil {
		u.logger = slog.Default()
	}
	return u, nil
}

// EnsureBucket создаёт bucket, если его нет.
func (u *Uploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.store.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.store.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", u.bucket, err)
	}
	u.logger.Info("archive bucket created", "bucket", u.bucket)
	return nil
}

// Key возвращает ключ объекта для run: runs/<pipeline>/<run-id>.log.
func (u *Uploader) Key(run domain.Run) string {
	return path.Join(u.prefix, run.Pipeline, run.ID.String()+".log")
}

// Upload загружает транскрипт выполнения и возвращает ключ объекта.
func (u *Uploader) Upload(ctx context.Context, exec *pipeline.Execution) (string, error) {
	run := exec.Snapshot()
	outcome := exec.Outcome()
	key := u.Key(run)

	body := render(run, outcome, exec.Transcript().Lines())
	_, err := u.store.PutObject(ctx, u.bucket, key, strings.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		UserMetadata: map[string]string{
			"build-id": run.BuildID,
			"status":   string(run.Status),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	u.logger.Info("run log archived", "run_id", run.ID, "bucket", u.bucket, "key", key, "bytes", len(body))
	return key, nil
}

// Hook возвращает OnAlways hook, загружающий транскрипт завершённого run.
func (u *Uploader) Hook() hooks.Hook {
	return func(ctx context.Context, _ domain.Outcome) error {
		exec := pipeline.ExecutionFromContext(ctx)
		if exec == nil {
			return ErrNoExecution
		}
		_, err := u.Upload(ctx, exec)
		return err
	}
}

// render формирует текст лога: заголовок с итогом и транскрипт.
func render(run domain.Run, outcome domain.Outcome, lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# pipeline: %s\n", run.Pipeline)
	fmt.Fprintf(&b, "# run: %s\n", run.ID)
	fmt.Fprintf(&b, "# build: %s (%s)\n", run.BuildID, run.ImageTag)
	fmt.Fprintf(&b, "# outcome: %s\n", outcome)
	if outcome.Detail != "" {
		fmt.Fprintf(&b, "# detail: %s\n", outcome.Detail)
	}
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
