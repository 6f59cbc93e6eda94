package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/metrics"
	"squirrelctl/internal/validation"
)

const LabelMinIO = "MinIO"

// MinIO uploads artifacts to an S3-compatible server through minio-go.
type MinIO struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string
	UseSSL     bool

	opts   Options
	logger *zap.Logger
	dial   dialFunc
	client *minio.Client
}

func NewMinIO(opts Options) *MinIO {
	return &MinIO{
		UseSSL: true,
		opts:   opts,
		logger: logging.OrDefault(opts.Logger).With(zap.String("destination", LabelMinIO)),
	}
}

func (m *MinIO) Label() string { return LabelMinIO }

func (m *MinIO) Validate() validation.Result {
	var r validation.Result
	r.Required(FieldEndpoint, m.Endpoint)
	if strings.Contains(m.Endpoint, "://") {
		r.Add(FieldEndpoint, "endpoint must be host[:port] without a scheme")
	}
	r.Required(FieldAccessKey, m.AccessKey)
	r.Required(FieldSecretKey, m.SecretKey)
	if strings.TrimSpace(m.BucketName) == "" || hasWhitespace(m.BucketName) {
		r.Add(FieldBucket, "bucket name not valid, it must be non-empty without whitespace")
	}
	return r
}

func (m *MinIO) scheme() string {
	if m.UseSSL {
		return "https"
	}
	return "http"
}

func (m *MinIO) DownloadURL() string {
	if strings.TrimSpace(m.Endpoint) == "" || strings.TrimSpace(m.BucketName) == "" {
		return MissingParameter
	}
	return m.scheme() + "://" + m.Endpoint + "/" + m.BucketName + "/" + setupFileName
}

func (m *MinIO) Fields() []Field {
	return []Field{
		{Name: FieldEndpoint, Value: m.Endpoint},
		{Name: FieldAccessKey, Value: m.AccessKey},
		{Name: FieldSecretKey, Value: m.SecretKey, Secret: true},
		{Name: FieldBucket, Value: m.BucketName},
		{Name: FieldRegion, Value: m.Region},
		{Name: FieldUseSSL, Value: strconv.FormatBool(m.UseSSL)},
	}
}

func (m *MinIO) SetField(name, value string) error {
	switch name {
	case FieldEndpoint:
		m.Endpoint = strings.TrimSpace(value)
	case FieldAccessKey:
		m.AccessKey = value
	case FieldSecretKey:
		m.SecretKey = value
	case FieldBucket:
		m.BucketName = NormalizeBucketName(value)
	case FieldRegion:
		m.Region = value
	case FieldUseSSL:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", FieldUseSSL, err)
		}
		m.UseSSL = b
	default:
		return fieldError(LabelMinIO, name)
	}
	m.client = nil
	return nil
}

func (m *MinIO) Prepare(ctx context.Context) error {
	port := "443"
	if !m.UseSSL {
		port = "80"
	}
	if err := checkConnectivity(ctx, m.dial, hostPort(m.Endpoint, port), m.opts.ConnectivityTimeout); err != nil {
		return err
	}

	client, err := minio.New(m.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(m.AccessKey, m.SecretKey, ""),
		Secure: m.UseSSL,
		Region: m.Region,
	})
	if err != nil {
		return fmt.Errorf("init minio: %w", err)
	}

	start := time.Now()
	exists, err := client.BucketExists(ctx, m.BucketName)
	metrics.RecordS3Operation("head_bucket", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.BucketName, err)
	}
	if !exists {
		start = time.Now()
		err := client.MakeBucket(ctx, m.BucketName, minio.MakeBucketOptions{Region: m.Region})
		metrics.RecordS3Operation("create_bucket", time.Since(start), err == nil)
		if err != nil {
			return fmt.Errorf("make bucket %s: %w", m.BucketName, err)
		}
		m.logger.Info("created bucket", zap.String("bucket", m.BucketName))
	}

	m.client = client
	return nil
}

func (m *MinIO) Upload(ctx context.Context, localPath string, progress ProgressFunc) error {
	if m.client == nil {
		return ErrNotPrepared
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	start := time.Now()
	_, err = m.client.FPutObject(ctx, m.BucketName, filepath.Base(localPath), localPath, minio.PutObjectOptions{
		ContentType:  "application/octet-stream",
		UserMetadata: map[string]string{"x-amz-acl": "public-read"},
		Progress:     &progressSink{total: info.Size(), fn: progress},
	})
	metrics.RecordS3Operation("put_object", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}

	progress(100)
	return nil
}

// progressSink receives minio-go progress reads; each Read reports the
// number of bytes just sent.
type progressSink struct {
	sent  atomic.Int64
	total int64
	fn    ProgressFunc
}

func (p *progressSink) Read(b []byte) (int, error) {
	n := len(b)
	p.fn(percentOf(p.sent.Add(int64(n)), p.total))
	return n, nil
}
