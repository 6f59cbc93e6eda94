package destination

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/s3client"
	"squirrelctl/internal/validation"
)

const LabelObjectStorage = "Amazon S3"

const (
	FieldAccessKey = "access_key"
	FieldSecretKey = "secret_key"
	FieldBucket    = "bucket"
	FieldRegion    = "region"
	FieldPath      = "path"
	FieldEndpoint  = "endpoint"
	FieldUseSSL    = "use_ssl"
)

// objectClient is the part of s3client.Client used for uploads.
type objectClient interface {
	EnsureBucket(ctx context.Context) error
	UploadFile(ctx context.Context, localPath, key string, progress s3client.ProgressFunc) error
}

// ObjectStorage uploads artifacts to an Amazon S3 bucket.
type ObjectStorage struct {
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string

	opts      Options
	logger    *zap.Logger
	dial      dialFunc
	newClient func(ctx context.Context, s s3client.Settings, logger *zap.Logger) (objectClient, error)
	client    objectClient
}

func NewObjectStorage(opts Options) *ObjectStorage {
	return &ObjectStorage{
		opts:   opts,
		logger: logging.OrDefault(opts.Logger).With(zap.String("destination", LabelObjectStorage)),
		newClient: func(ctx context.Context, s s3client.Settings, logger *zap.Logger) (objectClient, error) {
			return s3client.New(ctx, s, logger)
		},
	}
}

func (o *ObjectStorage) Label() string { return LabelObjectStorage }

// NormalizeBucketName lowercases name and strips spaces.
func NormalizeBucketName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "")
}

func (o *ObjectStorage) Validate() validation.Result {
	var r validation.Result
	r.Required(FieldRegion, o.Region)
	r.Required(FieldSecretKey, o.SecretKey)
	r.Required(FieldAccessKey, o.AccessKey)
	if strings.TrimSpace(o.BucketName) == "" || hasWhitespace(o.BucketName) {
		r.Add(FieldBucket, "bucket name not valid, it must be non-empty without whitespace")
	}
	return r
}

func (o *ObjectStorage) DownloadURL() string {
	if strings.TrimSpace(o.BucketName) == "" || strings.TrimSpace(o.Region) == "" {
		return MissingParameter
	}
	if o.opts.Endpoint != "" {
		return strings.TrimRight(o.opts.Endpoint, "/") + "/" + o.BucketName + "/" + setupFileName
	}
	return "https://s3-" + o.Region + ".amazonaws.com/" + strings.ToLower(o.BucketName) + "/" + setupFileName
}

func (o *ObjectStorage) Fields() []Field {
	return []Field{
		{Name: FieldAccessKey, Value: o.AccessKey},
		{Name: FieldSecretKey, Value: o.SecretKey, Secret: true},
		{Name: FieldBucket, Value: o.BucketName},
		{Name: FieldRegion, Value: o.Region},
	}
}

func (o *ObjectStorage) SetField(name, value string) error {
	switch name {
	case FieldAccessKey:
		o.AccessKey = value
	case FieldSecretKey:
		o.SecretKey = value
	case FieldBucket:
		o.BucketName = NormalizeBucketName(value)
	case FieldRegion:
		o.Region = value
	default:
		return fieldError(LabelObjectStorage, name)
	}
	o.client = nil
	return nil
}

// Settings returns the client settings for the bucket maintenance commands.
func (o *ObjectStorage) Settings() s3client.Settings {
	return s3client.Settings{
		Endpoint:   o.opts.Endpoint,
		AccessKey:  o.AccessKey,
		SecretKey:  o.SecretKey,
		BucketName: o.BucketName,
		Region:     o.Region,
	}
}

// Prepare checks connectivity and makes sure the bucket exists. Either
// failure aborts the whole batch.
func (o *ObjectStorage) Prepare(ctx context.Context) error {
	host := o.opts.ConnectivityHost
	if o.opts.Endpoint != "" {
		host = endpointHost(o.opts.Endpoint)
	}
	if err := checkConnectivity(ctx, o.dial, host, o.opts.ConnectivityTimeout); err != nil {
		return err
	}

	client, err := o.newClient(ctx, o.Settings(), o.logger)
	if err != nil {
		return fmt.Errorf("create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return err
	}
	o.client = client
	return nil
}

func (o *ObjectStorage) Upload(ctx context.Context, localPath string, progress ProgressFunc) error {
	if o.client == nil {
		return ErrNotPrepared
	}

	key := filepath.Base(localPath)
	err := o.client.UploadFile(ctx, localPath, key, func(done, total int64) {
		progress(percentOf(done, total))
	})
	if err != nil {
		return err
	}
	progress(100)
	return nil
}

// endpointHost extracts host:port from an endpoint URL.
func endpointHost(endpoint string) string {
	port := "443"
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
		port = "80"
	}
	if i := strings.IndexByte(endpoint, '/'); i >= 0 {
		endpoint = endpoint[:i]
	}
	return hostPort(endpoint, port)
}
