package s3client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/metrics"
	"squirrelctl/internal/models"
	"squirrelctl/pkg/utils"
)

// Settings identifies a bucket and the credentials used to reach it.
type Settings struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string
}

type Client struct {
	s3Client *s3.Client
	settings Settings
	logger   *zap.Logger
}

// ProgressFunc receives the number of bytes read so far and the file size.
type ProgressFunc func(done, total int64)

func New(ctx context.Context, settings Settings, logger *zap.Logger) (*Client, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(settings.Region),
		config.WithCredentialsProvider(credentials.StaticCredentialsProvider{
			Value: aws.Credentials{
				AccessKeyID:     settings.AccessKey,
				SecretAccessKey: settings.SecretKey,
			},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Client *s3.Client
	if settings.Endpoint != "" {
		s3Client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(settings.Endpoint)
			o.UsePathStyle = true
		})
	} else {
		s3Client = s3.NewFromConfig(awsConfig)
	}

	return &Client{
		s3Client: s3Client,
		settings: settings,
		logger:   logging.OrDefault(logger).With(zap.String("bucket", settings.BucketName)),
	}, nil
}

// EnsureBucket creates the bucket when HeadBucket cannot find it.
func (c *Client) EnsureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.settings.BucketName),
	})
	if err == nil {
		metrics.RecordS3Operation("head_bucket", time.Since(start), true)
		return nil
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(c.settings.BucketName),
	}
	// us-east-1 rejects an explicit location constraint
	if c.settings.Endpoint == "" && c.settings.Region != "" && c.settings.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.settings.Region),
		}
	}

	start = time.Now()
	if _, createErr := c.s3Client.CreateBucket(ctx, input); createErr != nil {
		metrics.RecordS3Operation("create_bucket", time.Since(start), false)
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", c.settings.BucketName, createErr)
	}
	metrics.RecordS3Operation("create_bucket", time.Since(start), true)
	c.logger.Info("created S3 bucket")
	return nil
}

// UploadFile streams localPath to key with a public-read ACL.
func (c *Client) UploadFile(ctx context.Context, localPath, key string, progress ProgressFunc) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", localPath, err)
	}

	body := &progressReader{r: file, total: info.Size(), fn: progress}

	start := time.Now()
	uploader := manager.NewUploader(c.s3Client)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.settings.BucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(detectContentType(localPath)),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	metrics.RecordS3Operation("put_object", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	c.logger.Debug("uploaded object", zap.String("key", key), zap.Int64("bytes", info.Size()))
	return nil
}

func (c *Client) GetBucketInfo(ctx context.Context) (*models.BucketInfo, error) {
	bucketName := c.settings.BucketName

	locationResp, err := c.s3Client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucketName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket location: %w", err)
	}

	region := string(locationResp.LocationConstraint)
	if region == "" {
		region = c.settings.Region
	}

	var objectCount int64
	var totalSize int64
	var lastModified time.Time

	err = c.eachObject(ctx, "", func(obj types.Object) error {
		objectCount++
		totalSize += aws.ToInt64(obj.Size)
		if obj.LastModified != nil && obj.LastModified.After(lastModified) {
			lastModified = *obj.LastModified
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	bucketsResp, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	var creationDate time.Time
	for _, bucket := range bucketsResp.Buckets {
		if aws.ToString(bucket.Name) == bucketName {
			creationDate = aws.ToTime(bucket.CreationDate)
			break
		}
	}

	return &models.BucketInfo{
		BucketName:     bucketName,
		Region:         region,
		CreationDate:   creationDate,
		ObjectCount:    objectCount,
		TotalSizeBytes: totalSize,
		TotalSizeHuman: utils.FormatBytes(totalSize),
		LastModified:   lastModified,
		APIEndpoint:    c.settings.Endpoint,
	}, nil
}

// DeleteOldFiles removes release objects under prefix last modified more
// than daysOld days ago. RELEASES and Setup.exe always describe the current
// version and are kept. With dryRun set the matching keys are only listed.
func (c *Client) DeleteOldFiles(ctx context.Context, prefix string, daysOld int, dryRun bool) (*models.DeleteResult, error) {
	bucketName := c.settings.BucketName
	cutoffDate := time.Now().AddDate(0, 0, -daysOld)

	listPrefix := prefix
	if !strings.HasSuffix(listPrefix, "/") && listPrefix != "" {
		listPrefix += "/"
	}

	var toDelete []types.ObjectIdentifier
	var deletedFiles []string
	var totalSize int64

	err := c.eachObject(ctx, listPrefix, func(obj types.Object) error {
		if !IsReleaseKey(aws.ToString(obj.Key)) || isCurrentReleaseKey(aws.ToString(obj.Key)) {
			return nil
		}
		if obj.LastModified != nil && obj.LastModified.Before(cutoffDate) {
			toDelete = append(toDelete, types.ObjectIdentifier{Key: obj.Key})
			deletedFiles = append(deletedFiles, aws.ToString(obj.Key))
			totalSize += aws.ToInt64(obj.Size)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	deletedCount := 0
	if dryRun {
		toDelete = nil
	}
	for i := 0; i < len(toDelete); i += 1000 {
		end := i + 1000
		if end > len(toDelete) {
			end = len(toDelete)
		}

		start := time.Now()
		_, err := c.s3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucketName),
			Delete: &types.Delete{
				Objects: toDelete[i:end],
			},
		})
		metrics.RecordS3Operation("delete_objects", time.Since(start), err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to delete objects batch: %w", err)
		}
		deletedCount += end - i
	}

	return &models.DeleteResult{
		BucketName:     bucketName,
		Prefix:         prefix,
		DaysOld:        daysOld,
		DeletedFiles:   deletedFiles,
		DeletedCount:   deletedCount,
		DryRun:         dryRun,
		TotalSizeBytes: totalSize,
		TotalSizeHuman: utils.FormatBytes(totalSize),
		OperationTime:  utils.FormatTime(time.Now()),
		CutoffDate:     utils.FormatTime(cutoffDate),
	}, nil
}

// DownloadReleases copies the remote RELEASES file and packages into
// releaseDir so the next releasify run can compute deltas.
func (c *Client) DownloadReleases(ctx context.Context, releaseDir string) (*models.DownloadResult, error) {
	startTime := time.Now()

	if err := os.MkdirAll(releaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create release directory: %w", err)
	}

	var keys []types.Object
	err := c.eachObject(ctx, "", func(obj types.Object) error {
		key := aws.ToString(obj.Key)
		if IsReleaseKey(key) && !strings.EqualFold(key, "Setup.exe") {
			keys = append(keys, obj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	downloader := manager.NewDownloader(c.s3Client)
	var items []models.DownloadItem
	var totalSize int64

	for _, obj := range keys {
		key := aws.ToString(obj.Key)
		localPath := filepath.Join(releaseDir, filepath.Base(key))

		err := utils.WriteFileAtomic(localPath, 0o644, func(w io.Writer) error {
			start := time.Now()
			_, err := downloader.Download(ctx, sequentialWriter{w}, &s3.GetObjectInput{
				Bucket: aws.String(c.settings.BucketName),
				Key:    aws.String(key),
			}, func(d *manager.Downloader) { d.Concurrency = 1 })
			metrics.RecordS3Operation("get_object", time.Since(start), err == nil)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", key, err)
		}

		size := aws.ToInt64(obj.Size)
		items = append(items, models.DownloadItem{
			RemotePath:   key,
			LocalPath:    localPath,
			Size:         size,
			LastModified: utils.FormatTime(aws.ToTime(obj.LastModified)),
		})
		totalSize += size
	}

	return &models.DownloadResult{
		BucketName:       c.settings.BucketName,
		ReleaseDir:       releaseDir,
		Items:            items,
		TotalFiles:       len(items),
		TotalSizeBytes:   totalSize,
		TotalSizeHuman:   utils.FormatBytes(totalSize),
		OperationTime:    utils.FormatTime(startTime),
		DownloadDuration: utils.FormatDuration(time.Since(startTime)),
	}, nil
}

func (c *Client) eachObject(ctx context.Context, prefix string, fn func(types.Object) error) error {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(c.settings.BucketName)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsReleaseKey reports whether key names a release artifact.
func IsReleaseKey(key string) bool {
	name := strings.ToLower(filepath.Base(key))
	return name == "releases" || name == "setup.exe" || strings.HasSuffix(name, ".nupkg")
}

func isCurrentReleaseKey(key string) bool {
	name := strings.ToLower(filepath.Base(key))
	return name == "releases" || name == "setup.exe"
}

// BuildRemotePath joins a key prefix and a file name.
func BuildRemotePath(prefix, filename string) string {
	if prefix == "" {
		return filename
	}

	prefix = strings.TrimPrefix(prefix, "/")

	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return prefix + filename
}

func detectContentType(filename string) string {
	name := strings.ToLower(filepath.Base(filename))
	if name == "releases" {
		return "text/plain"
	}

	contentTypes := map[string]string{
		".nupkg": "application/zip",
		".zip":   "application/zip",
		".exe":   "application/vnd.microsoft.portable-executable",
		".msi":   "application/x-msi",
		".txt":   "text/plain",
		".json":  "application/json",
		".xml":   "application/xml",
	}

	if contentType, exists := contentTypes[filepath.Ext(name)]; exists {
		return contentType
	}

	return "application/octet-stream"
}

type progressReader struct {
	r     io.Reader
	read  atomic.Int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.fn(p.read.Add(int64(n)), p.total)
	}
	return n, err
}

// sequentialWriter adapts an io.Writer for a downloader limited to one part
// at a time, where WriteAt offsets always arrive in order.
type sequentialWriter struct {
	w io.Writer
}

func (s sequentialWriter) WriteAt(p []byte, _ int64) (int, error) {
	return s.w.Write(p)
}
