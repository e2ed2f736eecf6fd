// Package sink ships decrypted outputs to remote storage.
package sink

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Uploader copies a local file to key on some remote store.
type Uploader interface {
	Upload(ctx context.Context, key, localPath string) error
}

type S3Config struct {
	Endpoint    string `mapstructure:"endpoint"`
	Region      string `mapstructure:"region"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	Bucket      string `mapstructure:"bucket"`
	Prefix      string `mapstructure:"prefix"`
	PathStyle   bool   `mapstructure:"path_style"`
	Insecure    bool   `mapstructure:"insecure"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

// Enabled reports whether enough is configured to upload anything.
func (c *S3Config) Enabled() bool {
	return c.Bucket != ""
}

// s3PutAPI is the slice of the s3 client the uploader needs.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client s3PutAPI
	bucket string
	prefix string
}

func NewS3Uploader(ctx context.Context, c *S3Config) (*S3Uploader, error) {
	if !c.Enabled() {
		return nil, errors.New("s3 bucket is not set")
	}
	httpClient := http.DefaultClient
	if c.Insecure && strings.HasPrefix(c.Endpoint, "https://") {
		httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
		config.WithRegion(c.Region),
	}
	if c.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
		o.UsePathStyle = c.PathStyle
		o.Retryer = retry.NewStandard(func(so *retry.StandardOptions) {
			so.MaxAttempts = maxAttempts
		})
	})
	return newS3Uploader(client, c.Bucket, c.Prefix), nil
}

func newS3Uploader(client s3PutAPI, bucket, prefix string) *S3Uploader {
	return &S3Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// ObjectKey places key under the configured prefix.
func (u *S3Uploader) ObjectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if u.prefix == "" {
		return key
	}
	return path.Join(u.prefix, key)
}

func (u *S3Uploader) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", localPath)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", localPath)
	}
	objectKey := u.ObjectKey(key)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
	})
	if err != nil {
		return errors.Wrapf(err, "put s3://%s/%s", u.bucket, objectKey)
	}
	log.WithFields(log.Fields{"bucket": u.bucket, "key": objectKey, "size": fi.Size()}).Debug("uploaded")
	return nil
}
