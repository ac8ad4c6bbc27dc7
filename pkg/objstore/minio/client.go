package minio

import (
	"context"
	"flag"
	"io"

	"github.com/ValerySidorin/sopsync/pkg/objstore/objerr"
	util_io "github.com/ValerySidorin/sopsync/pkg/util/io"
	"github.com/grafana/dskit/flagext"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

type Config struct {
	Endpoint        string         `yaml:"endpoint"`
	AccessKeyID     string         `yaml:"access_key_id"`
	SecretAccessKey flagext.Secret `yaml:"secret_access_key"`
	Region          string         `yaml:"region"`
	Secure          bool           `yaml:"secure"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Endpoint, flagPrefix+"endpoint", "localhost:9000", `S3-compatible endpoint.`)
	f.StringVar(&c.AccessKeyID, flagPrefix+"access-key-id", "", `Access key id.`)
	f.Var(&c.SecretAccessKey, flagPrefix+"secret-access-key", `Secret access key.`)
	f.StringVar(&c.Region, flagPrefix+"region", "", `Bucket region.`)
	f.BoolVar(&c.Secure, flagPrefix+"secure", false, `Use TLS.`)
}

type Client struct {
	client *minio.Client
	bucket string
}

func New(ctx context.Context, cfg Config, bucket string) (*Client, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey.String(), ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize minio client")
	}

	found, err := minioClient.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.Wrap(err, "check minio bucket exists")
	}

	if !found {
		if err := minioClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, errors.Wrap(err, "make minio bucket")
		}
	}

	return &Client{
		client: minioClient,
		bucket: bucket,
	}, nil
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrap(err, "get minio object "+key)
	}
	defer obj.Close()

	b, err := io.ReadAll(obj)
	if err != nil {
		return nil, wrap(err, "read minio object "+key)
	}
	return b, nil
}

func (c *Client) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	size, err := util_io.TryGetSize(r)
	if err != nil {
		return errors.Wrap(err, "put minio object "+key)
	}

	_, err = c.client.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.Wrap(err, "put minio object "+key)
	}

	return nil
}

func (c *Client) PutFile(ctx context.Context, key string, localPath string) error {
	_, err := c.client.FPutObject(ctx, c.bucket, key, localPath, minio.PutObjectOptions{})
	if err != nil {
		return errors.Wrap(err, "upload minio object "+key)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, "delete minio object "+key)
	}
	return nil
}

func (c *Client) DownloadToLocal(ctx context.Context, key string, localPath string) error {
	if err := c.client.FGetObject(ctx, c.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return wrap(err, "download minio object "+key)
	}
	return nil
}

func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, "list minio objects "+prefix)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func wrap(err error, msg string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errors.Wrap(objerr.ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}
