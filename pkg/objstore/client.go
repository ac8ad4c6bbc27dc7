package objstore

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path"

	"github.com/ValerySidorin/sopsync/pkg/objstore/memory"
	"github.com/ValerySidorin/sopsync/pkg/objstore/minio"
	"github.com/ValerySidorin/sopsync/pkg/objstore/objerr"
)

var ErrNotFound = objerr.ErrNotFound

type Config struct {
	Store  string       `yaml:"store"`
	Bucket string       `yaml:"bucket"`
	Minio  minio.Config `yaml:"minio"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Store, flagPrefix+"store", "minio", `Object storage used for binaries, sidecars and lookup snapshots (minio or memory).`)
	f.StringVar(&c.Bucket, flagPrefix+"bucket", "sopsync", `Bucket holding every object.`)
	c.Minio.RegisterFlags(flagPrefix+"minio.", f)
}

// Store is a flat key space of objects. Get and DownloadToLocal return
// ErrNotFound for absent keys; Delete of an absent key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	PutFile(ctx context.Context, key string, localPath string) error
	Delete(ctx context.Context, key string) error
	DownloadToLocal(ctx context.Context, key string, localPath string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Store {
	case "minio":
		return minio.New(ctx, cfg.Minio, cfg.Bucket)
	case "memory":
		return memory.New(), nil
	}

	return nil, fmt.Errorf("invalid object store %q", cfg.Store)
}

func Key(folder, name string) string {
	return path.Join(folder, name)
}
