package kvstore

import (
	"context"
	"flag"
	"fmt"

	"github.com/ValerySidorin/sopsync/pkg/kvstore/memory"
	"github.com/ValerySidorin/sopsync/pkg/kvstore/pg"
	"github.com/ValerySidorin/sopsync/pkg/kvstore/redis"
	"github.com/go-kit/log"
)

type Config struct {
	Store string       `yaml:"store"`
	Pg    pg.Config    `yaml:"pg"`
	Redis redis.Config `yaml:"redis"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Store, flagPrefix+"store", "pg", `Key-value store holding sync state and generated questions (pg, redis or memory).`)
	c.Pg.RegisterFlags(flagPrefix, f)
	c.Redis.RegisterFlags(flagPrefix, f)
}

// Store keeps JSON bodies keyed by id, grouped in tables. Put overwrites.
type Store interface {
	Get(ctx context.Context, table, id string) ([]byte, bool, error)
	Put(ctx context.Context, table, id string, body []byte) error
	Delete(ctx context.Context, table, id string) error
	Close(ctx context.Context) error
}

func New(ctx context.Context, cfg Config, logger log.Logger) (Store, error) {
	switch cfg.Store {
	case "pg":
		return pg.New(ctx, cfg.Pg, logger)
	case "redis":
		return redis.New(ctx, cfg.Redis, logger)
	case "memory":
		return memory.New(), nil
	}

	return nil, fmt.Errorf("invalid key-value store %q", cfg.Store)
}
