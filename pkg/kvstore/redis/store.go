package redis

import (
	"context"
	"flag"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string         `yaml:"addr"`
	Password flagext.Secret `yaml:"password"`
	DB       int            `yaml:"db"`
	Prefix   string         `yaml:"prefix"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Addr, flagPrefix+"redis.addr", "localhost:6379", `Redis address`)
	f.Var(&c.Password, flagPrefix+"redis.password", `Redis password`)
	f.IntVar(&c.DB, flagPrefix+"redis.db", 0, `Redis database`)
	f.StringVar(&c.Prefix, flagPrefix+"redis.prefix", "sopsync", `Prefix of every key`)
}

type Store struct {
	client *redis.Client
	prefix string
}

func New(ctx context.Context, cfg Config, logger log.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.String(),
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis kv store ping")
	}

	level.Info(logger).Log("msg", "redis kv store connected", "addr", cfg.Addr)
	return &Store{client: client, prefix: cfg.Prefix}, nil
}

func (s *Store) key(table, id string) string {
	return s.prefix + ":" + table + ":" + id
}

func (s *Store) Get(ctx context.Context, table, id string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.key(table, id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis kv store get "+id)
	}
	return b, true, nil
}

func (s *Store) Put(ctx context.Context, table, id string, body []byte) error {
	if err := s.client.Set(ctx, s.key(table, id), body, 0).Err(); err != nil {
		return errors.Wrap(err, "redis kv store put "+id)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	if err := s.client.Del(ctx, s.key(table, id)).Err(); err != nil {
		return errors.Wrap(err, "redis kv store delete "+id)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	return errors.Wrap(s.client.Close(), "redis kv store close")
}
