package pg

import (
	"context"
	"flag"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type Config struct {
	Conn   string `yaml:"conn"`
	Schema string `yaml:"schema"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Conn, flagPrefix+"pg.conn", "", `Postgres connection string`)
	f.StringVar(&c.Schema, flagPrefix+"pg.schema", "public", `Postgres schema holding the tables`)
}

type Store struct {
	cfg  Config
	log  log.Logger
	conn *pgx.Conn

	mtx     sync.Mutex
	created map[string]bool
}

func New(ctx context.Context, cfg Config, logger log.Logger) (*Store, error) {
	conn, err := pgx.Connect(ctx, cfg.Conn)
	if err != nil {
		return nil, errors.Wrap(err, "pg kv store init conn")
	}

	return &Store{
		cfg:     cfg,
		log:     log.With(logger, "component", "pg-kv-store"),
		conn:    conn,
		created: make(map[string]bool),
	}, nil
}

func (s *Store) ident(table string) string {
	return pgx.Identifier{s.cfg.Schema, table}.Sanitize()
}

func (s *Store) ensureTable(ctx context.Context, table string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.created[table] {
		return nil
	}

	q := `create table if not exists ` + s.ident(table) + `
	(id text primary key, body jsonb not null, updated_at timestamptz not null default now());`
	if _, err := s.conn.Exec(ctx, q); err != nil {
		return errors.Wrap(err, "pg kv store init table "+table)
	}

	level.Debug(s.log).Log("msg", "table ready", "table", table)
	s.created[table] = true
	return nil
}

func (s *Store) Get(ctx context.Context, table, id string) ([]byte, bool, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, false, err
	}

	var body []byte
	q := `select body from ` + s.ident(table) + ` where id = $1;`
	err := s.conn.QueryRow(ctx, q, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "pg kv store get "+id)
	}

	return body, true, nil
}

func (s *Store) Put(ctx context.Context, table, id string, body []byte) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	q := `insert into ` + s.ident(table) + `(id, body, updated_at)
	values($1, $2, now())
	on conflict (id) do update set body = excluded.body, updated_at = excluded.updated_at;`
	if _, err := s.conn.Exec(ctx, q, id, string(body)); err != nil {
		return errors.Wrap(err, "pg kv store put "+id)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, table, id string) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	q := `delete from ` + s.ident(table) + ` where id = $1;`
	if _, err := s.conn.Exec(ctx, q, id); err != nil {
		return errors.Wrap(err, "pg kv store delete "+id)
	}

	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.conn.Close(ctx); err != nil {
		return errors.Wrap(err, "pg kv store close connection")
	}
	return nil
}
