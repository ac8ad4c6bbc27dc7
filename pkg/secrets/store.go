// Package secrets resolves named credentials once per process.
package secrets

import (
	"flag"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var ErrNotFound = errors.New("secret not found")

type Config struct {
	Store     string `yaml:"store"`
	File      string `yaml:"file"`
	EnvPrefix string `yaml:"env_prefix"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Store, flagPrefix+"store", "env", `Secret backend: env or file.`)
	f.StringVar(&c.File, flagPrefix+"file", "", `YAML file of key: value secrets, used by the file backend.`)
	f.StringVar(&c.EnvPrefix, flagPrefix+"env-prefix", "", `Prefix of environment variables, used by the env backend.`)
}

type Store interface {
	// Get returns the secret named key, or ErrNotFound.
	Get(key string) (string, error)
}

func New(cfg Config) (Store, error) {
	switch cfg.Store {
	case "env":
		return NewCached(&envStore{prefix: cfg.EnvPrefix}), nil
	case "file":
		return NewCached(&fileStore{path: cfg.File}), nil
	default:
		return nil, errors.Errorf("invalid secret store %q", cfg.Store)
	}
}

// envStore maps vault_url to <PREFIX>VAULT_URL.
type envStore struct {
	prefix string
}

func (s *envStore) Get(key string) (string, error) {
	name := strings.ToUpper(s.prefix + key)
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", errors.Wrap(ErrNotFound, name)
	}
	return v, nil
}

type fileStore struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

func (s *fileStore) load() {
	b, err := os.ReadFile(s.path)
	if err != nil {
		s.err = errors.Wrap(err, "read secrets file")
		return
	}
	s.values = map[string]string{}
	if err := yaml.Unmarshal(b, &s.values); err != nil {
		s.err = errors.Wrap(err, "parse secrets file")
	}
}

func (s *fileStore) Get(key string) (string, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return "", s.err
	}
	v, ok := s.values[key]
	if !ok || v == "" {
		return "", errors.Wrap(ErrNotFound, key)
	}
	return v, nil
}

// Cached memoizes successful lookups of the wrapped store.
type Cached struct {
	next Store

	mtx   sync.Mutex
	cache map[string]string
}

func NewCached(next Store) *Cached {
	return &Cached{next: next, cache: map[string]string{}}
}

func (c *Cached) Get(key string) (string, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if v, ok := c.cache[key]; ok {
		return v, nil
	}
	v, err := c.next.Get(key)
	if err != nil {
		return "", err
	}
	c.cache[key] = v
	return v, nil
}

// Lookup returns the secret named key, or fallback when the store does not
// hold it. Other errors are returned.
func Lookup(s Store, key, fallback string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return v, err
}
