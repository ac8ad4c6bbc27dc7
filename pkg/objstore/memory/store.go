// Package memory is an object store kept in process memory, used for dry
// runs and tests.
package memory

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ValerySidorin/sopsync/pkg/objstore/objerr"
	"github.com/pkg/errors"
)

type Op struct {
	Kind string
	Key  string
}

type Store struct {
	mtx     sync.Mutex
	objects map[string][]byte
	ops     []Op
}

func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	b, ok := s.objects[key]
	if !ok {
		return nil, errors.Wrap(objerr.ErrNotFound, key)
	}
	return append([]byte(nil), b...), nil
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read object body")
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.objects[key] = b
	s.ops = append(s.ops, Op{Kind: "put", Key: key})
	return nil
}

func (s *Store) PutFile(ctx context.Context, key string, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(err, "open upload source")
	}
	defer f.Close()
	return s.Put(ctx, key, f, "")
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.objects, key)
	s.ops = append(s.ops, Op{Kind: "delete", Key: key})
	return nil
}

func (s *Store) DownloadToLocal(ctx context.Context, key string, localPath string) error {
	b, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(localPath, b, 0o644), "write local copy")
}

func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	keys := make([]string, 0)
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ops returns the writes and deletes applied so far, in order.
func (s *Store) Ops() []Op {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]Op(nil), s.ops...)
}
