// Package memory is a key-value store kept in process memory, used for dry
// runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
)

type Op struct {
	Kind  string
	Table string
	ID    string
}

type Store struct {
	mtx    sync.Mutex
	tables map[string]map[string][]byte
	ops    []Op
}

func New() *Store {
	return &Store{tables: make(map[string]map[string][]byte)}
}

func (s *Store) Get(_ context.Context, table, id string) ([]byte, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	b, ok := s.tables[table][id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Store) Put(_ context.Context, table, id string, body []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t, ok := s.tables[table]
	if !ok {
		t = make(map[string][]byte)
		s.tables[table] = t
	}
	t[id] = append([]byte(nil), body...)
	s.ops = append(s.ops, Op{Kind: "put", Table: table, ID: id})
	return nil
}

func (s *Store) Delete(_ context.Context, table, id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	delete(s.tables[table], id)
	s.ops = append(s.ops, Op{Kind: "delete", Table: table, ID: id})
	return nil
}

func (s *Store) Close(context.Context) error { return nil }

// IDs lists the ids stored in table, sorted.
func (s *Store) IDs(table string) []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	ids := make([]string, 0, len(s.tables[table]))
	for id := range s.tables[table] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) Ops() []Op {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]Op(nil), s.ops...)
}
