// Package syncstate persists document.State records in a key-value store.
package syncstate

import (
	"context"
	"encoding/json"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/kvstore"
	"github.com/pkg/errors"
)

const Table = "documents"

type Store struct {
	kv kvstore.Store
}

func New(kv kvstore.Store) *Store {
	return &Store{kv: kv}
}

// Get returns nil without error when no state is stored for fileID.
func (s *Store) Get(ctx context.Context, fileID int64) (*document.State, error) {
	b, found, err := s.kv.Get(ctx, Table, document.KeyOf(fileID))
	if err != nil {
		return nil, errors.Wrapf(err, "get state of document %d", fileID)
	}
	if !found {
		return nil, nil
	}

	var st document.State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, errors.Wrapf(err, "decode state of document %d", fileID)
	}
	return &st, nil
}

func (s *Store) Put(ctx context.Context, st *document.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return errors.Wrapf(err, "encode state of document %d", st.FileID)
	}
	if err := s.kv.Put(ctx, Table, st.Key(), b); err != nil {
		return errors.Wrapf(err, "put state of document %d", st.FileID)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, fileID int64) error {
	if err := s.kv.Delete(ctx, Table, document.KeyOf(fileID)); err != nil {
		return errors.Wrapf(err, "delete state of document %d", fileID)
	}
	return nil
}
