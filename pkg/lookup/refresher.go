package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const Folder = "constants"

type Querier interface {
	Query(ctx context.Context, vql string) ([]json.RawMessage, error)
}

// Refresher merges the cached snapshot of every table with the entries
// changed upstream and writes the result back. The merged snapshot is kept
// for the lifetime of the Refresher.
type Refresher struct {
	q     Querier
	store objstore.Store
	log   log.Logger
	now   func() time.Time

	mtx      sync.Mutex
	snapshot Snapshot
}

func NewRefresher(q Querier, store objstore.Store, logger log.Logger) *Refresher {
	return &Refresher{
		q:     q,
		store: store,
		log:   log.With(logger, "component", "lookup"),
		now:   time.Now,
	}
}

func SnapshotKey(name string) string {
	return objstore.Key(Folder, name+".json")
}

func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.snapshot != nil {
		return r.snapshot, nil
	}

	snap := make(Snapshot, len(Tables))
	for _, t := range Tables {
		cached, err := r.cached(ctx, t.Name)
		if err != nil {
			return nil, err
		}

		live, err := r.live(ctx, t)
		if err != nil {
			return nil, err
		}

		snap[t.Name] = Merge(cached, live)
		level.Debug(r.log).Log("msg", "lookup table merged", "table", t.Name, "cached", len(cached), "live", len(live), "merged", len(snap[t.Name]))
	}

	for _, t := range Tables {
		b, err := json.MarshalIndent(snap[t.Name], "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "encode lookup table "+t.Name)
		}
		if err := r.store.Put(ctx, SnapshotKey(t.Name), bytes.NewReader(b), "application/json"); err != nil {
			return nil, errors.Wrap(err, "write lookup table "+t.Name)
		}
	}

	level.Info(r.log).Log("msg", "lookup tables refreshed", "tables", len(snap))
	r.snapshot = snap
	return snap, nil
}

func (r *Refresher) cached(ctx context.Context, name string) (Mapping, error) {
	b, err := r.store.Get(ctx, SnapshotKey(name))
	if errors.Is(err, objstore.ErrNotFound) {
		return Mapping{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read lookup table "+name)
	}

	m := Mapping{}
	if err := json.Unmarshal(b, &m); err != nil {
		level.Warn(r.log).Log("msg", "ignoring unreadable lookup snapshot", "table", name, "err", err)
		return Mapping{}, nil
	}
	return m, nil
}

func (r *Refresher) live(ctx context.Context, t Table) (Mapping, error) {
	rows, err := r.q.Query(ctx, document.LookupQuery(t.Source, r.now()))
	if err != nil {
		return nil, errors.Wrap(err, "query lookup table "+t.Source)
	}

	m := make(Mapping, len(rows))
	for _, raw := range rows {
		var e struct {
			ID   string `json:"id"`
			Name string `json:"name__v"`
		}
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, errors.Wrap(err, "decode lookup row of "+t.Source)
		}
		m[e.ID] = e.Name
	}
	return m, nil
}
