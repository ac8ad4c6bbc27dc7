// Package jobs hands export job ids from the retrieve phase to the download
// phase through a JSON object in object storage.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const Key = "jobs/pending.json"

type Pending struct {
	RunID     string    `json:"run_id"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	JobIDs    []string  `json:"job_ids"`
}

type Handoff struct {
	store objstore.Store
}

func NewHandoff(store objstore.Store) *Handoff {
	return &Handoff{store: store}
}

// Load returns an empty Pending when nothing was handed off.
func (h *Handoff) Load(ctx context.Context) (*Pending, error) {
	b, err := h.store.Get(ctx, Key)
	if errors.Is(err, objstore.ErrNotFound) {
		return &Pending{JobIDs: []string{}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read pending jobs")
	}

	var p Pending
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, errors.Wrap(err, "decode pending jobs")
	}
	if p.JobIDs == nil {
		p.JobIDs = []string{}
	}
	return &p, nil
}

// Append adds ids to the pending list, keeping ids queued by earlier runs
// that were not published yet.
func (h *Handoff) Append(ctx context.Context, p Pending) error {
	cur, err := h.Load(ctx)
	if err != nil {
		return err
	}
	p.JobIDs = lo.Uniq(append(cur.JobIDs, p.JobIDs...))
	return h.Save(ctx, &p)
}

func (h *Handoff) Save(ctx context.Context, p *Pending) error {
	if len(p.JobIDs) == 0 {
		return h.store.Delete(ctx, Key)
	}

	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode pending jobs")
	}
	return errors.Wrap(h.store.Put(ctx, Key, bytes.NewReader(b), "application/json"), "write pending jobs")
}

// Remove drops done from the pending list.
func (h *Handoff) Remove(ctx context.Context, done ...string) error {
	cur, err := h.Load(ctx)
	if err != nil {
		return err
	}
	cur.JobIDs = lo.Without(cur.JobIDs, done...)
	return h.Save(ctx, cur)
}
