// Package reconciler plans a synchronization run: it decides for every
// candidate document whether it is new, updated or withdrawn, persists the
// transition and submits the export jobs the download phase will publish.
package reconciler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/jobs"
	"github.com/ValerySidorin/sopsync/pkg/lookup"
	"github.com/ValerySidorin/sopsync/pkg/notifier"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/ValerySidorin/sopsync/pkg/syncstate"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

type Source interface {
	Query(ctx context.Context, vql string) ([]json.RawMessage, error)
	SubmitExport(ctx context.Context, ids []int64) ([]string, error)
}

type Lookups interface {
	Refresh(ctx context.Context) (lookup.Snapshot, error)
}

type Reconciler struct {
	runID string
	sites document.SiteConfig

	source   Source
	lookups  Lookups
	states   *syncstate.Store
	objects  objstore.Store
	handoff  *jobs.Handoff
	notifier notifier.Notifier

	log     log.Logger
	metrics *metrics
	now     func() time.Time
}

func New(
	runID string,
	sites document.SiteConfig,
	source Source,
	lookups Lookups,
	states *syncstate.Store,
	objects objstore.Store,
	n notifier.Notifier,
	reg prometheus.Registerer,
	logger log.Logger,
) *Reconciler {
	return &Reconciler{
		runID:    runID,
		sites:    sites,
		source:   source,
		lookups:  lookups,
		states:   states,
		objects:  objects,
		handoff:  jobs.NewHandoff(objects),
		notifier: n,
		log:      log.With(logger, "component", "reconciler"),
		metrics:  newMetrics(reg),
		now:      time.Now,
	}
}

// Run reconciles the candidate documents of mode and the withdrawals of the
// trailing window. The summary is always sent; on error it carries the
// partial counts and the error is returned.
func (r *Reconciler) Run(ctx context.Context, mode document.Mode) (*Summary, error) {
	s := newSummary(r.runID, mode, r.now().UTC())

	err := r.run(ctx, mode, s)
	s.FinishedAt = r.now().UTC()

	outcome := "success"
	if err != nil {
		outcome = "failure"
		s.Error = err.Error()
		level.Error(r.log).Log("msg", "reconcile failed", "mode", mode, "err", err)
	} else {
		level.Info(r.log).Log("msg", "reconcile finished", "mode", mode,
			"create", s.Counts[document.ActionCreate],
			"update", s.Counts[document.ActionUpdate],
			"delete", s.Counts[document.ActionDelete],
			"jobs", len(s.JobIDs))
	}
	r.metrics.runs.WithLabelValues(outcome).Inc()

	if nerr := r.notifier.Send(ctx, s.subject(), payload{Summary: s, UnresolvedCodes: s.UnresolvedIDs()}); nerr != nil {
		level.Warn(r.log).Log("msg", "failed to send run summary", "err", nerr)
	}
	return s, err
}

func (r *Reconciler) run(ctx context.Context, mode document.Mode, s *Summary) error {
	sites := r.sites.For(mode)
	if len(sites) == 0 {
		return errors.Errorf("no sites configured for %s mode", mode)
	}

	snap, err := r.lookups.Refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refresh lookup tables")
	}

	rows, err := r.source.Query(ctx, document.DocumentsQuery(mode, r.now()))
	if err != nil {
		return errors.Wrap(err, "query candidate documents")
	}

	records := r.decode(rows, s)
	level.Info(r.log).Log("msg", "candidate documents", "rows", len(rows), "documents", len(records))

	queued := make([]int64, 0, len(records))
	for _, rec := range records {
		ok, err := r.reconcile(ctx, mode, sites, snap, rec, s)
		if err != nil {
			return errors.Wrapf(err, "reconcile document %d", rec.FileID)
		}
		if ok {
			queued = append(queued, rec.FileID)
		}
	}
	s.Checked = len(queued)

	jobIDs, err := r.source.SubmitExport(ctx, queued)
	s.JobIDs = append(s.JobIDs, jobIDs...)
	r.metrics.exportJobs.Add(float64(len(jobIDs)))
	if len(jobIDs) > 0 {
		herr := r.handoff.Append(ctx, jobs.Pending{
			RunID:     r.runID,
			Mode:      string(mode),
			CreatedAt: r.now().UTC(),
			JobIDs:    jobIDs,
		})
		if herr != nil && err == nil {
			err = herr
		}
	}
	if err != nil {
		return errors.Wrap(err, "submit export jobs")
	}

	return r.withdraw(ctx, s)
}

// decode turns rows into records, keeping the highest version of every
// document. Rows that cannot be decoded are logged and counted.
func (r *Reconciler) decode(rows []json.RawMessage, s *Summary) []*document.Record {
	byID := make(map[int64]*document.Record, len(rows))
	order := make([]int64, 0, len(rows))

	for _, raw := range rows {
		rec, err := document.Decode(raw)
		if err != nil {
			level.Warn(r.log).Log("msg", "skipping undecodable document row", "err", err)
			s.Invalid++
			r.metrics.skipped.WithLabelValues("invalid").Inc()
			continue
		}

		prev, seen := byID[rec.FileID]
		if !seen {
			order = append(order, rec.FileID)
			byID[rec.FileID] = rec
			continue
		}
		if newer(rec, prev) {
			byID[rec.FileID] = rec
		}
	}

	return lo.Map(order, func(id int64, _ int) *document.Record { return byID[id] })
}

func newer(a, b *document.Record) bool {
	if a.MajorVersion != b.MajorVersion {
		return a.MajorVersion > b.MajorVersion
	}
	return a.MinorVersion > b.MinorVersion
}

// reconcile persists the DOWNLOADING state of rec and reports whether it was
// queued for export.
func (r *Reconciler) reconcile(ctx context.Context, mode document.Mode, sites document.Sites, snap lookup.Snapshot, rec *document.Record, s *Summary) (bool, error) {
	if err := snap.Apply(rec); err != nil {
		var ue *lookup.UnresolvedError
		if errors.As(err, &ue) {
			level.Warn(r.log).Log("msg", "skipping document with unresolved business areas", "document", rec.FileID, "codes", ue.Error())
			s.Unresolved[rec.Key()] = ue
			r.metrics.skipped.WithLabelValues("unresolved").Inc()
			return false, nil
		}
		return false, err
	}

	site, ok := document.Route(rec, sites)
	if !ok {
		level.Debug(r.log).Log("msg", "document matches no site", "document", rec.FileID)
		s.Unrouted++
		r.metrics.skipped.WithLabelValues("unrouted").Inc()
		return false, nil
	}

	existing, err := r.states.Get(ctx, rec.FileID)
	if err != nil {
		return false, err
	}

	action := document.ActionCreate
	st := document.NewState(*rec)
	var published []string
	if existing != nil {
		action = document.ActionUpdate
		if existing.Site != "" {
			binary, sidecar := existing.Keys()
			published = []string{binary, sidecar}
		}
		if mode == document.ModeLoad {
			st = existing
		}
	}

	st.Site = site
	st.DocumentType = document.ExtractType(st.DocumentNumber)
	st.Status = document.StatusDownloading

	if err := r.removeMoved(ctx, st, published); err != nil {
		return false, err
	}
	if existing != nil && mode == document.ModeIncremental {
		if err := r.states.Delete(ctx, rec.FileID); err != nil {
			return false, err
		}
	}

	if err := r.states.Put(ctx, st); err != nil {
		return false, err
	}

	s.record(rec.Key(), action)
	r.metrics.documents.WithLabelValues(string(action)).Inc()
	level.Debug(r.log).Log("msg", "document queued", "document", rec.FileID, "action", action, "site", site, "type", st.DocumentType)
	return true, nil
}

// removeMoved deletes the objects published under the previous site or
// document type of st, which nothing would reference once st is stored.
func (r *Reconciler) removeMoved(ctx context.Context, st *document.State, published []string) error {
	if len(published) == 0 {
		return nil
	}
	if binary, _ := st.Keys(); binary == published[0] {
		return nil
	}

	for _, key := range published {
		if err := r.objects.Delete(ctx, key); err != nil {
			return errors.Wrapf(err, "delete %s of moved document %d", key, st.FileID)
		}
	}
	level.Info(r.log).Log("msg", "document moved, previous objects removed", "document", st.FileID, "from", published[0])
	return nil
}

// withdraw removes the published binary, sidecar and state of every
// document withdrawn or superseded inside the trailing window.
func (r *Reconciler) withdraw(ctx context.Context, s *Summary) error {
	rows, err := r.source.Query(ctx, document.WithdrawnQuery(r.now()))
	if err != nil {
		return errors.Wrap(err, "query withdrawn documents")
	}

	for _, raw := range rows {
		ref, err := document.DecodeRef(raw)
		if err != nil {
			level.Warn(r.log).Log("msg", "skipping undecodable withdrawn row", "err", err)
			continue
		}

		st, err := r.states.Get(ctx, ref.FileID)
		if err != nil {
			return err
		}
		if st == nil {
			continue
		}

		binary, sidecar := st.Keys()
		for _, key := range []string{binary, sidecar} {
			if err := r.objects.Delete(ctx, key); err != nil {
				return errors.Wrapf(err, "delete %s of withdrawn document %d", key, ref.FileID)
			}
		}
		if err := r.states.Delete(ctx, ref.FileID); err != nil {
			return err
		}

		s.record(document.KeyOf(ref.FileID), document.ActionDelete)
		r.metrics.documents.WithLabelValues(string(document.ActionDelete)).Inc()
		level.Info(r.log).Log("msg", "withdrawn document removed", "document", ref.FileID, "name", ref.Name)
	}
	return nil
}
