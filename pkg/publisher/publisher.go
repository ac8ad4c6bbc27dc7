// Package publisher downloads the documents of finished export jobs and
// publishes their binaries and metadata sidecars to the knowledge base.
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/jobs"
	"github.com/ValerySidorin/sopsync/pkg/notifier"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/ValerySidorin/sopsync/pkg/syncstate"
	"github.com/ValerySidorin/sopsync/pkg/vault"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Source interface {
	PollExportResult(ctx context.Context, jobID string) (*vault.ExportResult, error)
	DownloadBinary(ctx context.Context, doc *vault.ExportedDocument) (string, error)
}

type Publisher struct {
	runID    string
	source   Source
	states   *syncstate.Store
	objects  objstore.Store
	handoff  *jobs.Handoff
	notifier notifier.Notifier

	log     log.Logger
	metrics *metrics
	now     func() time.Time
}

func New(runID string, source Source, states *syncstate.Store, objects objstore.Store, n notifier.Notifier, reg prometheus.Registerer, logger log.Logger) *Publisher {
	return &Publisher{
		runID:    runID,
		source:   source,
		states:   states,
		objects:  objects,
		handoff:  jobs.NewHandoff(objects),
		notifier: n,
		log:      log.With(logger, "component", "publisher"),
		metrics:  newMetrics(reg),
		now:      time.Now,
	}
}

// PublishPending publishes every job handed off by the retrieve phase.
// Only jobs without any failed document are removed from the handoff, so
// documents left DOWNLOADING are retried by the next invocation. Documents
// already OK are skipped on that retry.
func (p *Publisher) PublishPending(ctx context.Context) ([]*Report, error) {
	pending, err := p.handoff.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending.JobIDs) == 0 {
		level.Info(p.log).Log("msg", "no pending export jobs")
		return []*Report{}, nil
	}

	reports := make([]*Report, 0, len(pending.JobIDs))
	done := make([]string, 0, len(pending.JobIDs))
	var firstErr error
	for _, jobID := range pending.JobIDs {
		rep, err := p.Publish(ctx, jobID)
		reports = append(reports, rep)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if n := rep.Count(OutcomeFailed); n > 0 {
			level.Warn(p.log).Log("msg", "job kept pending", "job_id", jobID, "failed", n)
			continue
		}
		done = append(done, jobID)
	}

	if err := p.handoff.Remove(ctx, done...); err != nil && firstErr == nil {
		firstErr = err
	}
	return reports, firstErr
}

// Publish downloads and publishes every document of jobID. A document
// failure is recorded in the report and does not stop the job; an error is
// returned only when the job results cannot be fetched.
func (p *Publisher) Publish(ctx context.Context, jobID string) (*Report, error) {
	logger := log.With(p.log, "job_id", jobID)
	rep := &Report{RunID: p.runID, JobID: jobID, StartedAt: p.now().UTC(), Entries: []Entry{}}

	res, err := p.source.PollExportResult(ctx, jobID)
	if err != nil {
		rep.Error = err.Error()
		rep.FinishedAt = p.now().UTC()
		level.Error(logger).Log("msg", "failed to fetch export results", "err", err)
		p.notify(ctx, rep)
		return rep, errors.Wrapf(err, "publish job %s", jobID)
	}

	for _, f := range res.Failed {
		rep.add(Entry{FileID: f.ID, Outcome: OutcomeFailed, Reason: "export failed: " + exportErrors(f.Errors)})
		p.metrics.documents.WithLabelValues(string(OutcomeFailed)).Inc()
	}

	for _, doc := range res.Documents {
		e := p.publishDocument(ctx, logger, doc)
		rep.add(e)
		p.metrics.documents.WithLabelValues(string(e.Outcome)).Inc()
	}

	rep.FinishedAt = p.now().UTC()
	level.Info(logger).Log("msg", "job published",
		"ok", rep.Count(OutcomeOK),
		"skipped", rep.Count(OutcomeSkipped),
		"failed", rep.Count(OutcomeFailed))
	p.notify(ctx, rep)
	return rep, nil
}

func (p *Publisher) publishDocument(ctx context.Context, logger log.Logger, doc *vault.ExportedDocument) Entry {
	logger = log.With(logger, "document", doc.ID)
	e := Entry{FileID: doc.ID}

	st, err := p.states.Get(ctx, doc.ID)
	if err != nil {
		return p.failed(logger, e, err)
	}
	if st == nil {
		level.Warn(logger).Log("msg", "no sync state, skipping")
		e.Outcome, e.Reason = OutcomeSkipped, "no sync state"
		return e
	}
	if st.Status != document.StatusDownloading {
		level.Debug(logger).Log("msg", "skipping", "status", st.Status)
		e.Outcome, e.Reason = OutcomeSkipped, "status "+string(st.Status)
		return e
	}
	if doc.MajorVersion != st.MajorVersion {
		level.Warn(logger).Log("msg", "major version mismatch", "exported", doc.MajorVersion, "persisted", st.MajorVersion)
	}

	local, err := p.source.DownloadBinary(ctx, doc)
	if err != nil {
		return p.failed(logger, e, err)
	}
	defer os.Remove(local)

	p.checkPages(logger, local, st.Pages)

	binary, sidecar := st.Keys()
	if err := p.upload(ctx, st, local, binary, sidecar); err != nil {
		return p.failed(logger, e, err)
	}

	st.Status = document.StatusOK
	if err := p.states.Put(ctx, st); err != nil {
		return p.failed(logger, e, err)
	}

	level.Info(logger).Log("msg", "document published", "key", binary)
	e.Outcome, e.Key = OutcomeOK, binary
	return e
}

func (p *Publisher) upload(ctx context.Context, st *document.State, local, binary, sidecar string) error {
	if err := p.objects.PutFile(ctx, binary, local); err != nil {
		return errors.Wrap(err, "upload binary")
	}
	if fi, err := os.Stat(local); err == nil {
		p.metrics.bytes.Add(float64(fi.Size()))
	}

	body, err := st.Sidecar()
	if err != nil {
		return errors.Wrap(err, "encode sidecar")
	}
	if err := p.objects.Put(ctx, sidecar, bytes.NewReader(body), "application/json"); err != nil {
		return errors.Wrap(err, "upload sidecar")
	}
	return nil
}

// checkPages compares the page count of the binary with the one reported by
// the document system. A mismatch or an unreadable file is only logged.
func (p *Publisher) checkPages(logger log.Logger, local string, expected int) {
	n, err := api.PageCountFile(local)
	if err != nil {
		level.Warn(logger).Log("msg", "cannot count pages of binary", "err", err)
		return
	}
	if expected > 0 && n != expected {
		level.Warn(logger).Log("msg", "page count mismatch", "binary", n, "metadata", expected)
	}
}

func (p *Publisher) failed(logger log.Logger, e Entry, err error) Entry {
	level.Error(logger).Log("msg", "failed to publish document", "err", err)
	e.Outcome, e.Reason = OutcomeFailed, err.Error()
	return e
}

func (p *Publisher) notify(ctx context.Context, rep *Report) {
	if err := p.notifier.Send(ctx, rep.subject("Download of job "+rep.JobID), rep); err != nil {
		level.Warn(p.log).Log("msg", "failed to send report", "job_id", rep.JobID, "err", err)
	}
}

func exportErrors(errs []vault.APIError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Type, e.Message))
	}
	return strings.Join(parts, "; ")
}
