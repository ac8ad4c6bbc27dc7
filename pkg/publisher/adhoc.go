package publisher

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/lookup"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// IngestionFolder receives documents fetched by number, outside of the sync.
const IngestionFolder = "ingestion"

type Fetcher interface {
	Source
	Query(ctx context.Context, vql string) ([]json.RawMessage, error)
	SubmitExport(ctx context.Context, ids []int64) ([]string, error)
}

type Lookups interface {
	Refresh(ctx context.Context) (lookup.Snapshot, error)
}

// Fetch exports the latest effective versions of numbers and uploads them
// with their sidecars to the ingestion folder. Sync state is not touched.
func (p *Publisher) Fetch(ctx context.Context, source Fetcher, lookups Lookups, numbers []string) (*Report, error) {
	rep := &Report{RunID: p.runID, StartedAt: p.now().UTC(), Entries: []Entry{}}

	err := p.fetch(ctx, source, lookups, numbers, rep)
	rep.FinishedAt = p.now().UTC()
	if err != nil {
		rep.Error = err.Error()
		level.Error(p.log).Log("msg", "ad-hoc fetch failed", "err", err)
	}

	if nerr := p.notifier.Send(ctx, rep.subject("Ad-hoc fetch"), rep); nerr != nil {
		level.Warn(p.log).Log("msg", "failed to send report", "err", nerr)
	}
	return rep, err
}

func (p *Publisher) fetch(ctx context.Context, source Fetcher, lookups Lookups, numbers []string, rep *Report) error {
	if len(numbers) == 0 {
		return errors.New("no document numbers given")
	}

	snap, err := lookups.Refresh(ctx)
	if err != nil {
		return errors.Wrap(err, "refresh lookup tables")
	}

	rows, err := source.Query(ctx, document.NumbersQuery(numbers))
	if err != nil {
		return errors.Wrap(err, "query documents by number")
	}

	states := make(map[int64]*document.State, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, raw := range rows {
		rec, err := document.Decode(raw)
		if err != nil {
			level.Warn(p.log).Log("msg", "skipping undecodable document row", "err", err)
			continue
		}
		if err := snap.Apply(rec); err != nil {
			var ue *lookup.UnresolvedError
			if !errors.As(err, &ue) {
				return err
			}
			level.Warn(p.log).Log("msg", "publishing with raw business area codes", "document", rec.FileID, "codes", ue.Error())
		}
		if _, seen := states[rec.FileID]; !seen {
			ids = append(ids, rec.FileID)
		}
		st := document.NewState(*rec)
		st.DocumentType = document.ExtractType(rec.DocumentNumber)
		states[rec.FileID] = st
	}
	level.Info(p.log).Log("msg", "documents found", "requested", len(numbers), "found", len(ids))

	jobIDs, err := source.SubmitExport(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "submit export jobs")
	}

	for _, jobID := range jobIDs {
		rep.JobID = jobID
		res, err := source.PollExportResult(ctx, jobID)
		if err != nil {
			return errors.Wrapf(err, "fetch job %s", jobID)
		}
		for _, f := range res.Failed {
			rep.add(Entry{FileID: f.ID, Outcome: OutcomeFailed, Reason: "export failed: " + exportErrors(f.Errors)})
		}
		for _, doc := range res.Documents {
			logger := log.With(p.log, "job_id", jobID, "document", doc.ID)
			e := Entry{FileID: doc.ID}

			st, ok := states[doc.ID]
			if !ok {
				e.Outcome, e.Reason = OutcomeSkipped, "not requested"
				rep.add(e)
				continue
			}

			local, err := source.DownloadBinary(ctx, doc)
			if err != nil {
				rep.add(p.failed(logger, e, err))
				continue
			}

			binary := objstore.Key(IngestionFolder, document.BinaryName(doc.ID))
			sidecar := objstore.Key(IngestionFolder, document.SidecarName(document.BinaryName(doc.ID)))
			err = p.upload(ctx, st, local, binary, sidecar)
			_ = os.Remove(local)
			if err != nil {
				rep.add(p.failed(logger, e, err))
				continue
			}

			level.Info(logger).Log("msg", "document fetched", "key", binary)
			e.Outcome, e.Key = OutcomeOK, binary
			rep.add(e)
		}
	}
	return nil
}
