package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ValerySidorin/sopsync/pkg/util/jsonx"
	"github.com/ValerySidorin/sopsync/pkg/util/retry"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const exportEndpoint = "objects/documents/batch/actions/fileextract"

// ExportedDocument is one item of a finished export job.
type ExportedDocument struct {
	ID             int64
	ResponseStatus string
	MajorVersion   int
	MinorVersion   int
	File           string
	UserID         int64

	// Set by DownloadBinary.
	LocalPath string
}

type FailedExport struct {
	ID     int64
	Errors []APIError
}

type ExportResult struct {
	JobID     string
	Documents []*ExportedDocument
	Failed    []FailedExport
}

// SubmitExport starts one export job per batch of at most
// Config.ExportBatchSize documents and returns the job ids in batch order.
func (c *Client) SubmitExport(ctx context.Context, ids []int64) ([]string, error) {
	jobs := make([]string, 0)
	for _, chunk := range lo.Chunk(ids, c.cfg.ExportBatchSize) {
		job, err := c.submitBatch(ctx, chunk)
		if err != nil {
			return jobs, err
		}
		level.Info(c.log).Log("msg", "export job submitted", "job_id", job, "documents", len(chunk))
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (c *Client) submitBatch(ctx context.Context, ids []int64) (string, error) {
	if len(ids) > MaxExportBatch {
		return "", errors.Errorf("export batch of %d documents exceeds %d", len(ids), MaxExportBatch)
	}

	body, err := json.Marshal(lo.Map(ids, func(id int64, _ int) map[string]string {
		return map[string]string{"id": strconv.FormatInt(id, 10)}
	}))
	if err != nil {
		return "", errors.Wrap(err, "encode export request")
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	var job string
	err = c.withSession(ctx, func(session string) error {
		env, err := c.call(ctx, "export", http.MethodPost, exportEndpoint+"?source=false&renditions=true", session, bytes.NewReader(body), header)
		if err != nil {
			return err
		}
		if env.ResponseStatus == "FAILURE" || env.JobID == 0 {
			return &FailureError{Op: "export", Errors: env.Errors}
		}
		job = strconv.FormatInt(int64(env.JobID), 10)
		return nil
	})
	return job, err
}

type exportItem struct {
	ResponseStatus string      `json:"responseStatus"`
	ID             jsonx.Int64 `json:"id"`
	MajorVersion   jsonx.Int64 `json:"major_version_number__v"`
	MinorVersion   jsonx.Int64 `json:"minor_version_number__v"`
	File           string      `json:"file"`
	UserID         jsonx.Int64 `json:"user_id__v"`
	Errors         []APIError  `json:"errors"`
}

// PollExportResult fetches the results of an export job. A job without
// results yet is polled again under the not-ready policy; each poll runs
// under the expiry policy. Only items exported successfully are returned as
// documents, the others are listed in Failed.
func (c *Client) PollExportResult(ctx context.Context, jobID string) (*ExportResult, error) {
	var items []exportItem
	err := retry.Do(ctx, c.notReadyPolicy, c.log, func(int) error {
		return c.withSession(ctx, func(session string) error {
			env, err := c.call(ctx, "export-results", http.MethodGet, exportEndpoint+"/"+jobID+"/results", session, nil, nil)
			if err != nil {
				return err
			}
			if env.ResponseStatus == "FAILURE" {
				return errors.Wrapf(ErrNotReady, "job %s: %s", jobID, (&FailureError{Op: "export-results", Errors: env.Errors}).Error())
			}

			items = make([]exportItem, 0)
			if len(env.Data) > 0 {
				if err := json.Unmarshal(env.Data, &items); err != nil {
					return errors.Wrap(err, "decode export results")
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "poll export job %s", jobID)
	}

	res := &ExportResult{JobID: jobID, Documents: make([]*ExportedDocument, 0, len(items))}
	for _, it := range items {
		if it.ResponseStatus != "SUCCESS" {
			res.Failed = append(res.Failed, FailedExport{ID: int64(it.ID), Errors: it.Errors})
			continue
		}
		res.Documents = append(res.Documents, &ExportedDocument{
			ID:             int64(it.ID),
			ResponseStatus: it.ResponseStatus,
			MajorVersion:   int(it.MajorVersion),
			MinorVersion:   int(it.MinorVersion),
			File:           it.File,
			UserID:         int64(it.UserID),
		})
	}

	if len(res.Failed) > 0 {
		level.Warn(c.log).Log("msg", "export job has failed items", "job_id", jobID, "failed", len(res.Failed))
	}
	return res, nil
}
