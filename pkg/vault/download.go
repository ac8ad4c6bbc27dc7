package vault

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	util_io "github.com/ValerySidorin/sopsync/pkg/util/io"
	"github.com/cavaliergopher/grab/v3"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const BinaryExt = ".pdf"

// DownloadBinary streams the rendition of doc from file staging into
// <temp_dir>/<id>.pdf and records the local path and file name on doc.
func (c *Client) DownloadBinary(ctx context.Context, doc *ExportedDocument) (string, error) {
	if err := util_io.EnsureDir(c.cfg.TempDir); err != nil {
		return "", err
	}

	name := strconv.FormatInt(doc.ID, 10) + BinaryExt
	dst := filepath.Join(c.cfg.TempDir, name)
	item := fmt.Sprintf("u%d/%s", doc.UserID, strings.TrimLeft(doc.File, "/"))

	err := c.withSession(ctx, func(session string) error {
		return c.download(ctx, session, c.base+"services/file_staging/items/content/"+item, dst, doc.ID)
	})
	if err != nil {
		_ = os.Remove(dst)
		return "", errors.Wrapf(err, "download document %d", doc.ID)
	}

	doc.LocalPath = dst
	doc.File = name
	return dst, nil
}

func (c *Client) download(ctx context.Context, session, url, dst string, id int64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := grab.NewRequest(dst, url)
	if err != nil {
		return errors.Wrap(err, "create download request")
	}
	req = req.WithContext(ctx)
	req.NoResume = true
	req.HTTPRequest.Header.Set("Authorization", session)
	req.HTTPRequest.Header.Set("Accept", "application/octet-stream")

	t := time.NewTicker(time.Second)
	defer t.Stop()

	resp := c.grabClient.Do(req)

	// A dropped connection is not always reported, so cancel when the
	// transfer stops making progress.
	if c.cfg.StallTimeout > 0 {
		go c.watchStall(resp, cancel, id)
	}

Loop:
	for {
		select {
		case <-t.C:
			level.Debug(c.log).Log("msg", fmt.Sprintf("transferred %d / %d bytes (%.2f%%)",
				resp.BytesComplete(),
				resp.Size(),
				100*resp.Progress()), "document", id)
		case <-resp.Done:
			break Loop
		}
	}

	if err := resp.Err(); err != nil {
		var sce grab.StatusCodeError
		if errors.As(err, &sce) && int(sce) == http.StatusUnauthorized {
			c.requests.WithLabelValues("download", "expired").Inc()
			return errors.Wrap(ErrExpiredSession, "download")
		}
		c.requests.WithLabelValues("download", "error").Inc()
		return err
	}

	c.requests.WithLabelValues("download", "ok").Inc()
	level.Info(c.log).Log("msg", "downloaded", "document", id, "bytes", resp.BytesComplete())
	return nil
}

func (c *Client) watchStall(resp *grab.Response, cancel context.CancelFunc, id int64) {
	t := time.NewTicker(c.cfg.StallTimeout)
	defer t.Stop()

	prev := resp.BytesComplete()
	for {
		select {
		case <-t.C:
			curr := resp.BytesComplete()
			if curr == prev {
				level.Error(c.log).Log("msg", "download stalled, cancelling", "document", id)
				cancel()
				return
			}
			prev = curr
		case <-resp.Done:
			return
		}
	}
}
