package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Query runs vql and follows next_page links until the last page. Rows are
// returned in server order. Each page is fetched under the expiry policy and
// consecutive fetches are spaced by the configured page interval.
func (c *Client) Query(ctx context.Context, vql string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0)
	next := ""
	pages := 0

	for {
		if err := c.pages.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "vault query pacing")
		}

		var env *envelope
		err := c.withSession(ctx, func(session string) error {
			var err error
			env, err = c.queryPage(ctx, session, vql, next)
			return err
		})
		if err != nil {
			return nil, err
		}
		pages++

		if env.ResponseStatus == "FAILURE" {
			return nil, &FailureError{Op: "query", Errors: env.Errors}
		}

		rows := make([]json.RawMessage, 0)
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &rows); err != nil {
				return nil, errors.Wrap(err, "decode vault query rows")
			}
		}
		out = append(out, rows...)

		if env.ResponseDetails.NextPage == "" {
			break
		}
		next = pageID(env.ResponseDetails.NextPage)
	}

	level.Debug(c.log).Log("msg", "query finished", "pages", pages, "rows", len(out))
	return out, nil
}

func (c *Client) queryPage(ctx context.Context, session, vql, page string) (*envelope, error) {
	endpoint := "query"
	if page != "" {
		endpoint += "/" + url.PathEscape(page)
	}

	form := url.Values{}
	form.Set("q", vql)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("X-VaultAPI-DescribeQuery", "true")

	return c.call(ctx, "query", http.MethodPost, endpoint, session, strings.NewReader(form.Encode()), header)
}

// pageID is the last path segment of a next_page link.
func pageID(nextPage string) string {
	nextPage = strings.TrimRight(nextPage, "/")
	if i := strings.LastIndex(nextPage, "/"); i >= 0 {
		return nextPage[i+1:]
	}
	return nextPage
}
