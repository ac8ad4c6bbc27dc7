package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/util/retry"
	"github.com/go-kit/log"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	util_http "github.com/ValerySidorin/sopsync/pkg/util/http"
)

const apiPrefix = "/api/v24.3/"

type fakeVault struct {
	t       *testing.T
	mtx     sync.Mutex
	calls   []string
	auths   int
	session string
	handle  func(w http.ResponseWriter, r *http.Request, endpoint string)
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimPrefix(r.URL.Path, apiPrefix)

	f.mtx.Lock()
	f.calls = append(f.calls, endpoint)
	f.mtx.Unlock()

	if endpoint == "auth" {
		require.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "svc", r.PostForm.Get("username"))
		assert.Equal(f.t, "pwd", r.PostForm.Get("password"))

		f.mtx.Lock()
		f.auths++
		f.session = fmt.Sprintf("session-%d", f.auths)
		s := f.session
		f.mtx.Unlock()

		writeJSON(w, map[string]interface{}{"responseStatus": "SUCCESS", "sessionId": s, "userId": 77})
		return
	}

	if r.Header.Get("Authorization") != f.currentSession() {
		writeJSON(w, map[string]interface{}{
			"responseStatus": "FAILURE",
			"errors":         []map[string]string{{"type": "INVALID_SESSION_ID", "message": "Invalid or expired session ID."}},
		})
		return
	}

	f.handle(w, r, endpoint)
}

func (f *fakeVault) currentSession() string {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.session
}

func (f *fakeVault) expire() {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.session = "expired-" + f.session
}

func (f *fakeVault) callsTo(prefix string) int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func defaultConfig() Config {
	cfg := Config{}
	cfg.RegisterFlags("", flag.NewFlagSet("test", flag.PanicOnError))
	return cfg
}

func testConfig(url string, t *testing.T) Config {
	cfg := defaultConfig()
	cfg.URL = url
	cfg.Username = "svc"
	cfg.Password = flagext.SecretWithValue("pwd")
	cfg.Timeout = 5 * time.Second
	cfg.AuthRetryWait = 0
	cfg.SessionWait = 0
	cfg.NotReadyWait = 0
	cfg.PageInterval = 0
	cfg.TempDir = t.TempDir()
	cfg.StallTimeout = 0
	return cfg
}

func newTestClient(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, endpoint string)) (*Client, *fakeVault) {
	fv := &fakeVault{t: t, handle: handle}
	srv := httptest.NewServer(fv)
	t.Cleanup(srv.Close)

	c, err := New(testConfig(srv.URL, t), prometheus.NewPedanticRegistry(), log.NewNopLogger())
	require.NoError(t, err)
	return c, fv
}

func TestConfigRegisterFlagsDefaults(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, "v24.3", cfg.APIVersion)
	assert.Equal(t, 2, cfg.AuthRetries)
	assert.Equal(t, 10*time.Second, cfg.AuthRetryWait)
	assert.Equal(t, 2, cfg.SessionRetries)
	assert.Equal(t, time.Second, cfg.SessionWait)
	assert.Equal(t, 5, cfg.NotReadyRetries)
	assert.Equal(t, time.Minute, cfg.NotReadyWait)
	assert.Equal(t, 500*time.Millisecond, cfg.PageInterval)
	assert.Equal(t, 100, cfg.ExportBatchSize)
	assert.Equal(t, 8192, cfg.BufferSize)

	assert.Error(t, cfg.Validate())
	cfg.URL = "https://vault"
	cfg.Username = "svc"
	assert.NoError(t, cfg.Validate())
	cfg.ExportBatchSize = 101
	assert.Error(t, cfg.Validate())
}

func TestQueryFollowsPages(t *testing.T) {
	c, fv := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "SELECT id FROM documents", r.PostForm.Get("q"))
		assert.Equal(t, "true", r.Header.Get("X-VaultAPI-DescribeQuery"))

		switch endpoint {
		case "query":
			writeJSON(w, map[string]interface{}{
				"responseStatus":  "SUCCESS",
				"responseDetails": map[string]string{"next_page": apiPrefix + "query/B"},
				"data":            []map[string]int{{"id": 1}, {"id": 2}},
			})
		case "query/B":
			writeJSON(w, map[string]interface{}{
				"responseStatus":  "SUCCESS",
				"responseDetails": map[string]string{"next_page": apiPrefix + "query/C"},
				"data":            []map[string]int{{"id": 3}},
			})
		case "query/C":
			writeJSON(w, map[string]interface{}{
				"responseStatus":  "SUCCESS",
				"responseDetails": map[string]string{},
				"data":            []map[string]int{{"id": 4}, {"id": 5}},
			})
		default:
			t.Errorf("unexpected endpoint %s", endpoint)
		}
	})

	rows, err := c.Query(context.Background(), "SELECT id FROM documents")
	require.NoError(t, err)

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, string(r))
	}
	assert.Equal(t, []string{`{"id":1}`, `{"id":2}`, `{"id":3}`, `{"id":4}`, `{"id":5}`}, ids)
	assert.Equal(t, 3, fv.callsTo("query"))
	assert.Equal(t, 1, fv.auths)
}

func TestQueryReauthenticatesOnExpiredSession(t *testing.T) {
	c, fv := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		writeJSON(w, map[string]interface{}{"responseStatus": "SUCCESS", "data": []map[string]int{{"id": 1}}})
	})
	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, int64(77), c.UserID())

	fv.expire()

	rows, err := c.Query(context.Background(), "SELECT id FROM documents")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, fv.auths)
	assert.Equal(t, 2, fv.callsTo("query"))
}

func TestQueryExpiredSessionExhausted(t *testing.T) {
	c, fv := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		writeJSON(w, map[string]interface{}{
			"responseStatus": "FAILURE",
			"errors":         []map[string]string{{"type": "INVALID_SESSION_ID"}},
		})
	})

	_, err := c.Query(context.Background(), "SELECT id FROM documents")

	var ex *retry.ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.ErrorIs(t, err, ErrExpiredSession)
	assert.Equal(t, 2, fv.callsTo("query"))
	assert.Equal(t, 2, fv.auths)
}

func TestQueryFailureIsFatal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		writeJSON(w, map[string]interface{}{
			"responseStatus": "FAILURE",
			"errors":         []map[string]string{{"type": "MALFORMED_URL", "message": "bad vql"}},
		})
	})

	_, err := c.Query(context.Background(), "SELEC")

	var fe *FailureError
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "bad vql")
}

func TestAuthenticateHTTPErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL, t), prometheus.NewPedanticRegistry(), log.NewNopLogger())
	require.NoError(t, err)

	err = c.Authenticate(context.Background())

	var se *util_http.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestAuthenticateRetriesTimeout(t *testing.T) {
	var mtx sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mtx.Lock()
		calls++
		n := calls
		mtx.Unlock()
		if n == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		writeJSON(w, map[string]interface{}{"responseStatus": "SUCCESS", "sessionId": "s", "userId": "5"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL, t)
	cfg.Timeout = 100 * time.Millisecond
	c, err := New(cfg, prometheus.NewPedanticRegistry(), log.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, int64(5), c.UserID())
	mtx.Lock()
	assert.Equal(t, 2, calls)
	mtx.Unlock()
}

func TestAuthenticateFailureResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"responseStatus": "FAILURE",
			"errors":         []map[string]string{{"type": "USERNAME_OR_PASSWORD_INCORRECT", "message": "nope"}},
		})
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL, t), prometheus.NewPedanticRegistry(), log.NewNopLogger())
	require.NoError(t, err)

	err = c.Authenticate(context.Background())
	assert.Contains(t, err.Error(), "USERNAME_OR_PASSWORD_INCORRECT")
}

func TestSubmitExportChunks(t *testing.T) {
	var sizes []int
	job := 1000
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		assert.Equal(t, exportEndpoint, endpoint)
		assert.Equal(t, "false", r.URL.Query().Get("source"))
		assert.Equal(t, "true", r.URL.Query().Get("renditions"))

		var body []map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sizes = append(sizes, len(body))
		assert.Equal(t, map[string]string{"id": fmt.Sprint(len(sizes)*1000 - 999)}, body[0])

		job++
		writeJSON(w, map[string]interface{}{"responseStatus": "SUCCESS", "job_id": job})
	})

	// 1..100, 1001..1100, 2001..2050
	ids := make([]int64, 250)
	for i := range ids {
		ids[i] = int64(i/100)*1000 + int64(i%100) + 1
	}

	jobs, err := c.SubmitExport(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"1001", "1002", "1003"}, jobs)
	assert.Equal(t, []int{100, 100, 50}, sizes)
}

func TestSubmitExportEmpty(t *testing.T) {
	c, fv := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		t.Errorf("unexpected call to %s", endpoint)
	})

	jobs, err := c.SubmitExport(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Equal(t, 0, fv.auths)
}

func TestPollExportResult(t *testing.T) {
	polls := 0
	c, fv := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		assert.Equal(t, exportEndpoint+"/55/results", endpoint)
		polls++
		if polls < 3 {
			writeJSON(w, map[string]interface{}{
				"responseStatus": "FAILURE",
				"errors":         []map[string]string{{"type": "INVALID_DATA", "message": "job still running"}},
			})
			return
		}
		writeJSON(w, map[string]interface{}{
			"responseStatus": "SUCCESS",
			"data": []map[string]interface{}{
				{"responseStatus": "SUCCESS", "id": 42, "major_version_number__v": 2, "minor_version_number__v": 1, "file": "/42/SOP-1.pdf", "user_id__v": 77},
				{"responseStatus": "FAILURE", "id": 43, "errors": []map[string]string{{"type": "OPERATION_NOT_ALLOWED"}}},
			},
		})
	})

	res, err := c.PollExportResult(context.Background(), "55")
	require.NoError(t, err)

	assert.Equal(t, 3, polls)
	assert.Equal(t, 1, fv.auths)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, &ExportedDocument{
		ID:             42,
		ResponseStatus: "SUCCESS",
		MajorVersion:   2,
		MinorVersion:   1,
		File:           "/42/SOP-1.pdf",
		UserID:         77,
	}, res.Documents[0])
	require.Len(t, res.Failed, 1)
	assert.Equal(t, int64(43), res.Failed[0].ID)
}

func TestPollExportResultNotReadyExhausted(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		writeJSON(w, map[string]interface{}{"responseStatus": "FAILURE"})
	})

	_, err := c.PollExportResult(context.Background(), "9")

	var ex *retry.ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, "export-not-ready", ex.Policy)
	assert.Equal(t, 5, ex.Attempts)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestPollExportResultExpiryInsideNotReady(t *testing.T) {
	polls := 0
	var fv *fakeVault
	c, fv := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		polls++
		if polls == 1 {
			fv.expire()
			writeJSON(w, map[string]interface{}{"responseStatus": "FAILURE"})
			return
		}
		writeJSON(w, map[string]interface{}{"responseStatus": "SUCCESS", "data": []interface{}{}})
	})

	res, err := c.PollExportResult(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	// not ready, then rejected session, then success after re-auth
	assert.Equal(t, 2, polls)
	assert.Equal(t, 3, fv.callsTo(exportEndpoint))
	assert.Equal(t, 2, fv.auths)
}

func TestDownloadBinary(t *testing.T) {
	c, fv := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		assert.Equal(t, "services/file_staging/items/content/u77/42/SOP-1.pdf", endpoint)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.7 content")
	})

	doc := &ExportedDocument{ID: 42, File: "/42/SOP-1.pdf", UserID: 77}
	path, err := c.DownloadBinary(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(c.cfg.TempDir, "42.pdf"), path)
	assert.Equal(t, path, doc.LocalPath)
	assert.Equal(t, "42.pdf", doc.File)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 content", string(b))
	assert.Equal(t, 1, fv.auths)
}

func TestDownloadBinaryHTTPError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request, endpoint string) {
		w.WriteHeader(http.StatusNotFound)
	})
	require.NoError(t, c.Authenticate(context.Background()))

	doc := &ExportedDocument{ID: 1, File: "x.pdf", UserID: 1}
	_, err := c.DownloadBinary(context.Background(), doc)
	assert.Error(t, err)
	assert.Empty(t, doc.LocalPath)
}

func TestPageID(t *testing.T) {
	assert.Equal(t, "abc", pageID("/api/v24.3/query/abc"))
	assert.Equal(t, "abc", pageID("/api/v24.3/query/abc/"))
	assert.Equal(t, "abc", pageID("abc"))
}

func TestLeveledLoggerKeepsLevels(t *testing.T) {
	var buf bytes.Buffer
	l := leveledLogger{log.NewLogfmtLogger(&buf)}

	l.Info("retrying request", "url", "/api/v24.3/query")
	l.Debug("performing request")
	l.Warn("slow response")
	l.Error("request failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "level=info")
	assert.Contains(t, lines[0], `msg="retrying request"`)
	assert.Contains(t, lines[0], "url=/api/v24.3/query")
	assert.Contains(t, lines[1], "level=debug")
	assert.Contains(t, lines[2], "level=warn")
	assert.Contains(t, lines[3], "level=error")
}
