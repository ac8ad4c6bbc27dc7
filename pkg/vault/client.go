package vault

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/util/jsonx"
	"github.com/ValerySidorin/sopsync/pkg/util/retry"
	"github.com/cavaliergopher/grab/v3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	util_http "github.com/ValerySidorin/sopsync/pkg/util/http"
)

const MaxExportBatch = 100

type Client struct {
	cfg  Config
	base string
	log  log.Logger

	httpClient *retryablehttp.Client
	grabClient *grab.Client
	pages      *rate.Limiter

	session *atomic.String
	userID  *atomic.Int64

	sessionPolicy  retry.Policy
	notReadyPolicy retry.Policy

	requests *prometheus.CounterVec
}

func New(cfg Config, reg prometheus.Registerer, logger log.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger = log.With(logger, "component", "vault")

	c := retryablehttp.NewClient()
	c.HTTPClient.Timeout = cfg.Timeout
	c.RetryMax = cfg.AuthRetries - 1
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	c.RetryWaitMin = cfg.AuthRetryWait
	c.RetryWaitMax = cfg.AuthRetryWait
	c.CheckRetry = retryOnTimeout
	c.Backoff = fixedBackoff
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = leveledLogger{logger}

	g := grab.NewClient()
	g.BufferSize = cfg.BufferSize
	g.UserAgent = "sopsync"

	return &Client{
		cfg:        cfg,
		base:       strings.TrimRight(cfg.URL, "/") + "/api/" + cfg.APIVersion + "/",
		log:        logger,
		httpClient: c,
		grabClient: g,
		pages:      rate.NewLimiter(rate.Every(cfg.PageInterval), 1),
		session:    atomic.NewString(cfg.SessionID.String()),
		userID:     atomic.NewInt64(0),
		sessionPolicy: retry.Policy{
			Name:        "expired-session",
			MaxAttempts: cfg.SessionRetries,
			Delay:       cfg.SessionWait,
			Retryable:   retry.On(ErrExpiredSession),
		},
		notReadyPolicy: retry.Policy{
			Name:        "export-not-ready",
			MaxAttempts: cfg.NotReadyRetries,
			Delay:       cfg.NotReadyWait,
			Retryable:   retry.On(ErrNotReady),
		},
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sopsync",
			Name:      "vault_requests_total",
			Help:      "Vault API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
	}, nil
}

// retryOnTimeout retries network timeouts only; everything else, including
// non-2xx responses, is handed back to the caller.
func retryOnTimeout(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	var ne net.Error
	if err != nil && errors.As(err, &ne) && ne.Timeout() {
		return true, nil
	}
	return false, nil
}

func fixedBackoff(min, _ time.Duration, _ int, _ *http.Response) time.Duration {
	return min
}

// Authenticate exchanges the configured credentials for a new session.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password.String())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+"auth", strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "build vault auth request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out struct {
		ResponseStatus string      `json:"responseStatus"`
		Errors         []APIError  `json:"errors"`
		SessionID      string      `json:"sessionId"`
		UserID         jsonx.Int64 `json:"userId"`
	}
	if err := c.send(req, "auth", &out); err != nil {
		return err
	}
	if out.ResponseStatus != "SUCCESS" || out.SessionID == "" {
		c.requests.WithLabelValues("auth", "failure").Inc()
		return &FailureError{Op: "auth", Errors: out.Errors}
	}

	c.session.Store(out.SessionID)
	c.userID.Store(int64(out.UserID))
	level.Info(c.log).Log("msg", "authenticated", "user_id", int64(out.UserID))
	return nil
}

// UserID is the id of the authenticated user, 0 before the first
// authentication.
func (c *Client) UserID() int64 {
	return c.userID.Load()
}

// withSession runs op with the current session under the expiry policy.
// Every retry re-authenticates first, and so does the first attempt when no
// session is held yet.
func (c *Client) withSession(ctx context.Context, op func(session string) error) error {
	return retry.Do(ctx, c.sessionPolicy, c.log, func(attempt int) error {
		if attempt > 1 || c.session.Load() == "" {
			if err := c.Authenticate(ctx); err != nil {
				return err
			}
		}
		return op(c.session.Load())
	})
}

type envelope struct {
	ResponseStatus  string     `json:"responseStatus"`
	ResponseMessage string     `json:"responseMessage"`
	Errors          []APIError `json:"errors"`
	ResponseDetails struct {
		NextPage string `json:"next_page"`
		Total    int    `json:"total"`
	} `json:"responseDetails"`
	Data  json.RawMessage `json:"data"`
	JobID jsonx.Int64     `json:"job_id"`
}

func (e *envelope) expired() bool {
	return len(e.Errors) > 0 && e.Errors[0].Type == invalidSession
}

// call sends an authenticated API request and decodes the response
// envelope. A rejected session surfaces as ErrExpiredSession; any other
// FAILURE is returned in the envelope for the caller to judge.
func (c *Client) call(ctx context.Context, op, method, endpoint, session string, body io.Reader, header http.Header) (*envelope, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+endpoint, body)
	if err != nil {
		return nil, errors.Wrap(err, "build vault "+op+" request")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", session)
	req.Header.Set("Accept", "application/json")

	var env envelope
	if err := c.send(req, op, &env); err != nil {
		return nil, err
	}

	if env.ResponseStatus == "FAILURE" && env.expired() {
		c.requests.WithLabelValues(op, "expired").Inc()
		return nil, errors.Wrap(ErrExpiredSession, op)
	}
	return &env, nil
}

func (c *Client) send(req *retryablehttp.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.requests.WithLabelValues(op, "error").Inc()
		return errors.Wrap(err, "vault "+op)
	}
	defer resp.Body.Close()

	if err := util_http.EnsureSuccessStatusCode(resp); err != nil {
		c.requests.WithLabelValues(op, "http_error").Inc()
		return errors.Wrap(err, "vault "+op)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.requests.WithLabelValues(op, "error").Inc()
		return errors.Wrap(err, "decode vault "+op+" response")
	}

	c.requests.WithLabelValues(op, "ok").Inc()
	return nil
}

type leveledLogger struct {
	log log.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) {
	level.Error(l.log).Log(append([]interface{}{"msg", msg}, kv...)...)
}

func (l leveledLogger) Info(msg string, kv ...interface{}) {
	level.Info(l.log).Log(append([]interface{}{"msg", msg}, kv...)...)
}

func (l leveledLogger) Debug(msg string, kv ...interface{}) {
	level.Debug(l.log).Log(append([]interface{}{"msg", msg}, kv...)...)
}

func (l leveledLogger) Warn(msg string, kv ...interface{}) {
	level.Warn(l.log).Log(append([]interface{}{"msg", msg}, kv...)...)
}
