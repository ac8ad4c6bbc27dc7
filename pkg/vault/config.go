package vault

import (
	"flag"
	"time"

	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
)

type Config struct {
	URL        string         `yaml:"url"`
	APIVersion string         `yaml:"api_version"`
	Username   string         `yaml:"username"`
	Password   flagext.Secret `yaml:"password"`
	SessionID  flagext.Secret `yaml:"session_id"`

	Timeout         time.Duration `yaml:"timeout"`
	AuthRetries     int           `yaml:"auth_retries"`
	AuthRetryWait   time.Duration `yaml:"auth_retry_wait"`
	SessionRetries  int           `yaml:"session_retries"`
	SessionWait     time.Duration `yaml:"session_retry_wait"`
	NotReadyRetries int           `yaml:"not_ready_retries"`
	NotReadyWait    time.Duration `yaml:"not_ready_retry_wait"`
	PageInterval    time.Duration `yaml:"page_interval"`
	ExportBatchSize int           `yaml:"export_batch_size"`

	TempDir      string        `yaml:"temp_dir"`
	BufferSize   int           `yaml:"buffer_size"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.URL, flagPrefix+"url", "", `Vault base URL, e.g. https://example.veevavault.com.`)
	f.StringVar(&c.APIVersion, flagPrefix+"api-version", "v24.3", `Vault REST API version.`)
	f.StringVar(&c.Username, flagPrefix+"username", "", `Vault user name.`)
	f.Var(&c.Password, flagPrefix+"password", `Vault password.`)
	f.Var(&c.SessionID, flagPrefix+"session-id", `Optional session id to start with; replaced on expiry.`)

	f.DurationVar(&c.Timeout, flagPrefix+"timeout", 60*time.Second, `Timeout of a single API request.`)
	f.IntVar(&c.AuthRetries, flagPrefix+"auth-retries", 2, `Attempts of a request failing with a network timeout.`)
	f.DurationVar(&c.AuthRetryWait, flagPrefix+"auth-retry-wait", 10*time.Second, `Wait between attempts after a network timeout.`)
	f.IntVar(&c.SessionRetries, flagPrefix+"session-retries", 2, `Attempts of a call whose session expired, re-authenticating before each retry.`)
	f.DurationVar(&c.SessionWait, flagPrefix+"session-retry-wait", time.Second, `Wait before re-authenticating after an expired session.`)
	f.IntVar(&c.NotReadyRetries, flagPrefix+"not-ready-retries", 5, `Polls of an export job that is not ready yet.`)
	f.DurationVar(&c.NotReadyWait, flagPrefix+"not-ready-retry-wait", 60*time.Second, `Wait between polls of an export job.`)
	f.DurationVar(&c.PageInterval, flagPrefix+"page-interval", 500*time.Millisecond, `Minimum interval between two query page fetches.`)
	f.IntVar(&c.ExportBatchSize, flagPrefix+"export-batch-size", MaxExportBatch, `Documents per export job.`)

	f.StringVar(&c.TempDir, flagPrefix+"temp-dir", "tmp", `Scratch directory for downloaded binaries.`)
	f.IntVar(&c.BufferSize, flagPrefix+"buffer-size", 8192, `Download chunk size in bytes.`)
	f.DurationVar(&c.StallTimeout, flagPrefix+"stall-timeout", 30*time.Second, `Cancel a download that made no progress for this long.`)
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("vault url is required")
	}
	if c.Username == "" && c.SessionID.String() == "" {
		return errors.New("vault username or session id is required")
	}
	if c.ExportBatchSize < 1 || c.ExportBatchSize > MaxExportBatch {
		return errors.Errorf("vault export batch size must be within 1..%d", MaxExportBatch)
	}
	return nil
}
