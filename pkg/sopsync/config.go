package sopsync

import (
	"flag"
	"os"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/generator"
	"github.com/ValerySidorin/sopsync/pkg/kvstore"
	"github.com/ValerySidorin/sopsync/pkg/llm"
	"github.com/ValerySidorin/sopsync/pkg/notifier"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/ValerySidorin/sopsync/pkg/secrets"
	util_log "github.com/ValerySidorin/sopsync/pkg/util/log"
	"github.com/ValerySidorin/sopsync/pkg/vault"
	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type MetricsConfig struct {
	PushURL string `yaml:"push_url"`
	Job     string `yaml:"job"`
}

func (c *MetricsConfig) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.PushURL, flagPrefix+"push-url", "", `Pushgateway URL run metrics are pushed to; empty disables pushing.`)
	f.StringVar(&c.Job, flagPrefix+"job", "sopsync", `Pushgateway job name.`)
}

type Config struct {
	Log       util_log.Config  `yaml:"log"`
	Mode      string           `yaml:"mode"`
	Vault     vault.Config     `yaml:"vault"`
	ObjStore  objstore.Config  `yaml:"object_store"`
	KVStore   kvstore.Config   `yaml:"kv_store"`
	Secrets   secrets.Config   `yaml:"secrets"`
	Notifier  notifier.Config  `yaml:"notifier"`
	LLM       llm.Config       `yaml:"llm"`
	Generator generator.Config `yaml:"generator"`
	Metrics   MetricsConfig    `yaml:"metrics"`

	Sites document.SiteConfig `yaml:"sites"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Log.RegisterFlags(f)
	f.StringVar(&c.Mode, "mode", string(document.ModeIncremental), `Execution mode of the retrieve phase: Incremental or Load.`)
	c.Vault.RegisterFlags("vault.", f)
	c.ObjStore.RegisterFlags("object-store.", f)
	c.KVStore.RegisterFlags("kv-store.", f)
	c.Secrets.RegisterFlags("secrets.", f)
	c.Notifier.RegisterFlags("notifier.", f)
	c.LLM.RegisterFlags("llm.", f)
	c.Generator.RegisterFlags("generator.", f)
	c.Metrics.RegisterFlags("metrics.", f)
}

func (c *Config) Validate() error {
	if _, err := document.ParseMode(c.Mode); err != nil {
		return err
	}
	return c.Sites.Validate()
}

// LoadConfig reads the YAML file at path over the flag defaults.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	flagext.DefaultValues(&cfg)

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config file")
	}
	return cfg, nil
}

// ApplySecrets fills the credentials missing from the file from the secret
// store.
func (c *Config) ApplySecrets(s secrets.Store) error {
	for _, f := range []struct {
		key string
		get func() string
		set func(string)
	}{
		{"vault_url", func() string { return c.Vault.URL }, func(v string) { c.Vault.URL = v }},
		{"vault_username", func() string { return c.Vault.Username }, func(v string) { c.Vault.Username = v }},
		{"vault_password", c.Vault.Password.String, func(v string) { c.Vault.Password = flagext.SecretWithValue(v) }},
		{"vault_session_id", c.Vault.SessionID.String, func(v string) { c.Vault.SessionID = flagext.SecretWithValue(v) }},
		{"openai_api_key", c.LLM.APIKey.String, func(v string) { c.LLM.APIKey = flagext.SecretWithValue(v) }},
	} {
		if f.get() != "" {
			continue
		}
		v, err := secrets.Lookup(s, f.key, "")
		if err != nil {
			return errors.Wrap(err, "resolve secret "+f.key)
		}
		if v != "" {
			f.set(v)
		}
	}
	return nil
}
