package notifier

import (
	"context"
	"flag"

	"github.com/ValerySidorin/sopsync/pkg/notifier/memory"
	"github.com/ValerySidorin/sopsync/pkg/notifier/nats"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

type Config struct {
	Type string      `yaml:"type"`
	Nats nats.Config `yaml:"nats"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Type, flagPrefix+"type", "log", `Notifier backend: nats, log or memory.`)
	c.Nats.RegisterFlags(flagPrefix+"nats.", f)
}

// Notifier delivers run summaries and failure reports.
type Notifier interface {
	Send(ctx context.Context, subject string, payload interface{}) error
}

func New(cfg Config, logger log.Logger) (Notifier, error) {
	switch cfg.Type {
	case "nats":
		return nats.NewNotifier(cfg.Nats, logger)
	case "log":
		return NewLogNotifier(logger), nil
	case "memory":
		return memory.NewNotifier(), nil
	default:
		return nil, errors.Errorf("invalid notifier type %q", cfg.Type)
	}
}

// LogNotifier writes every notification to the log.
type LogNotifier struct {
	log log.Logger
}

func NewLogNotifier(logger log.Logger) *LogNotifier {
	return &LogNotifier{log: log.With(logger, "component", "notifier")}
}

func (n *LogNotifier) Send(_ context.Context, subject string, payload interface{}) error {
	b, err := Encode(subject, payload)
	if err != nil {
		return err
	}
	level.Info(n.log).Log("msg", "notification", "subject", subject, "body", string(b))
	return nil
}
