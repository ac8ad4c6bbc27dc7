package nats

import (
	"context"
	"encoding/json"
	"flag"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

type Config struct {
	Url          string        `yaml:"url"`
	Channel      string        `yaml:"channel"`
	FlushTimeout time.Duration `yaml:"flush_timeout"`
}

func (c *Config) RegisterFlags(flagPrefix string, f *flag.FlagSet) {
	f.StringVar(&c.Url, flagPrefix+"url", nats.DefaultURL, `NATS server URL.`)
	f.StringVar(&c.Channel, flagPrefix+"channel", "sopsync.notifications", `Subject notifications are published on.`)
	f.DurationVar(&c.FlushTimeout, flagPrefix+"flush-timeout", 5*time.Second, `Wait for the server to acknowledge a published notification.`)
}

type Envelope struct {
	Subject string      `json:"subject"`
	SentAt  time.Time   `json:"sent_at"`
	Payload interface{} `json:"payload"`
}

var now = time.Now

func Encode(subject string, payload interface{}) ([]byte, error) {
	b, err := json.Marshal(Envelope{Subject: subject, SentAt: now().UTC(), Payload: payload})
	if err != nil {
		return nil, errors.Wrap(err, "encode notification")
	}
	return b, nil
}

type Notifier struct {
	conn *nats.Conn
	cfg  Config
	log  log.Logger
}

func NewNotifier(cfg Config, logger log.Logger) (*Notifier, error) {
	conn, err := nats.Connect(cfg.Url, nats.Name("sopsync"))
	if err != nil {
		return nil, errors.Wrap(err, "initialize nats connection")
	}

	return &Notifier{
		conn: conn,
		cfg:  cfg,
		log:  log.With(logger, "component", "notifier"),
	}, nil
}

func (n *Notifier) Send(ctx context.Context, subject string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := Encode(subject, payload)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(n.cfg.Channel)
	msg.Header.Set("Subject", subject)
	msg.Data = b

	if err := n.conn.PublishMsg(msg); err != nil {
		return errors.Wrap(err, "nats publish")
	}
	if err := n.conn.FlushTimeout(n.cfg.FlushTimeout); err != nil {
		return errors.Wrap(err, "nats flush")
	}

	level.Debug(n.log).Log("msg", "notification published", "channel", n.cfg.Channel, "subject", subject)
	return nil
}

func (n *Notifier) Close() {
	n.conn.Close()
}
