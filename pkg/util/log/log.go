package log

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/weaveworks/common/logging"
)

type Config struct {
	LogFormat logging.Format `yaml:"log_format"`
	LogLevel  logging.Level  `yaml:"log_level"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.LogFormat.RegisterFlags(f)
	c.LogLevel.RegisterFlags(f)
}

// New builds the process logger writing to stderr.
func New(cfg Config) log.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

func NewWithWriter(cfg Config, w io.Writer) log.Logger {
	var logger log.Logger
	if cfg.LogFormat.String() == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	if cfg.LogLevel.Gokit != nil {
		logger = level.NewFilter(logger, cfg.LogLevel.Gokit)
	}
	return logger
}

// WithRun tags every line with the run and phase it belongs to.
func WithRun(logger log.Logger, runID, phase string) log.Logger {
	return log.With(logger, "run", runID, "phase", phase)
}

func CheckFatal(logger log.Logger, location string, err error) {
	if err != nil {
		l := level.Error(logger)
		if location != "" {
			l = log.With(l, "msg", "error "+location)
		}

		_ = l.Log("err", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}
