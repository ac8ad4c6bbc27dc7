// Package sopsync wires the phases of a synchronization run from the
// configured backends.
package sopsync

import (
	"context"
	"time"

	"github.com/ValerySidorin/sopsync/pkg/document"
	"github.com/ValerySidorin/sopsync/pkg/generator"
	"github.com/ValerySidorin/sopsync/pkg/kvstore"
	"github.com/ValerySidorin/sopsync/pkg/lookup"
	"github.com/ValerySidorin/sopsync/pkg/notifier"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/ValerySidorin/sopsync/pkg/publisher"
	"github.com/ValerySidorin/sopsync/pkg/reconciler"
	"github.com/ValerySidorin/sopsync/pkg/secrets"
	util_log "github.com/ValerySidorin/sopsync/pkg/util/log"
	"github.com/ValerySidorin/sopsync/pkg/vault"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// App holds everything one process invocation needs. Backends are created
// lazily by the modules the requested phase depends on.
type App struct {
	Cfg     Config
	RunID   string
	Mode    document.Mode
	Numbers []string

	Registry *prometheus.Registry
	Logger   log.Logger

	// set during initialization
	ServiceMap    map[string]services.Service
	ModuleManager *modules.Manager

	Secrets    secrets.Store
	Vault      *vault.Client
	Objects    objstore.Store
	KV         kvstore.Store
	Notifier   notifier.Notifier
	Lookups    *lookup.Refresher
	Reconciler *reconciler.Reconciler
	Publisher  *publisher.Publisher
	Generator  *generator.Generator

	run func(ctx context.Context) error
}

func New(cfg Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	mode, _ := document.ParseMode(cfg.Mode)

	runID := NewRunID(time.Now())
	a := &App{
		Cfg:      cfg,
		RunID:    runID,
		Mode:     mode,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}
	if err := a.setupModuleManager(); err != nil {
		return nil, err
	}
	return a, nil
}

// Run executes phase and waits for it to finish. The error of a failed
// phase is returned as is.
func (a *App) Run(ctx context.Context, phase string) error {
	a.Logger = util_log.WithRun(a.Logger, a.RunID, phase)
	level.Info(a.Logger).Log("msg", "starting phase", "mode", a.Mode)

	svcs, err := a.ModuleManager.InitModuleServices(phase)
	if err != nil {
		return errors.Wrapf(err, "initialize %s", phase)
	}
	a.ServiceMap = svcs
	defer a.close()

	if a.run == nil {
		return errors.Errorf("unknown phase %s", phase)
	}
	svc := services.NewBasicService(nil, a.run, nil)

	start := time.Now()
	if err := svc.StartAsync(ctx); err != nil {
		return errors.Wrapf(err, "start %s", phase)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			svc.StopAsync()
		case <-done:
		}
	}()
	if err := svc.AwaitTerminated(context.Background()); err != nil {
		if failure := svc.FailureCase(); failure != nil {
			err = failure
		}
		level.Error(a.Logger).Log("msg", "phase failed", "duration", time.Since(start), "err", err)
		a.pushMetrics(phase)
		return err
	}

	level.Info(a.Logger).Log("msg", "phase finished", "duration", time.Since(start))
	a.pushMetrics(phase)
	return nil
}

func (a *App) pushMetrics(phase string) {
	if a.Cfg.Metrics.PushURL == "" {
		return
	}
	err := push.New(a.Cfg.Metrics.PushURL, a.Cfg.Metrics.Job).
		Gatherer(a.Registry).
		Grouping("phase", phase).
		Grouping("run", a.RunID).
		Push()
	if err != nil {
		level.Warn(a.Logger).Log("msg", "failed to push metrics", "err", err)
	}
}

func (a *App) close() {
	if a.KV != nil {
		if err := a.KV.Close(context.Background()); err != nil {
			level.Warn(a.Logger).Log("msg", "failed to close key-value store", "err", err)
		}
	}
	if c, ok := a.Notifier.(interface{ Close() }); ok {
		c.Close()
	}
}
