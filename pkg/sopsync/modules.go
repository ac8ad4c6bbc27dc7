package sopsync

import (
	"context"

	"github.com/ValerySidorin/sopsync/pkg/generator"
	"github.com/ValerySidorin/sopsync/pkg/kvstore"
	"github.com/ValerySidorin/sopsync/pkg/llm"
	"github.com/ValerySidorin/sopsync/pkg/lookup"
	"github.com/ValerySidorin/sopsync/pkg/notifier"
	"github.com/ValerySidorin/sopsync/pkg/objstore"
	"github.com/ValerySidorin/sopsync/pkg/publisher"
	"github.com/ValerySidorin/sopsync/pkg/reconciler"
	"github.com/ValerySidorin/sopsync/pkg/secrets"
	"github.com/ValerySidorin/sopsync/pkg/syncstate"
	"github.com/ValerySidorin/sopsync/pkg/vault"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
)

const (
	Secrets  = "secrets"
	Stores   = "stores"
	Notifier = "notifier"
	Vault    = "vault"
	Lookups  = "lookups"
)

func (a *App) initSecrets() (services.Service, error) {
	if a.Secrets == nil {
		s, err := secrets.New(a.Cfg.Secrets)
		if err != nil {
			return nil, err
		}
		a.Secrets = s
	}
	return nil, a.Cfg.ApplySecrets(a.Secrets)
}

func (a *App) initStores() (services.Service, error) {
	var err error
	if a.Objects == nil {
		a.Objects, err = objstore.New(context.Background(), a.Cfg.ObjStore)
		if err != nil {
			return nil, errors.Wrap(err, "create object store")
		}
	}
	if a.KV == nil {
		a.KV, err = kvstore.New(context.Background(), a.Cfg.KVStore, a.Logger)
		if err != nil {
			return nil, errors.Wrap(err, "create key-value store")
		}
	}
	return nil, nil
}

func (a *App) initNotifier() (services.Service, error) {
	if a.Notifier != nil {
		return nil, nil
	}
	var err error
	a.Notifier, err = notifier.New(a.Cfg.Notifier, a.Logger)
	return nil, err
}

func (a *App) initVault() (services.Service, error) {
	if a.Vault != nil {
		return nil, nil
	}
	var err error
	a.Vault, err = vault.New(a.Cfg.Vault, a.Registry, a.Logger)
	return nil, err
}

func (a *App) initLookups() (services.Service, error) {
	a.Lookups = lookup.NewRefresher(a.Vault, a.Objects, a.Logger)
	return nil, nil
}

func (a *App) initRetrieve() (services.Service, error) {
	a.Reconciler = reconciler.New(a.RunID, a.Cfg.Sites, a.Vault, a.Lookups,
		syncstate.New(a.KV), a.Objects, a.Notifier, a.Registry, a.Logger)

	a.run = func(ctx context.Context) error {
		_, err := a.Reconciler.Run(ctx, a.Mode)
		return err
	}
	return nil, nil
}

func (a *App) newPublisher() *publisher.Publisher {
	return publisher.New(a.RunID, a.Vault, syncstate.New(a.KV), a.Objects, a.Notifier, a.Registry, a.Logger)
}

func (a *App) initDownload() (services.Service, error) {
	a.Publisher = a.newPublisher()

	a.run = func(ctx context.Context) error {
		reports, err := a.Publisher.PublishPending(ctx)
		level.Info(a.Logger).Log("msg", "download finished", "jobs", len(reports))
		return err
	}
	return nil, nil
}

func (a *App) initFetch() (services.Service, error) {
	a.Publisher = a.newPublisher()

	a.run = func(ctx context.Context) error {
		_, err := a.Publisher.Fetch(ctx, a.Vault, a.Lookups, a.Numbers)
		return err
	}
	return nil, nil
}

func (a *App) initGenerate() (services.Service, error) {
	completer, err := llm.New(a.Cfg.LLM, a.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "create llm client")
	}

	a.Generator = generator.New(a.Cfg.Generator, a.RunID, a.Objects, a.KV,
		generator.NewPdfToText(a.Cfg.Generator.Pdftotext), completer, a.Notifier, a.Registry, a.Logger)

	a.run = func(ctx context.Context) error {
		_, err := a.Generator.Run(ctx)
		return err
	}
	return nil, nil
}

func (a *App) setupModuleManager() error {
	mm := modules.NewManager(a.Logger)

	mm.RegisterModule(Secrets, a.initSecrets, modules.UserInvisibleModule)
	mm.RegisterModule(Stores, a.initStores, modules.UserInvisibleModule)
	mm.RegisterModule(Notifier, a.initNotifier, modules.UserInvisibleModule)
	mm.RegisterModule(Vault, a.initVault, modules.UserInvisibleModule)
	mm.RegisterModule(Lookups, a.initLookups, modules.UserInvisibleModule)
	mm.RegisterModule(Retrieve, a.initRetrieve)
	mm.RegisterModule(Download, a.initDownload)
	mm.RegisterModule(Generate, a.initGenerate)
	mm.RegisterModule(Fetch, a.initFetch)

	deps := map[string][]string{
		Vault:    {Secrets},
		Lookups:  {Vault, Stores},
		Retrieve: {Lookups, Notifier},
		Download: {Vault, Stores, Notifier},
		Generate: {Secrets, Stores, Notifier},
		Fetch:    {Lookups, Notifier},
	}
	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm
	return nil
}
