package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/emmsync/internal/catalog"
	"github.com/roach88/emmsync/internal/config"
	"github.com/roach88/emmsync/internal/directory"
	"github.com/roach88/emmsync/internal/emm"
	"github.com/roach88/emmsync/internal/fragment"
	"github.com/roach88/emmsync/internal/reconcile"
	"github.com/roach88/emmsync/internal/remote"
	"github.com/roach88/emmsync/internal/schema"
	"github.com/roach88/emmsync/internal/store"
)

// app is the object graph built from a configuration.
type app struct {
	cfg       *config.Config
	policies  reconcile.Store
	db        *store.Store // nil when no database is configured
	directory *directory.File
	schema    *schema.Object
	rec       *reconcile.Reconciler
}

// wire builds the policy store, directory, fragment source, catalog and
// reconciler described by cfg. ctx scopes OAuth token refreshes of the api
// backend. The caller must Close the result.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg}

	if cfg.Database != "" {
		db, err := store.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
	}

	var apps catalog.ApplicationSource
	switch cfg.Backend {
	case config.BackendSQLite:
		if a.db == nil {
			return nil, errors.New("database is required for the sqlite backend")
		}
		a.policies = a.db
		apps = a.db
	case config.BackendAPI:
		var opts []remote.Option
		if cfg.BaseURL != "" {
			opts = append(opts, remote.WithBaseURL(cfg.BaseURL))
		}
		client, err := remote.NewFromCredentials(ctx, cfg.Credentials, cfg.Enterprise, opts...)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.policies = client
		apps = client
		if a.db != nil {
			apps = cachedApplications{local: a.db, remote: client, logger: logger}
		}
	default:
		a.Close()
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	var fragments fragment.Source = fragment.DirSource{Dir: cfg.Fragments}
	if cfg.Fragments == config.FragmentsFromStore {
		fragments = fragment.StoreSource{Store: a.policies}
	}

	dir, err := directory.LoadFile(cfg.Directory)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.directory = dir

	locales, err := catalog.Locales(cfg.Locales)
	if err != nil {
		a.Close()
		return nil, err
	}
	root, err := catalog.Policy(catalog.Options{Locales: locales, Applications: apps})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to compile catalog: %w", err)
	}
	a.schema = root

	a.rec, err = reconcile.New(reconcile.Config{
		Schema:      root,
		Store:       a.policies,
		Directory:   dir,
		Fragments:   fragments,
		Users:       cfg.Users,
		Assignments: cfg.Assignments,
		Logger:      logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database, if any.
func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// cachedApplications serves application resources from the local database
// and stores the ones fetched from the remote catalog.
type cachedApplications struct {
	local  *store.Store
	remote catalog.ApplicationSource
	logger *slog.Logger
}

func (c cachedApplications) Application(ctx context.Context, packageName string) (*emm.Application, error) {
	app, err := c.local.Application(ctx, packageName)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, emm.ErrNotFound) {
		return nil, err
	}
	app, err = c.remote.Application(ctx, packageName)
	if err != nil {
		return nil, err
	}
	if err := c.local.PutApplication(ctx, app); err != nil {
		c.logger.Warn("failed to cache application", "package", packageName, "error", err)
	}
	return app, nil
}
