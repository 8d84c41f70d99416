package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MrJamesThe3rd/tally/internal/config"
	"github.com/MrJamesThe3rd/tally/internal/database"
	"github.com/MrJamesThe3rd/tally/internal/importer"
	"github.com/MrJamesThe3rd/tally/internal/importer/cgd"
	"github.com/MrJamesThe3rd/tally/internal/profile"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	rulesStore "github.com/MrJamesThe3rd/tally/internal/rules/store"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
	"github.com/MrJamesThe3rd/tally/internal/transaction/memstore"
	txStore "github.com/MrJamesThe3rd/tally/internal/transaction/store"
)

// app wires services for one command run. The database is only opened by commands that need it.
type app struct {
	cfg      *config.Config
	profiles *profile.Registry
	db       *sql.DB
}

func newApp(profilesFile string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	profiles, err := profile.NewRegistry(cgd.Profile())
	if err != nil {
		return nil, err
	}

	for _, path := range []string{cfg.Import.ProfilesFile, profilesFile} {
		if path == "" {
			continue
		}

		if err := profiles.LoadFile(path); err != nil {
			return nil, err
		}
	}

	return &app{cfg: cfg, profiles: profiles}, nil
}

func (a *app) open(ctx context.Context) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}

	db, err := database.Open(ctx, a.cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	a.db = db

	return db, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) importConfig() importer.Config {
	return importer.Config{ApplyRules: a.cfg.Import.ApplyRules, DateFormat: a.cfg.Import.DateFormat}
}

// offline returns an importer backed by an in-memory store and no rules, for commands that only
// read files.
func (a *app) offline() *importer.Service {
	txSvc := transaction.NewService(memstore.New(), nil)
	return importer.NewService(txSvc, nil, a.profiles, a.importConfig(), nil)
}

func (a *app) services(ctx context.Context) (*transaction.Service, *importer.Service, error) {
	db, err := a.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	txSvc := transaction.NewService(txStore.New(db), nil)
	rulesSvc := rules.NewService(rulesStore.New(db), nil)

	return txSvc, importer.NewService(txSvc, rulesSvc, a.profiles, a.importConfig(), nil), nil
}
