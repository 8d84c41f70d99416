package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/tally/internal/config"
	"github.com/MrJamesThe3rd/tally/internal/database"
	tallyHttp "github.com/MrJamesThe3rd/tally/internal/http"
	columnsHandler "github.com/MrJamesThe3rd/tally/internal/http/columns"
	importHandler "github.com/MrJamesThe3rd/tally/internal/http/importcsv"
	rulesHandler "github.com/MrJamesThe3rd/tally/internal/http/rules"
	tagsHandler "github.com/MrJamesThe3rd/tally/internal/http/tags"
	txHandler "github.com/MrJamesThe3rd/tally/internal/http/transaction"
	"github.com/MrJamesThe3rd/tally/internal/importer"
	"github.com/MrJamesThe3rd/tally/internal/importer/cgd"
	"github.com/MrJamesThe3rd/tally/internal/profile"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	rulesStore "github.com/MrJamesThe3rd/tally/internal/rules/store"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
	txStore "github.com/MrJamesThe3rd/tally/internal/transaction/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(context.Background(), cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	profiles, err := profile.NewRegistry(cgd.Profile())
	if err != nil {
		slog.Error("failed to register profiles", "error", err)
		os.Exit(1)
	}

	if cfg.Import.ProfilesFile != "" {
		if err := profiles.LoadFile(cfg.Import.ProfilesFile); err != nil {
			slog.Error("failed to load import profiles", "file", cfg.Import.ProfilesFile, "error", err)
			os.Exit(1)
		}
	}

	var (
		transactionService = transaction.NewService(txStore.New(db), nil)
		rulesService       = rules.NewService(rulesStore.New(db), nil)
		importService      = importer.NewService(transactionService, rulesService, profiles, importer.Config{
			ApplyRules: cfg.Import.ApplyRules,
			DateFormat: cfg.Import.DateFormat,
		}, nil)
	)

	var (
		transactionH = txHandler.NewHandler(transactionService)
		importH      = importHandler.NewHandler(importService, cfg.MaxUploadBytes())
		columnsH     = columnsHandler.NewHandler(importService)
		rulesH       = rulesHandler.NewHandler(rulesService)
		tagsH        = tagsHandler.NewHandler(transactionService)
	)

	router := tallyHttp.New(tallyHttp.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		Issuer:         cfg.Auth.Issuer,
		Timeout:        cfg.Server.Timeout,
	}, transactionH, importH, columnsH, rulesH, tagsH)

	if cfg.Auth.JWTSecret == "" {
		slog.Warn("AUTH_JWT_SECRET is empty, API is unauthenticated")
	}

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "app", cfg.App.Name, "port", port, "profiles", len(profiles.List()))

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
