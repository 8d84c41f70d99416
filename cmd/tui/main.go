package main

import (
	"context"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/tally/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/tally/internal/config"
	"github.com/MrJamesThe3rd/tally/internal/database"
	"github.com/MrJamesThe3rd/tally/internal/importer"
	"github.com/MrJamesThe3rd/tally/internal/importer/cgd"
	"github.com/MrJamesThe3rd/tally/internal/profile"
	"github.com/MrJamesThe3rd/tally/internal/rules"
	rulesStore "github.com/MrJamesThe3rd/tally/internal/rules/store"
	"github.com/MrJamesThe3rd/tally/internal/transaction"
	txStore "github.com/MrJamesThe3rd/tally/internal/transaction/store"
)

type model struct {
	txService     *transaction.Service
	rulesService  *rules.Service
	importService *importer.Service
	applyRules    bool

	currentView View

	importView view.ImportModel
	listView   view.ListModel
	rulesView  view.RulesModel
}

type View int

const (
	ViewMenu   View = 0
	ViewImport View = 1
	ViewList   View = 2
	ViewRules  View = 3
)

func initialModel() model {
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

	txSvc := transaction.NewService(txStore.New(db), nil)
	rulesSvc := rules.NewService(rulesStore.New(db), nil)
	impSvc := importer.NewService(txSvc, rulesSvc, profiles, importer.Config{
		ApplyRules: cfg.Import.ApplyRules,
		DateFormat: cfg.Import.DateFormat,
	}, nil)

	return model{
		txService:     txSvc,
		rulesService:  rulesSvc,
		importService: impSvc,
		applyRules:    cfg.Import.ApplyRules,
		currentView:   ViewMenu,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewImport
				m.importView = view.NewImportModel(m.importService, m.applyRules)

				return m, m.importView.Init()
			case "2":
				m.currentView = ViewList
				m.listView = view.NewListModel(m.txService)

				return m, m.listView.Init()
			case "3":
				m.currentView = ViewRules
				m.rulesView = view.NewRulesModel(m.rulesService)

				return m, m.rulesView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewImport:
		var newModel tea.Model
		newModel, cmd = m.importView.Update(msg)
		m.importView = newModel.(view.ImportModel)
	case ViewList:
		var newModel tea.Model
		newModel, cmd = m.listView.Update(msg)
		m.listView = newModel.(view.ListModel)
	case ViewRules:
		var newModel tea.Model
		newModel, cmd = m.rulesView.Update(msg)
		m.rulesView = newModel.(view.RulesModel)
	}

	return m, cmd
}

func (m model) View() string {
	var current view.View

	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Tally\n\n" +
				"1. Import Statement\n" +
				"2. Browse Transactions\n" +
				"3. Manage Rules\n\n" +
				"q. Quit",
		)
	case ViewImport:
		current = m.importView
	case ViewList:
		current = m.listView
	case ViewRules:
		current = m.rulesView
	default:
		return "Unknown View"
	}

	help := lipgloss.NewStyle().Faint(true).PaddingLeft(1).Render(current.ShortHelp())

	return current.View() + "\n" + help
}

func main() {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		slog.Error("failed to run TUI", "error", err)
		os.Exit(1)
	}
}
