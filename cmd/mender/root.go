package main

import (
	"os"

	"github.com/huangang/codemender/internal/config"
	"github.com/huangang/codemender/internal/models"
	"github.com/huangang/codemender/internal/services"
	"github.com/huangang/codemender/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// deps are built once in PersistentPreRunE.
type deps struct {
	cfg      *config.Config
	db       *gorm.DB
	projects *services.ProjectService
	issues   *services.IssueService
	analysis *services.AnalysisService
	fixer    *services.FixService
}

var (
	configPath string
	verbose    bool
	app        *deps
)

var rootCmd = &cobra.Command{
	Use:           "mender",
	Short:         "Operate the codemender issue ledger from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		app, err = buildDeps(configPath, verbose)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "Config file (default config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show service logs")

	rootCmd.AddCommand(projectsCmd, issuesCmd, analyzeCmd, fixCmd, healthCmd)
}

func buildDeps(path string, verbose bool) (*deps, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger.InitWithWriter(level, os.Stderr)

	if err := models.InitDB(&cfg.Database); err != nil {
		return nil, err
	}
	if err := models.AutoMigrate(); err != nil {
		return nil, err
	}
	db := models.GetDB()
	services.InitSystemLogger(db)

	hosts := services.NewGitHubHostFactory(cfg.GitHub)
	snapshots := services.NewGitSnapshotProvider(cfg.Workspace)
	ai := services.NewAIService(db, &cfg.AI)

	return &deps{
		cfg:      cfg,
		db:       db,
		projects: services.NewProjectService(db, hosts, snapshots, cfg.GitHub),
		issues:   services.NewIssueService(db),
		analysis: services.NewAnalysisService(db, snapshots, services.NewLLMFindingGenerator(ai), cfg.GitHub, cfg.Workspace),
		fixer:    services.NewFixService(db, services.NewLLMFixGenerator(ai), hosts, services.NewTestRunner(cfg.Tests), cfg.GitHub),
	}, nil
}
