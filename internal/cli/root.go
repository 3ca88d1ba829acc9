// Package cli implements the fedistream command line.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/fedistream/internal/config"
	"github.com/tOgg1/fedistream/internal/db"
	"github.com/tOgg1/fedistream/internal/logging"
)

var (
	configFile   string
	logLevel     string
	logFormat    string
	databasePath string
	jsonOutput   bool
	jsonlOutput  bool

	appConfig *config.Config
	loader    *config.Loader
)

var rootCmd = &cobra.Command{
	Use:           "fedistream",
	Short:         "Federated timeline streaming engine",
	Long:          "fedistream binds an account's streaming channels and keeps its timelines current.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is $HOME/.config/fedistream/config.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
	flags.StringVar(&databasePath, "db", "", "database file (default is <data_dir>/fedistream.db)")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.ExecuteContext(context.Background())
}

func initConfig() error {
	loader = config.NewLoader()
	if configFile != "" {
		loader.SetConfigFile(configFile)
	}
	if logLevel != "" {
		loader.Set("logging.level", logLevel)
	}
	if logFormat != "" {
		loader.Set("logging.format", logFormat)
	}
	if databasePath != "" {
		loader.Set("database.path", databasePath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	appConfig = cfg

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if used := loader.ConfigFileUsed(); used != "" {
		logger := logging.Component("cli")
		logger.Debug().Str("config_file", used).Msg("loaded config file")
	}
	return nil
}

// openDatabase opens and migrates the account database.
func openDatabase(ctx context.Context) (*db.DB, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	database, err := db.Open(db.Config{
		Path:          appConfig.DatabasePath(),
		BusyTimeoutMs: appConfig.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := database.MigrateUp(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}

func contextStore() *config.ContextStore {
	return config.NewContextStore(appConfig.ContextPath())
}
