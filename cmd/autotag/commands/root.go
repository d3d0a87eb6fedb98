package commands

import (
	"fmt"

	"autotag/internal/config"
	"autotag/internal/logging"
	"autotag/internal/services"
	"autotag/internal/shared"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const toolVersion = "1.0.0"

// NewRootCommand builds the autotag command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "autotag",
		Version: toolVersion,
		Short:   "Classify DJ tracks by genre and energy and tag them.",
		Long: fmt.Sprintf(`autotag (v%s)

Scans a music folder, asks an AI chat service to classify every track and
writes a canonical genre plus a 1-5 energy rating to the file tags and,
optionally, to the DJ library database.

Tracks already processed are remembered in a ledger so a run can be
interrupted and resumed at any time.`, toolVersion),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			shared.InitializeColors(false)
		},
	}

	root.PersistentFlags().String("config", config.DefaultConfigPath, "Path to the configuration file")
	root.PersistentFlags().Bool("debug", false, "Enable debug logging")
	root.PersistentFlags().Bool("dry-run", false, "Classify and print results without writing anything")
	root.PersistentFlags().String("music-dir", "", "Folder to scan (overrides MusicDir)")
	root.PersistentFlags().Bool("no-library", false, "Do not touch the DJ library database")

	root.AddCommand(
		NewRunCommand(),
		NewClassifyCommand(),
		NewEnergyCommand(),
		NewLedgerCommand(),
		NewConfigCommand(),
	)
	return root
}

// loadConfig reads the configuration file and applies the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	cfg.Debug, _ = cmd.Flags().GetBool("debug")
	cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	cfg.NoLibrary, _ = cmd.Flags().GetBool("no-library")
	if dir, _ := cmd.Flags().GetString("music-dir"); dir != "" {
		cfg.MusicDir = dir
	}
	return cfg, nil
}

// initConfigAndServices loads and validates the configuration and wires
// every service a tagging command needs.
func initConfigAndServices(cfg *config.Config) (*services.ServiceContainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, err
	}

	container, err := services.NewServiceContainer(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	container.Log.Debug("configuration loaded", zap.String("music_dir", cfg.MusicDir))
	return container, nil
}
