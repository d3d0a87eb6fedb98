package commands

import (
	"fmt"
	"strconv"

	"autotag/internal/config"
	"autotag/internal/shared"

	"github.com/spf13/cobra"
)

// NewConfigCommand creates the configuration commands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file.",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file, asking for the main settings.",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	initCmd.Flags().Bool("defaults", false, "Write the defaults without prompting")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration file")
	cmd.AddCommand(initCmd)
	return cmd
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	force, _ := cmd.Flags().GetBool("force")
	useDefaults, _ := cmd.Flags().GetBool("defaults")

	if shared.FileExists(path) && !force {
		if useDefaults {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if !shared.GetYesNoInput(fmt.Sprintf("%s already exists. Overwrite? (y/n)", path), "n") {
			return nil
		}
	}

	cfg := config.GetDefaultConfig()
	if dir, _ := cmd.Flags().GetString("music-dir"); dir != "" {
		cfg.MusicDir = dir
	}

	if !useDefaults {
		shared.ColorInfo.Println("✨ Welcome to autotag! Let's set up your configuration.")

		cfg.MusicDir = shared.GetUserInput("Enter your music folder", cfg.MusicDir)
		cfg.AI.Provider = shared.GetUserInput("AI provider (gemini or openai)", cfg.AI.Provider)
		if cfg.AI.Provider == config.ProviderOpenAI {
			cfg.AI.Model = config.DefaultOpenAIModel
		}
		cfg.AI.APIKey = shared.GetUserInput("AI API key (leave empty to use the environment)", "")

		defaultBitrate := strconv.Itoa(cfg.BitrateMin / 1000)
		bitrateStr := shared.GetUserInput(fmt.Sprintf("Minimum bitrate in kbps (default: %s)", defaultBitrate), defaultBitrate)
		if kbps, err := strconv.Atoi(bitrateStr); err == nil && kbps >= 0 {
			cfg.BitrateMin = kbps * 1000
		} else {
			shared.ColorWarning.Printf("⚠️ Invalid bitrate '%s', using default %s kbps.\n", bitrateStr, defaultBitrate)
		}

		cfg.Search.Provider = shared.GetUserInput("Remix genre search (soundcloud, spotify, musicbrainz or empty)", cfg.Search.Provider)
		cfg.Library.DBPath = shared.GetUserInput("DJ library database path (leave empty to skip)", "")
	}

	if err := config.SaveConfig(path, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	shared.ColorSuccess.Println("✅ Configuration saved to", path)
	return nil
}
