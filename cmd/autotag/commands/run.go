package commands

import (
	"context"
	"errors"
	"fmt"

	"autotag/internal/config"
	"autotag/internal/core/scanner"
	"autotag/internal/core/tagger"
	"autotag/internal/services"
	"autotag/internal/shared"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the command that tags the music folder
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [music_dir]",
		Short: "Classify and tag every new track in the music folder.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRunCommand,
	}
	cmd.Flags().Bool("no-progress", false, "Hide the progress bar")
	return cmd
}

func runRunCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.MusicDir = args[0]
	}

	serviceContainer, err := initConfigAndServices(cfg)
	if err != nil {
		return err
	}
	defer serviceContainer.Close()

	ctx := cmd.Context()
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	if cfg.DryRun {
		serviceContainer.Logger.Warning("Dry run: nothing will be written")
	}
	serviceContainer.Logger.Info("🔍 Scanning %s", cfg.MusicDir)

	scan, err := serviceContainer.NewScanner().Scan(ctx, cfg.MusicDir)
	if errors.Is(err, scanner.ErrNoFiles) {
		serviceContainer.Logger.Warning("No audio files found in %s", cfg.MusicDir)
		return nil
	}
	if err != nil {
		return err
	}
	serviceContainer.Logger.Info("Found %d audio files, %d to process, %d already processed",
		scan.Total(), len(scan.Pending), scan.AlreadyDone)

	if len(scan.Pending) > 0 && !cfg.DryRun {
		serviceContainer.OpenLibrary()
	}
	if serviceContainer.SearchService.Enabled() {
		serviceContainer.Logger.Info("Remix genre search: %s", serviceContainer.SearchService.Name())
	}

	stats, runErr := serviceContainer.NewTagger(!noProgress).Run(ctx, scan)

	printRunSummary(serviceContainer, cfg, stats)
	serviceContainer.WarningCollector.PrintSummary()

	switch {
	case errors.Is(runErr, context.Canceled):
		serviceContainer.Logger.Warning("Interrupted. Progress has been saved, run again to continue.")
		return nil
	case errors.Is(runErr, tagger.ErrClassifierRejected):
		return fmt.Errorf("%w: check the AI API key", runErr)
	}
	return runErr
}

func printRunSummary(sc *services.ServiceContainer, cfg *config.Config, stats tagger.Stats) {
	fmt.Println()
	shared.ColorInfo.Println("📊 Run Summary:")
	verb := "Tagged"
	if cfg.DryRun {
		verb = "Classified (dry run)"
	}
	if stats.Tagged > 0 {
		shared.ColorSuccess.Printf("✅ %s: %d tracks\n", verb, stats.Tagged)
	}
	if sc.Library != nil {
		shared.ColorSuccess.Printf("📚 Library updated: %d tracks\n", stats.LibraryUpdated)
	}
	if sc.Mirror != nil {
		shared.ColorSuccess.Printf("⭐ Ratings mirrored: %d tracks\n", stats.Mirrored)
	}
	if stats.Skipped > 0 {
		shared.ColorWarning.Printf("⏭️  Skipped: %d tracks\n", stats.Skipped)
	}
	if stats.Failed > 0 {
		shared.ColorError.Printf("❌ Failed: %d tracks\n", stats.Failed)
	}
	if stats.Tagged+stats.Skipped+stats.Failed == 0 {
		shared.ColorMuted.Println("Nothing to do.")
	}
}
