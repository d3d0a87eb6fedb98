package commands

import (
	"fmt"
	"strings"

	"autotag/internal/core/genre"
	"autotag/internal/shared"

	"github.com/spf13/cobra"
)

// NewClassifyCommand creates the command that classifies a single title
// without touching any file.
func NewClassifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [title]",
		Short: "Classify one track title and print the decision.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runClassifyCommand,
	}
	cmd.Flags().String("artist", "", "Artist hint passed to the classifier")
	return cmd
}

func runClassifyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// the music folder is never read here
	if cfg.MusicDir == "" {
		cfg.MusicDir = "."
	}
	cfg.DryRun = true

	serviceContainer, err := initConfigAndServices(cfg)
	if err != nil {
		return err
	}
	defer serviceContainer.Close()

	title := strings.Join(args, " ")
	artist, _ := cmd.Flags().GetString("artist")

	d, err := serviceContainer.NewTagger(false).Decide(cmd.Context(), title, artist)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}
	printDecision(title, d)
	return nil
}

func printDecision(title string, d genre.Decision) {
	kind := "ORIGINAL"
	if d.Reply.IsRemix {
		kind = "REMIX"
	}
	shared.ColorInfo.Printf("%s [%s]\n", title, kind)

	if d.Skipped() {
		shared.ColorWarning.Printf("⏭️  Would be skipped: %s\n", d.Skip)
		if d.Genre != "" {
			shared.ColorMuted.Printf("  Genre: %s\n", d.Genre)
		}
		return
	}

	shared.ColorGenre.Printf("  Genre: %s", d.Genre)
	shared.ColorMuted.Printf(" (%s)\n", d.Source)
	switch {
	case d.HasRating:
		fmt.Printf("  Rating: %d\n", d.Rating)
	case d.MashupExempt:
		fmt.Println("  Rating: none (mashup)")
	}
	if d.Remix.RemixerName != "" {
		fmt.Printf("  Remixer: %s\n", d.Remix.RemixerName)
	}
	if d.Reply.OriginalArtists != "" {
		fmt.Printf("  Artists: %s\n", d.Reply.OriginalArtists)
	}
	if d.Reply.ReleaseYear != "" {
		fmt.Printf("  Year: %s\n", d.Reply.ReleaseYear)
	}
	if d.Reply.Has(genre.FieldSituation) {
		fmt.Printf("  Situation: %s\n", d.Reply.Situation)
	}
	if d.Reply.CommercialFriendly {
		fmt.Println("  Commercial: Yes")
	}
}
