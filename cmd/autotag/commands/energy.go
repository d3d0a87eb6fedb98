package commands

import (
	"fmt"
	"strings"

	"autotag/internal/core/genre"

	"github.com/spf13/cobra"
)

// NewEnergyCommand creates the command that shows the energy map or rates
// a genre against it.
func NewEnergyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "energy [genre]",
		Short: "Print the energy map, or the rating of a genre.",
		Long: `Without arguments the loaded energy map is printed level by level.
With a genre such as "Afro House / Tech House" the rating autotag would
assign to it is printed.`,
		RunE: runEnergyCommand,
	}
}

func runEnergyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	energy, err := genre.LoadEnergyMap(cfg.EnergyMapPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		for _, row := range energy {
			fmt.Fprintf(out, "%d: %s\n", row.Level, strings.Join(row.Genres, ", "))
		}
		return nil
	}

	name := genre.SortGenre(genre.NormalizeCase(strings.Join(args, " ")))
	rating, ok := energy.Rate(name)
	switch {
	case ok:
		fmt.Fprintf(out, "%s: %d\n", name, rating)
	case genre.IsMashup(name):
		fmt.Fprintf(out, "%s: not rated (mashup)\n", name)
	default:
		fmt.Fprintf(out, "%s: not in energy map\n", name)
	}
	return nil
}
