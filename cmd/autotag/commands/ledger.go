package commands

import (
	"fmt"

	"autotag/internal/ledger"

	"github.com/spf13/cobra"
)

// NewLedgerCommand creates the ledger maintenance commands
func NewLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or edit the list of processed tracks.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List processed track titles.",
		Args:  cobra.NoArgs,
		RunE:  runLedgerList,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "forget [title]...",
		Short: "Remove titles so the next run processes them again.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLedgerForget,
	})
	return cmd
}

func openLedger(cmd *cobra.Command) (*ledger.Ledger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return ledger.Load(cfg.LedgerPath)
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, title := range l.Titles() {
		fmt.Fprintln(out, title)
	}
	return nil
}

func runLedgerForget(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	removed := 0
	for _, title := range args {
		if l.Forget(title) {
			removed++
			fmt.Fprintf(out, "forgot %s\n", title)
		} else {
			fmt.Fprintf(out, "not in ledger: %s\n", title)
		}
	}
	if removed == 0 {
		return nil
	}
	return l.Save()
}
