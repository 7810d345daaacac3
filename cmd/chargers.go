package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var chargersCmd = &cobra.Command{
	Use:   "chargers",
	Short: "Charger related commands",
}

var chargersLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered chargers and their totals",
	RunE:  runChargersLs,
}

func init() {
	chargersCmd.AddCommand(chargersLsCmd)
	rootCmd.AddCommand(chargersCmd)
}

func runChargersLs(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer closeService(svc)
	list, err := svc.Store.ListChargers(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tWALLET\tTXS\tINCOME\tCOSTS\tBALANCE")
	for _, c := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			c.ID, c.Status, c.WalletAddress, c.Transactions,
			c.IncomeGenerated, c.CostGenerated, c.BalanceTotal)
	}
	return w.Flush()
}
