package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Register the chargers listed in the seed file",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	svc, err := newService(cmd.Context())
	if err != nil {
		return err
	}
	defer closeService(svc)
	n, seedErr := svc.Seed(cmd.Context())
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d chargers created\n", n); err != nil {
		return err
	}
	return seedErr
}
