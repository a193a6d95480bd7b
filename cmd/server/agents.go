package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"availability-scheduler/internal/config"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage the local agent directory",
}

var agentsAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Register an agent id so its schedule can be queried and booked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("agent id %q must be a positive integer", args[0])
		}
		if cfg.Store.Driver == config.DriverMemory {
			return fmt.Errorf("the memory driver keeps no directory between runs")
		}
		name, _ := cmd.Flags().GetString("name")

		b, err := openBackend(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer b.close()
		if err := b.migrate(cmd.Context()); err != nil {
			return err
		}
		if err := b.addAgent(cmd.Context(), id, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "agent %d registered\n", id)
		return nil
	},
}

func init() {
	agentsAddCmd.Flags().String("name", "", "display name")
	agentsCmd.AddCommand(agentsAddCmd)
	rootCmd.AddCommand(agentsCmd)
}
