package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/daemon"
	"github.com/tutu-network/cityledger/internal/domain"
)

func init() {
	register(newFundCmd)
}

func newFundCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Contribute to and inspect the emergency fund",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "contribute AMOUNT",
			Short: "Contribute to the emergency fund",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := parseUint64("amount", args[0])
				if err != nil {
					return err
				}
				return opts.withDaemon(func(d *daemon.Daemon) error {
					if err := d.Fund.Contribute(opts.caller(cmd), amount); err != nil {
						return err
					}
					return printFundStats(cmd, d)
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show the fund balance and totals",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDaemon(func(d *daemon.Daemon) error {
					return printFundStats(cmd, d)
				})
			},
		},
		&cobra.Command{
			Use:   "contribution IDENTITY",
			Short: "Show how much an identity has contributed",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDaemon(func(d *daemon.Daemon) error {
					amount, err := d.Fund.Contribution(cmd.Context(), domain.Identity(args[0]))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s contributed %d\n", args[0], amount)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "audit",
			Short: "Check the fund conservation invariant",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDaemon(func(d *daemon.Daemon) error {
					if err := d.Fund.Audit(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Fund conserved.")
					return nil
				})
			},
		},
	)
	return cmd
}

func printFundStats(cmd *cobra.Command, d *daemon.Daemon) error {
	s, err := d.Emergency.FundStats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Balance:       %d\n", s.Balance)
	fmt.Fprintf(out, "Contributions: %d\n", s.TotalContributions)
	fmt.Fprintf(out, "Payouts:       %d\n", s.TotalPayouts)
	fmt.Fprintf(out, "Incidents:     %d\n", s.IncidentCount)
	return nil
}
