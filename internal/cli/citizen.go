package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/daemon"
	"github.com/tutu-network/cityledger/internal/domain"
)

func init() {
	register(newCitizenCmd)
}

func newCitizenCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "citizen",
		Aliases: []string{"citizens"},
		Short:   "Inspect and reward citizen reputation",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show IDENTITY",
			Short: "Show a citizen's reputation profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDaemon(func(d *daemon.Daemon) error {
					p, err := d.Governance.Profile(cmd.Context(), domain.Identity(args[0]))
					if err != nil {
						return err
					}
					printProfile(cmd, args[0], p)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "reward IDENTITY POINTS",
			Short: "Credit contribution points to a citizen (oracle only)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				points, err := parseUint64("points", args[1])
				if err != nil {
					return err
				}
				return opts.withDaemon(func(d *daemon.Daemon) error {
					p, err := d.Governance.RewardContribution(opts.caller(cmd), domain.Identity(args[0]), points)
					if err != nil {
						return err
					}
					printProfile(cmd, args[0], p)
					return nil
				})
			},
		},
		newCitizenTopCmd(opts),
	)
	return cmd
}

func newCitizenTopCmd(opts *globalOptions) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List citizens by reputation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDaemon(func(d *daemon.Daemon) error {
				top, err := d.Governance.TopCitizens(cmd.Context(), n)
				if err != nil {
					return err
				}
				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "IDENTITY\tREPUTATION\tPOWER\tPROPOSALS\tVOTES")
				for _, c := range top {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", c.Identity,
						c.Profile.ReputationScore, c.Profile.VotingPower,
						c.Profile.ProposalsSubmitted, c.Profile.VotesCast)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 10, "Number of citizens to show")
	return cmd
}

func printProfile(cmd *cobra.Command, id string, p domain.CitizenProfile) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Citizen:       %s\n", id)
	fmt.Fprintf(out, "Reputation:    %d\n", p.ReputationScore)
	fmt.Fprintf(out, "Voting power:  %d\n", p.VotingPower)
	fmt.Fprintf(out, "Proposals:     %d\n", p.ProposalsSubmitted)
	fmt.Fprintf(out, "Votes cast:    %d\n", p.VotesCast)
	fmt.Fprintf(out, "Contributions: %d\n", p.AIContributions)
}
