package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/daemon"
	"github.com/tutu-network/cityledger/internal/domain"
)

func init() {
	register(newProposalCmd)
}

func newProposalCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "proposal",
		Aliases: []string{"proposals"},
		Short:   "Create, vote on and resolve citizen proposals",
	}
	cmd.AddCommand(
		newProposalCreateCmd(opts),
		newProposalVoteCmd(opts),
		newProposalResolveCmd(opts),
		newProposalListCmd(opts),
		newProposalShowCmd(opts),
		newProposalStatsCmd(opts),
	)
	return cmd
}

func newProposalCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		description string
		budget      uint64
	)
	cmd := &cobra.Command{
		Use:   "create TITLE",
		Short: "Submit a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDaemon(func(d *daemon.Daemon) error {
				id, err := d.Governance.CreateProposal(opts.caller(cmd), args[0], description, budget)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created proposal %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Proposal description")
	cmd.Flags().Uint64Var(&budget, "budget", 0, "Requested budget")
	return cmd
}

func newProposalVoteCmd(opts *globalOptions) *cobra.Command {
	var against bool
	cmd := &cobra.Command{
		Use:   "vote ID",
		Short: "Vote for a proposal (--against to oppose)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				ctx := opts.caller(cmd)
				if err := d.Governance.CastVote(ctx, id, !against); err != nil {
					return err
				}
				p, err := d.Governance.GetProposal(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vote recorded: %d for, %d against\n", p.VotesFor, p.VotesAgainst)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&against, "against", false, "Vote against the proposal")
	return cmd
}

func newProposalResolveCmd(opts *globalOptions) *cobra.Command {
	var expired bool
	cmd := &cobra.Command{
		Use:   "resolve [ID]",
		Short: "Resolve a proposal whose voting window has closed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expired == (len(args) == 1) {
				return fmt.Errorf("give either a proposal ID or --expired")
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				ctx := opts.caller(cmd)
				if expired {
					resolved, err := d.Governance.ResolveExpired(ctx)
					if err != nil {
						return err
					}
					for _, p := range resolved {
						fmt.Fprintf(cmd.OutOrStdout(), "Proposal %d: %s\n", p.ID, p.Status)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Resolved %d proposal(s)\n", len(resolved))
					return nil
				}

				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				status, err := d.Governance.ResolveProposal(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Proposal %d: %s\n", id, status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&expired, "expired", false, "Resolve every proposal past its deadline")
	return cmd
}

func newProposalListCmd(opts *globalOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List proposals",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *domain.ProposalStatus
			if status != "" {
				st, err := domain.ParseProposalStatus(status)
				if err != nil {
					return err
				}
				filter = &st
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				proposals, err := d.Governance.ListProposals(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(proposals) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No proposals.")
					return nil
				}

				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tFOR\tAGAINST\tCLOSES")
				for _, p := range proposals {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n",
						p.ID, p.Title, p.Status, p.VotesFor, p.VotesAgainst, formatTime(p.ExecutionTime))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show proposals in this status (Active, Passed, Rejected)")
	return cmd
}

func newProposalShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				p, err := d.Governance.GetProposal(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:             %d\n", p.ID)
				fmt.Fprintf(out, "Title:          %s\n", p.Title)
				fmt.Fprintf(out, "Description:    %s\n", p.Description)
				fmt.Fprintf(out, "Proposer:       %s\n", p.Proposer)
				fmt.Fprintf(out, "Budget:         %d\n", p.Budget)
				fmt.Fprintf(out, "Status:         %s\n", p.Status)
				fmt.Fprintf(out, "Votes:          %d for, %d against\n", p.VotesFor, p.VotesAgainst)
				fmt.Fprintf(out, "Closes:         %s\n", formatTime(p.ExecutionTime))
				fmt.Fprintf(out, "Resolved:       %s\n", formatTime(p.ResolvedAt))
				fmt.Fprintf(out, "Recommendation: %s\n", p.AIRecommendation)
				return nil
			})
		},
	}
}

func newProposalStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show governance statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDaemon(func(d *daemon.Daemon) error {
				s, err := d.Governance.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Proposals:  %d (%d active, %d passed, %d rejected)\n",
					s.TotalProposals, s.ActiveProposals, s.PassedProposals, s.RejectedProposals)
				fmt.Fprintf(out, "Votes cast: %d\n", s.TotalVotesCast)
				fmt.Fprintf(out, "Quorum:     %d\n", d.Governance.Config().Quorum())
				return nil
			})
		},
	}
}
