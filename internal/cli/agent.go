package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/daemon"
	"github.com/tutu-network/cityledger/internal/domain"
)

func init() {
	register(newAgentCmd)
}

func newAgentCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agent",
		Aliases: []string{"agents"},
		Short:   "Register city agents and record their decisions",
	}
	cmd.AddCommand(
		newAgentRegisterCmd(opts),
		newAgentDecideCmd(opts),
		&cobra.Command{
			Use:   "performance ID ENERGY_SAVED COST_REDUCTION",
			Short: "Record measured savings for an agent",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				energy, err := parseUint64("energy", args[1])
				if err != nil {
					return err
				}
				cost, err := parseUint64("cost reduction", args[2])
				if err != nil {
					return err
				}
				return opts.withDaemon(func(d *daemon.Daemon) error {
					if err := d.Agents.UpdatePerformance(opts.caller(cmd), id, energy, cost); err != nil {
						return err
					}
					return printAgent(cmd, d, id)
				})
			},
		},
		&cobra.Command{
			Use:   "status ID STATUS",
			Short: "Set an agent's status (admin only)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				status, err := domain.ParseAgentStatus(args[1])
				if err != nil {
					return err
				}
				return opts.withDaemon(func(d *daemon.Daemon) error {
					if err := d.Agents.SetStatus(opts.caller(cmd), id, status); err != nil {
						return err
					}
					return printAgent(cmd, d, id)
				})
			},
		},
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List agents",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDaemon(func(d *daemon.Daemon) error {
					agents, err := d.Agents.ListAgents(cmd.Context())
					if err != nil {
						return err
					}
					if len(agents) == 0 {
						fmt.Fprintln(cmd.OutOrStdout(), "No agents registered.")
						return nil
					}
					w := newTable(cmd.OutOrStdout())
					fmt.Fprintln(w, "ID\tNAME\tZONE\tSTATUS\tPERFORMANCE\tDECISIONS")
					for _, a := range agents {
						fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n",
							a.ID, a.Name, a.Zone, a.Status, a.PerformanceScore, a.DecisionsMade)
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Show an agent and its decision log",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				return opts.withDaemon(func(d *daemon.Daemon) error {
					if err := printAgent(cmd, d, id); err != nil {
						return err
					}
					decisions, err := d.Agents.Decisions(cmd.Context(), id)
					if err != nil {
						return err
					}
					if len(decisions) == 0 {
						return nil
					}
					fmt.Fprintln(cmd.OutOrStdout())
					w := newTable(cmd.OutOrStdout())
					fmt.Fprintln(w, "SEQ\tTYPE\tIMPACT\tAT")
					for _, dec := range decisions {
						fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", dec.Seq, dec.DecisionType, dec.ImpactScore, formatTime(dec.Timestamp))
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show registry-wide impact totals",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDaemon(func(d *daemon.Daemon) error {
					t, err := d.Agents.TotalStats(cmd.Context())
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Agents:         %d\n", t.AgentCount)
					fmt.Fprintf(out, "Energy saved:   %d\n", t.TotalEnergySaved)
					fmt.Fprintf(out, "Cost reduction: %d\n", t.TotalCostReduction)
					return nil
				})
			},
		},
	)
	return cmd
}

func newAgentRegisterCmd(opts *globalOptions) *cobra.Command {
	var zone, specialization string
	cmd := &cobra.Command{
		Use:   "register NAME",
		Short: "Register an agent (admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDaemon(func(d *daemon.Daemon) error {
				id, err := d.Agents.RegisterAgent(opts.caller(cmd), args[0], zone, specialization)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered agent %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&zone, "zone", "", "City zone the agent operates in")
	cmd.Flags().StringVar(&specialization, "specialization", "", "What the agent manages")
	return cmd
}

func newAgentDecideCmd(opts *globalOptions) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "decide ID TYPE IMPACT",
		Short: "Record an agent decision",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			impact, err := parseUint32("impact", args[2])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				if err := d.Agents.RecordDecision(opts.caller(cmd), id, args[1], params, impact); err != nil {
					return err
				}
				return printAgent(cmd, d, id)
			})
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "Decision parameters (opaque)")
	return cmd
}

func printAgent(cmd *cobra.Command, d *daemon.Daemon, id uint32) error {
	a, err := d.Agents.GetAgent(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:             %d\n", a.ID)
	fmt.Fprintf(out, "Name:           %s\n", a.Name)
	fmt.Fprintf(out, "Zone:           %s\n", a.Zone)
	fmt.Fprintf(out, "Specialization: %s\n", a.Specialization)
	fmt.Fprintf(out, "Status:         %s\n", a.Status)
	fmt.Fprintf(out, "Performance:    %d\n", a.PerformanceScore)
	fmt.Fprintf(out, "Decisions:      %d\n", a.DecisionsMade)
	fmt.Fprintf(out, "Energy saved:   %d\n", a.EnergySaved)
	fmt.Fprintf(out, "Cost reduction: %d\n", a.CostReduction)
	return nil
}
