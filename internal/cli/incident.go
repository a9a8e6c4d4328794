package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/daemon"
	"github.com/tutu-network/cityledger/internal/domain"
)

func init() {
	register(newIncidentCmd)
}

func newIncidentCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "incident",
		Aliases: []string{"incidents"},
		Short:   "Report, verify and pay out emergency incidents",
	}
	cmd.AddCommand(
		newIncidentReportCmd(opts),
		newIncidentVerifyCmd(opts),
		newIncidentVoteCmd(opts),
		newIncidentPayoutCmd(opts),
		newIncidentListCmd(opts),
		newIncidentShowCmd(opts),
	)
	return cmd
}

func newIncidentReportCmd(opts *globalOptions) *cobra.Command {
	var (
		location    string
		description string
		affected    uint32
	)
	cmd := &cobra.Command{
		Use:   "report TYPE SEVERITY",
		Short: "Report an emergency (Fire, Flood, PowerOutage, CyberAttack, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := domain.ParseIncidentType(args[0])
			if err != nil {
				return err
			}
			severity, err := parseUint32("severity", args[1])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				id, err := d.Emergency.ReportEmergency(opts.caller(cmd), typ, location, description, severity, affected)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reported incident %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&location, "location", "", "Where the incident is")
	cmd.Flags().StringVarP(&description, "description", "d", "", "What happened")
	cmd.Flags().Uint32Var(&affected, "affected", 0, "Number of affected citizens")
	return cmd
}

func newIncidentVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify ID CONFIDENCE COST",
		Short: "Attach oracle confidence and estimated cost (oracle only)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			confidence, err := parseUint32("confidence", args[1])
			if err != nil {
				return err
			}
			cost, err := parseUint64("cost", args[2])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				ctx := opts.caller(cmd)
				if err := d.Emergency.OracleVerify(ctx, id, confidence, cost); err != nil {
					return err
				}
				inc, err := d.Emergency.GetIncident(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Incident %d: %s (confidence %d)\n", id, inc.Status, inc.AIConfidence)
				return nil
			})
		},
	}
}

func newIncidentVoteCmd(opts *globalOptions) *cobra.Command {
	var reject bool
	cmd := &cobra.Command{
		Use:   "vote ID",
		Short: "Approve a verified incident's payout (--reject to oppose)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				ctx := opts.caller(cmd)
				executed, err := d.Emergency.VoteForPayout(ctx, id, !reject)
				if err != nil {
					return err
				}
				tally, err := d.Emergency.PayoutApprovals(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Approvals: %d/%d, rejections: %d\n", tally.Approvals, tally.Required, tally.Rejections)
				if executed {
					fmt.Fprintf(out, "Payout executed for incident %d\n", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "Vote against the payout")
	return cmd
}

func newIncidentPayoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "payout ID",
		Short: "Execute a verified incident's payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				ctx := opts.caller(cmd)
				if err := d.Emergency.ExecutePayout(ctx, id); err != nil {
					return err
				}
				inc, err := d.Emergency.GetIncident(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paid %d to %s for incident %d\n", inc.ActualCost, inc.Reporter, id)
				return nil
			})
		},
	}
}

func newIncidentListCmd(opts *globalOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List incidents",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *domain.IncidentStatus
			if status != "" {
				var st domain.IncidentStatus
				if err := st.UnmarshalText([]byte(status)); err != nil {
					return err
				}
				filter = &st
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				incidents, err := d.Emergency.ListIncidents(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(incidents) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No incidents.")
					return nil
				}

				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tSTATUS\tLOCATION\tCOST\tREPORTED")
				for _, inc := range incidents {
					fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%d\t%s\n",
						inc.ID, inc.Type, inc.Severity, inc.Status, inc.Location,
						inc.EstimatedCost, formatTime(inc.ReportedAt))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show incidents in this status")
	return cmd
}

func newIncidentShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an incident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				inc, err := d.Emergency.GetIncident(cmd.Context(), id)
				if err != nil {
					return err
				}
				tally, err := d.Emergency.PayoutApprovals(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:          %d\n", inc.ID)
				fmt.Fprintf(out, "Type:        %s\n", inc.Type)
				fmt.Fprintf(out, "Severity:    %d\n", inc.Severity)
				fmt.Fprintf(out, "Status:      %s\n", inc.Status)
				fmt.Fprintf(out, "Location:    %s\n", inc.Location)
				fmt.Fprintf(out, "Reporter:    %s\n", inc.Reporter)
				fmt.Fprintf(out, "Affected:    %d\n", inc.AffectedCitizens)
				fmt.Fprintf(out, "Confidence:  %d\n", inc.AIConfidence)
				fmt.Fprintf(out, "Est. cost:   %d\n", inc.EstimatedCost)
				fmt.Fprintf(out, "Paid:        %d\n", inc.ActualCost)
				fmt.Fprintf(out, "Approvals:   %d/%d (%d rejections)\n", tally.Approvals, tally.Required, tally.Rejections)
				fmt.Fprintf(out, "Reported:    %s\n", formatTime(inc.ReportedAt))
				if inc.Status == domain.IncidentPayoutExecuted {
					fmt.Fprintf(out, "Response:    %s\n", inc.ResponseTime)
				}
				return nil
			})
		},
	}
}
