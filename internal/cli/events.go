package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/app"
	"github.com/tutu-network/cityledger/internal/daemon"
	"github.com/tutu-network/cityledger/internal/infra/access"
)

func init() {
	register(newEventsCmd, newRolesCmd, newConfigCmd)
}

func newEventsCmd(opts *globalOptions) *cobra.Command {
	var (
		after  uint64
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the persisted event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var from *uint64
			if cmd.Flags().Changed("after") {
				from = &after
			}
			return opts.withDaemon(func(d *daemon.Daemon) error {
				events, err := app.ListEvents(cmd.Context(), d.Store, from, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), events)
				}

				w := newTable(cmd.OutOrStdout())
				fmt.Fprintln(w, "SEQ\tEVENT\tTOPICS\tPAYLOAD\tAT")
				for _, e := range events {
					topics := make([]string, 0, len(e.Topics))
					for _, t := range e.Topics {
						topics = append(topics, t.Key+"="+t.Value)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
						e.Seq, e.Name, strings.Join(topics, ","), e.Payload, formatTime(e.Timestamp))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().Uint64Var(&after, "after", 0, "Only show events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum events to show (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	return cmd
}

func newRolesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Show the configured admin and oracle identities",
		Long: `Show the configured admin and oracle identities.
Roles are set in the [roles] config section and can be rotated at runtime
through PUT /api/v1/roles/{role} on a running server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s:  %s\n", access.RoleAdmin, opts.cfg.Roles.Admin)
			fmt.Fprintf(out, "%s: %s\n", access.RoleOracle, opts.cfg.Roles.Oracle)
			return nil
		},
	}
}

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as TOML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return toml.NewEncoder(cmd.OutOrStdout()).Encode(opts.cfg)
			},
		},
		&cobra.Command{
			Use:   "init [PATH]",
			Short: "Write the effective configuration to a file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := filepath.Join(daemon.Home(), "config.toml")
				if len(args) == 1 {
					path = args[0]
				}
				if err := daemon.SaveConfig(opts.cfg, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
				return nil
			},
		},
	)
	return cmd
}
