// Package cli implements the cityledger command-line interface using Cobra.
// Each subcommand maps to one ledger operation, run against the local store.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/tutu-network/cityledger/internal/daemon"
)

// globalOptions carries the persistent flags and the state they resolve to.
type globalOptions struct {
	configFile string
	as         string
	debug      bool

	cfg    daemon.Config
	logger *slog.Logger
}

// commands holds the top-level command constructors. Each command file
// registers its own in init; the root builds a fresh tree from them.
var commands []func(opts *globalOptions) *cobra.Command

func register(builders ...func(opts *globalOptions) *cobra.Command) {
	commands = append(commands, builders...)
}

func newRootCmd(version string) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "cityledger",
		Short: "cityledger: municipal governance and emergency fund ledgers",
		Long: `cityledger runs the public ledgers of a municipal operations platform:
citizen proposals and reputation-weighted voting, the emergency fund with
oracle-verified incidents and payout approval, and the city agent registry.

Commands act on the local store; pass --as to choose the calling identity.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Config file, TOML or YAML (default $CITYLEDGER_HOME/config.toml)")
	pf.StringVar(&opts.as, "as", os.Getenv("CITYLEDGER_AS"), "Identity to act as")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	for _, build := range commands {
		cmd.AddCommand(build(opts))
	}
	return cmd
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	if err := newRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (o *globalOptions) init(cmd *cobra.Command) error {
	cfg, err := daemon.LoadConfig(o.configFile)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.logger = newLogger(cmd.ErrOrStderr(), cfg.Logging, o.debug)
	slog.SetDefault(o.logger)

	// Configure max processes with our logger wrapper, toss undo func
	_, err = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		o.logger.Debug(fmt.Sprintf(format, args...), "component", "maxprocs")
	}))
	if err != nil {
		return fmt.Errorf("set GOMAXPROCS: %w", err)
	}
	return nil
}

// newLogger builds the process logger from the [logging] section.
// Unknown levels fall back to info.
func newLogger(w io.Writer, cfg daemon.LoggingConfig, debug bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
