package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/cityledger/internal/daemon"
	"github.com/tutu-network/cityledger/internal/domain"
)

// open builds a daemon over the configured store. Callers must Close it.
func (o *globalOptions) open() (*daemon.Daemon, error) {
	return daemon.New(o.cfg, daemon.Options{Logger: o.logger})
}

// caller returns cmd's context carrying the --as identity, if any.
func (o *globalOptions) caller(cmd *cobra.Command) context.Context {
	if o.as == "" {
		return cmd.Context()
	}
	return domain.WithCaller(cmd.Context(), domain.Identity(o.as))
}

// withDaemon opens the daemon, runs fn and closes it again.
func (o *globalOptions) withDaemon(fn func(d *daemon.Daemon) error) error {
	d, err := o.open()
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}

func parseID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint32(id), nil
}

func parseUint64(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}

func parseUint32(name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return uint32(v), nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
