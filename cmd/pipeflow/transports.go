package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/pipeflow"
)

func newTransportsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transports",
		Short: "List the registered forwarding transports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := pipeflow.DefaultTransportRegistry
			caps := make([]pipeflow.TransportCapabilities, 0, len(registry.Names()))
			for _, name := range registry.Names() {
				caps = append(caps, registry.GetCapabilities(name))
			}

			if asJSON {
				data, err := pipeflow.MarshalIndent(caps, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			printCapabilities(cmd.OutOrStdout(), caps)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print capabilities as JSON")
	return cmd
}

func printCapabilities(w io.Writer, caps []pipeflow.TransportCapabilities) {
	fmt.Fprintf(w, "%-16s %-9s %-8s %-9s %-12s %s\n", "TRANSPORT", "ORDERING", "TRACING", "BATCHING", "PARTITIONING", "MAX SIZE")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, c := range caps {
		fmt.Fprintf(w, "%-16s %-9s %-8s %-9s %-12s %s\n",
			c.Name, yesNo(c.SupportsOrdering), yesNo(c.SupportsTracing),
			yesNo(c.SupportsBatching), yesNo(c.SupportsPartitioning), maxSize(c.MaxMessageSize))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func maxSize(n int64) string {
	switch {
	case n <= 0:
		return "-"
	case n%(1024*1024) == 0:
		return fmt.Sprintf("%d MiB", n/(1024*1024))
	case n%1024 == 0:
		return fmt.Sprintf("%d KiB", n/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
