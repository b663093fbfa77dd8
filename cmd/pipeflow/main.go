package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drblury/pipeflow"
	_ "github.com/drblury/pipeflow/transport/transports"
)

var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "pipeflow",
		Short: "Run and inspect in-process message pipelines",
		Long: `pipeflow drives a message pipeline from the command line.
It can process generated orders through a handler, notify subscribers and
forward the messages to any registered transport.`,
		Version:      fmt.Sprintf("%s (commit: %s)", version, gitCommit),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")

	newLogger := func(w io.Writer) (pipeflow.ServiceLogger, error) {
		level, err := pipeflow.ParseLogLevel(logLevel)
		if err != nil {
			return nil, err
		}
		handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
		return pipeflow.NewSlogServiceLogger(slog.New(handler)), nil
	}

	rootCmd.AddCommand(newDemoCmd(newLogger), newTransportsCmd())
	return rootCmd
}
