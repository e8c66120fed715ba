// Command daybook runs the day-book ingestion service and its maintenance
// tasks.
//
//	daybook serve                      HTTP surface plus scheduled polling
//	daybook process --workspace W --datasource D --file data.csv
//	daybook poll [--workspace W] [--datasource D]
//	daybook infer --file data.csv      print the inferred schema
//	daybook validate-config
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// register every registry backend and connector; the config picks one.
	_ "daybook/internal/connector/all"
	_ "daybook/internal/registry/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals are the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globals{}
	rc := &cobra.Command{
		Use:   "daybook",
		Short: "Ingest uploaded and polled data into daily Parquet objects queryable through Athena.",
		Long: `daybook normalizes uploaded or polled payloads into rows, infers their
schema, stores them as one Parquet object per data source and day, and keeps
the Athena catalog table of each data source in line with its schema.

Configuration comes from an optional JSON file (--config) overlaid with
environment variables such as WORKSPACE_BUCKET, ATHENA_DATABASE and
REGISTRY_KIND.`,
		SilenceUsage: true,
	}
	rc.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("DAYBOOK_CONFIG"), "service config JSON path")
	rc.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose logs")

	rc.AddCommand(newServeCommand(g))
	rc.AddCommand(newProcessCommand(g))
	rc.AddCommand(newPollCommand(g))
	rc.AddCommand(newInferCommand(g))
	rc.AddCommand(newValidateConfigCommand(g))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}
