package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"daybook/internal/config"
	"daybook/internal/normalize"
	"daybook/internal/poller"
	"daybook/internal/schema"
	"daybook/internal/server"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(g *globals) *cobra.Command {
	var noPoll bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve upload events, signed URLs and row queries; poll connectors on schedule.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, g.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(server.Config{
				Addr:    cfg.Server.ListenAddr,
				Bucket:  cfg.Bucket,
				URLTTL:  cfg.Server.URLTTL(),
				Store:   a.store,
				Ingest:  a.proc,
				Sources: a.reg,
				Query:   a.exec,
				Tables:  a.catalog,
			})

			var sched *poller.Scheduler
			if !noPoll && cfg.Poller.Schedule != "" {
				if sched, err = poller.NewScheduler(ctx, newPoller(a, cfg), cfg.Poller.Schedule); err != nil {
					return err
				}
			}

			eg, ctx := errgroup.WithContext(ctx)
			if cfg.Server.ListenAddr != "" {
				eg.Go(func() error { return srv.ListenAndServe(ctx) })
			}
			if sched != nil {
				eg.Go(func() error {
					sched.Run(ctx)
					return nil
				})
			}
			return eg.Wait()
		},
	}
	cmd.Flags().BoolVar(&noPoll, "no-poll", false, "disable scheduled polling")
	return cmd
}

func newPoller(a *app, cfg config.Service) *poller.Poller {
	return poller.New(a.reg, a.proc, poller.Config{
		Attempts:    cfg.Poller.Attempts,
		Concurrency: cfg.Poller.Concurrency,
	})
}

func newProcessCommand(g *globals) *cobra.Command {
	var workspace, dataSource, file string
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Ingest a local file as an upload for one data source.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, "read input")
			}
			cfg, err := loadConfig(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, g.verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			res, err := a.proc.ProcessUpload(cmd.Context(), workspace, dataSource, data)
			if err != nil {
				return err
			}
			if g.verbose {
				log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace id")
	cmd.Flags().StringVar(&dataSource, "datasource", "", "data source id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "input file (CSV or JSON)")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("datasource")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPollCommand(g *globals) *cobra.Command {
	var workspace, dataSource string
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll connector-backed data sources once.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dataSource != "" && workspace == "" {
				return errors.New("--datasource requires --workspace")
			}
			cfg, err := loadConfig(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, g.verbose)
			if err != nil {
				return err
			}
			defer a.Close()
			p := newPoller(a, cfg)

			if dataSource == "" {
				s, err := p.PollAll(ctx, workspace)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), s)
			}

			ds, err := a.reg.Get(ctx, workspace, dataSource)
			if err != nil {
				return err
			}
			out, err := p.PollDataSource(ctx, *ds)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "limit to one workspace")
	cmd.Flags().StringVar(&dataSource, "datasource", "", "poll a single data source")
	return cmd
}

func newInferCommand(g *globals) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Normalize a local file and print its inferred schema.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				data []byte
				err  error
			)
			if file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return errors.Wrap(err, "read input")
			}

			b, err := normalize.New().Normalize(data)
			if err != nil {
				return err
			}
			if b.Len() == 0 {
				return errors.New("input has no rows")
			}
			s, err := schema.Infer(b.Columns, b.Rows)
			if err != nil {
				return err
			}
			if g.verbose {
				log.Printf("infer: rows=%d columns=%d fingerprint=%016x", b.Len(), len(s), schema.Fingerprint(s))
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "input file, - for stdin")
	return cmd
}

func newValidateConfigCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the service configuration and exit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(g, cmd.ErrOrStderr()); err != nil {
				return err
			}
			name := g.configPath
			if name == "" {
				name = "(defaults and environment)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s\n", name)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
