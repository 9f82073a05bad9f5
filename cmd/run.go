package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/luxfi/migrator/pkg/application"
	"github.com/luxfi/migrator/pkg/check"
	"github.com/luxfi/migrator/pkg/core"
	"github.com/luxfi/migrator/pkg/metrics"
	"github.com/luxfi/migrator/pkg/stage"
)

// NewRunCmd creates the run command
func NewRunCmd(app *application.Migrator) *cobra.Command {
	var (
		blocks int
		start  bool
		verify bool
		listen string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance both chains until the migration is done",
		Long: `Runs source and destination blocks against the configured stores until
both chains report completion, the operator halts the migration or the
block limit is reached. Progress is persisted after every block, so an
interrupted run resumes where it stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			mx, err := metrics.New(reg)
			if err != nil {
				return err
			}

			s, err := openSession(app, mx)
			if err != nil {
				return err
			}
			defer s.Close()

			if listen == "" {
				listen = s.cfg.Metrics.Listen
			}
			if listen != "" {
				shutdown := serveMetrics(app, reg, listen)
				defer shutdown()
			}

			var runner *check.Runner
			if verify {
				if s.net.SourceStage() != stage.Pending {
					return fmt.Errorf("--verify needs a migration that has not started, source is %s", s.net.SourceStage())
				}
				runner = check.NewRunner(app.Log, check.Default(s.net.Translator, s.net.Converter)...)
				if err := runner.RunPre(ctx, s.src, s.dst); err != nil {
					return err
				}
			}

			if start && s.net.SourceStage() == stage.Pending {
				if err := s.net.Source.Start(ctx); err != nil {
					return err
				}
			}
			if s.net.SourceStage() == stage.Pending {
				return fmt.Errorf("migration not started, pass --start or run 'migrator stage start'")
			}

			began := time.Now()
			n, err := s.net.Run(ctx, blocks)
			app.Log.Info("Run finished", "blocks", n, "elapsed", time.Since(began),
				"source", s.net.SourceStage(), "destination", s.net.DestinationStage())
			printBad(cmd, s.net.Destination.Events().Bad())
			if errors.Is(err, core.ErrHalted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Migration halted, resume with 'migrator stage resume'")
				return nil
			}
			if err != nil {
				return err
			}

			if runner != nil {
				if err := runner.RunPost(ctx, s.src, s.dst); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "All %d checks passed\n", len(runner.Checks()))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migration done after %d blocks\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&blocks, "blocks", 100_000, "Maximum number of blocks to run")
	cmd.Flags().BoolVar(&start, "start", false, "Start the migration if it is pending")
	cmd.Flags().BoolVar(&verify, "verify", false, "Run the consistency checks around the migration")
	cmd.Flags().StringVar(&listen, "metrics-listen", "", "Address to serve prometheus metrics on (overrides metrics.listen)")

	return cmd
}

func serveMetrics(app *application.Migrator, reg *prometheus.Registry, listen string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		app.Log.Info("Serving metrics", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Log.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			app.Log.Warn("Failed to stop metrics server", "error", err)
		}
	}
}

func printBad(cmd *cobra.Command, bad map[stage.Domain]int) {
	domains := make([]stage.Domain, 0, len(bad))
	for d, n := range bad {
		if n > 0 {
			domains = append(domains, d)
		}
	}
	if len(domains) == 0 {
		return
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })
	fmt.Fprintln(cmd.OutOrStdout(), "Items rejected by the destination:")
	for _, d := range domains {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-28s %d\n", d, bad[d])
	}
}
