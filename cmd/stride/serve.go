package main

import (
	"context"
	"fmt"
	"net"

	"github.com/aretw0/stride/internal/cli"
	"github.com/aretw0/stride/internal/presentation/tui"
	httpAdapter "github.com/aretw0/stride/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  `Starts the pipeline engine in server mode, exposing a JSON API, an SSE event stream and Prometheus metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig(cliOptions(cmd))
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		// Server mode always logs JSON.
		cfg.Log.Format = "json"
		logger := cli.CreateLogger(cfg)

		var (
			reg     *prometheus.Registry
			handler []httpAdapter.Option
		)
		if cfg.Server.Metrics {
			reg = prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			handler = append(handler, httpAdapter.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
		}

		var registerer prometheus.Registerer
		if reg != nil {
			registerer = reg
		}
		engine, err := cli.CreateEngine(cfg, logger, registerer)
		if err != nil {
			return err
		}
		defer func() {
			if err := engine.Close(); err != nil {
				logger.Error("engine close failed", "error", err)
			}
		}()

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			return err
		}

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(cmd.ErrOrStderr())
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		handler = append(handler, httpAdapter.WithLogger(logger))
		if err := cli.Serve(ctx, ln, httpAdapter.NewHandler(engine.Sessions(), handler...), logger); err != nil {
			return err
		}
		logger.Debug("shutdown cause", "reason", ctx.Reason())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
}
