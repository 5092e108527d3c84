package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"meshcore/application"
	"meshcore/client"
	"meshcore/infrastructure/config"
	"meshcore/infrastructure/discovery"
	"meshcore/infrastructure/logging"
	"meshcore/infrastructure/tun"
)

func clientCmd() *cobra.Command {
	var configPath string
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a mesh VPN coordination server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(configPath, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the client configuration file (default: "+config.EnvConfigPath+" or the OS user config dir)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on, e.g. :9090 (disabled if empty)")
	return cmd
}

func runClient(configPath, metricsAddr string) error {
	logger := logging.NewLogLogger()

	if configPath == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			return fmt.Errorf("resolving configuration path: %w", err)
		}
		configPath = resolved
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration from %s: %w", configPath, err)
	}

	tunDevice, err := tun.NewLinuxTunDevice(cfg.InterfaceName, logger)
	if err != nil {
		return fmt.Errorf("creating TUN device %s: %w", cfg.InterfaceName, err)
	}
	defer tunDevice.Close()

	probe := discovery.NewHTTPProbe(nil)

	c, err := client.New(cfg, tunDevice, probe, logger)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if metricsAddr != "" {
		stopMetrics := serveMetrics(metricsAddr, c, logger)
		defer stopMetrics()
	}

	return c.Run(runCtx)
}

func serveMetrics(addr string, c *client.Client, logger application.Logger) func() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c.PrometheusExporter())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("meshcore: metrics server: %v", err)
		}
	}()

	return func() { _ = srv.Close() }
}
