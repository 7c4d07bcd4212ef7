// Command agentx-server runs the rendezvous server: three TCP listeners
// (control, proxy, public) pairing public HTTP clients with registered
// client agents, per spec.md §2/§4.1-4.2.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sxhxliang/agentx-proxy/internal/config"
	"github.com/sxhxliang/agentx-proxy/internal/logger"
	"github.com/sxhxliang/agentx-proxy/internal/rendezvous"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		controlPort int
		proxyPort   int
		publicPort  int
		poolSize    int
		logLevel    string
		logFile     string
	)

	cmd := &cobra.Command{
		Use:   "agentx-server",
		Short: "Rendezvous server pairing public HTTP clients with registered client agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			applyFlagOverrides(cmd, &cfg, controlPort, proxyPort, publicPort, poolSize, logLevel, logFile)

			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			srv := rendezvous.NewServer(rendezvous.Config{
				ControlAddr: fmt.Sprintf(":%d", cfg.ControlPort),
				ProxyAddr:   fmt.Sprintf(":%d", cfg.ProxyPort),
				PublicAddr:  fmt.Sprintf(":%d", cfg.PublicPort),
				PoolTarget:  cfg.PoolSize,
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("agentx-server: shutting down")
				cancel()
			}()

			logger.Info("agentx-server: starting",
				"control_port", cfg.ControlPort, "proxy_port", cfg.ProxyPort,
				"public_port", cfg.PublicPort, "pool_size", cfg.PoolSize)

			if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	defaults := config.DefaultServerConfig()
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().IntVar(&controlPort, "control-port", defaults.ControlPort, "control-plane TCP port")
	cmd.Flags().IntVar(&proxyPort, "proxy-port", defaults.ProxyPort, "proxy-connection TCP port")
	cmd.Flags().IntVar(&publicPort, "public-port", defaults.PublicPort, "public HTTP-entry TCP port")
	cmd.Flags().IntVar(&poolSize, "pool-size", defaults.PoolSize, "idle proxy connections maintained per client")
	cmd.Flags().StringVar(&logLevel, "log-level", defaults.LogLevel, "debug|info|warn|error")
	cmd.Flags().StringVar(&logFile, "log-file", defaults.LogFile, "also write logs to this file (logs always go to stdout)")

	return cmd
}

// applyFlagOverrides layers explicitly-set CLI flags over the config
// loaded from file/defaults, matching spec.md §6's "CLI flags override
// config file" precedence.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.ServerConfig, controlPort, proxyPort, publicPort, poolSize int, logLevel, logFile string) {
	if cmd.Flags().Changed("control-port") {
		cfg.ControlPort = controlPort
	}
	if cmd.Flags().Changed("proxy-port") {
		cfg.ProxyPort = proxyPort
	}
	if cmd.Flags().Changed("public-port") {
		cfg.PublicPort = publicPort
	}
	if cmd.Flags().Changed("pool-size") {
		cfg.PoolSize = poolSize
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = logFile
	}
}
