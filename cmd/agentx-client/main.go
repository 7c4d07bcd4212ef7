// Command agentx-client runs the client agent: it dials a rendezvous
// server's control port, registers under a device identity, and serves
// proxied requests through an in-process HTTP router or a TCP splice,
// per spec.md §2/§4.3. `agentx-client status` queries an already-running
// client's local admin endpoint instead of starting a new client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sxhxliang/agentx-proxy/internal/client"
	"github.com/sxhxliang/agentx-proxy/internal/config"
	"github.com/sxhxliang/agentx-proxy/internal/deviceid"
	"github.com/sxhxliang/agentx-proxy/internal/logger"
	"github.com/sxhxliang/agentx-proxy/internal/tui"
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
		serverAddr  string
		controlPort int
		proxyPort   int
		localAddr   string
		localPort   int
		clientID    string
		commandMode bool
		enableMCP   bool
		mcpPort     int
		adminPort   int
		logLevel    string
		logFile     string
	)

	root := &cobra.Command{
		Use:   "agentx-client",
		Short: "Client agent exposing a local coding-agent CLI through a reverse tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyClientFlagOverrides(cmd, &cfg, serverAddr, controlPort, proxyPort, localAddr, localPort,
				clientID, commandMode, enableMCP, mcpPort, adminPort, logLevel, logFile)

			if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			id := cfg.ClientID
			if id == "" {
				id = deviceid.Derive()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("agentx-client: shutting down")
				cancel()
			}()

			c, err := client.New(ctx, cfg, id)
			if err != nil {
				return fmt.Errorf("build client: %w", err)
			}
			defer c.Close()

			errCh := make(chan error, 2)
			go func() { errCh <- c.Run(ctx) }()
			go func() { errCh <- c.ServeAdmin(ctx, cfg.AdminPort) }()

			for i := 0; i < 2; i++ {
				if err := <-errCh; err != nil && ctx.Err() == nil {
					cancel()
					return fmt.Errorf("client: %w", err)
				}
			}
			return nil
		},
	}

	defaults := config.DefaultClientConfig()
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&serverAddr, "server-addr", defaults.ServerAddr, "rendezvous server host")
	root.Flags().IntVar(&controlPort, "control-port", defaults.ControlPort, "rendezvous control port")
	root.Flags().IntVar(&proxyPort, "proxy-port", defaults.ProxyPort, "rendezvous proxy port")
	root.Flags().StringVar(&localAddr, "local-addr", "127.0.0.1", "local service host (TCP-forward mode)")
	root.Flags().IntVar(&localPort, "local-port", defaults.LocalPort, "local service port (TCP-forward mode, used only with --command-mode=false)")
	root.Flags().StringVar(&clientID, "client-id", "", "stable client identifier (derived from device identity when empty)")
	root.Flags().BoolVar(&commandMode, "command-mode", defaults.CommandMode, "dispatch proxied requests through the session/history router instead of TCP-forwarding")
	root.Flags().BoolVar(&enableMCP, "enable-mcp", defaults.EnableMCP, "enable the permission broker's MCP endpoint")
	root.Flags().IntVar(&mcpPort, "mcp-port", defaults.MCPPort, "permission broker MCP port")
	root.Flags().IntVar(&adminPort, "admin-port", defaults.AdminPort, "loopback admin HTTP port (0 disables)")
	root.Flags().StringVar(&logLevel, "log-level", defaults.LogLevel, "debug|info|warn|error")
	root.Flags().StringVar(&logFile, "log-file", defaults.LogFile, "also write logs to this file (logs always go to stdout)")

	root.AddCommand(newStatusCmd())
	return root
}

func applyClientFlagOverrides(cmd *cobra.Command, cfg *config.ClientConfig, serverAddr string, controlPort, proxyPort int,
	localAddr string, localPort int, clientID string, commandMode, enableMCP bool, mcpPort, adminPort int, logLevel, logFile string) {
	flags := cmd.Flags()
	if flags.Changed("server-addr") {
		cfg.ServerAddr = serverAddr
	}
	if flags.Changed("control-port") {
		cfg.ControlPort = controlPort
	}
	if flags.Changed("proxy-port") {
		cfg.ProxyPort = proxyPort
	}
	if flags.Changed("local-addr") {
		cfg.LocalAddr = localAddr
	}
	if flags.Changed("local-port") {
		cfg.LocalPort = localPort
	}
	if flags.Changed("client-id") {
		cfg.ClientID = clientID
	}
	if flags.Changed("command-mode") {
		cfg.CommandMode = commandMode
	}
	if flags.Changed("enable-mcp") {
		cfg.EnableMCP = enableMCP
	}
	if flags.Changed("mcp-port") {
		cfg.MCPPort = mcpPort
	}
	if flags.Changed("admin-port") {
		cfg.AdminPort = adminPort
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
}

func newStatusCmd() *cobra.Command {
	var (
		adminAddr string
		watch     bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a running client agent's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := "http://" + adminAddr
			if watch {
				p := tea.NewProgram(tui.NewModel(baseURL))
				_, err := p.Run()
				return err
			}
			return tui.PrintOnce(os.Stdout, baseURL, asJSON)
		},
	}

	cmd.Flags().StringVar(&adminAddr, "admin-addr", "127.0.0.1:17005", "running client's admin address")
	cmd.Flags().BoolVar(&watch, "watch", false, "open the live status dashboard")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")

	return cmd
}
