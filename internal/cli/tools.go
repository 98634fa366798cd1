package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/config"
	"github.com/mirrorhub/mirrorhub/internal/timeline"
	"github.com/mirrorhub/mirrorhub/internal/tools"
	"github.com/mirrorhub/mirrorhub/internal/toolrpc"
	"github.com/spf13/cobra"
)

var toolsListen string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect or serve the mirror tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the current configuration offers",
	RunE:  runToolsList,
}

var toolsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tools over tool RPC on stdio (or TCP with --listen)",
	RunE:  runToolsServe,
}

func init() {
	toolsServeCmd.Flags().StringVar(&toolsListen, "listen", "", "TCP address to listen on instead of stdio")
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsServeCmd)
}

// gatewayRegistry builds a registry for a process that is not the gateway:
// mutating tools wait on the gateway over HTTP, calls are journaled locally.
func gatewayRegistry(ctx context.Context, cfg *config.Config, gw *approval.Client) (*tools.Registry, func(), error) {
	deps := registryDeps{
		Confirmer: approval.NewPoller(gw, cfg.Approval.PollInterval, cfg.Approval.Timeout),
	}
	closeFn := func() {}
	if timeSvc, err := timeline.NewTimelineService(cfg.Paths.TimelineDBPath()); err != nil {
		slog.Warn("Timeline unavailable, outfit tools and call audit disabled", "error", err)
	} else {
		deps.Outfits = timeSvc
		deps.Auditor = timeSvc
		closeFn = func() { _ = timeSvc.Close() }
	}
	reg, err := buildRegistry(ctx, cfg, deps)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return reg, closeFn, nil
}

func serverRegistry(ctx context.Context) (*tools.Registry, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return gatewayRegistry(ctx, cfg, approval.NewClient(cfg.Gateway.URL, cfg.Gateway.AuthToken))
}

func runToolsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	reg, closeFn, err := serverRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	defs, err := reg.Definitions(ctx)
	if err != nil {
		return err
	}
	for _, d := range defs {
		tier := color.GreenString("read-only")
		if d.Tier == tools.TierMutating {
			tier = color.YellowString("confirm  ")
		}
		fmt.Printf("%s  %-34s %s\n", tier, d.Name, d.Description)
	}
	fmt.Printf("\n%d tools\n", len(defs))
	return nil
}

func runToolsServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, closeFn, err := serverRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	srv := toolrpc.NewServer(reg)
	if toolsListen == "" {
		// stdout carries the protocol; logs stay on stderr.
		return srv.Serve(ctx, os.Stdin, os.Stdout)
	}
	ln, err := net.Listen("tcp", toolsListen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", toolsListen, err)
	}
	slog.Info("Tool RPC listening", "addr", ln.Addr().String())
	return srv.ServeListener(ctx, ln)
}
