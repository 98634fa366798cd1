package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var approveForce bool

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Confirm or deny pending actions from the terminal",
	RunE:  runApprove,
}

func init() {
	approveCmd.Flags().BoolVar(&approveForce, "force", false, "Read answers from stdin even when it is not a terminal")
}

func runApprove(cmd *cobra.Command, args []string) error {
	if !approveForce && !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("stdin is not a terminal; pass --force to read answers from a pipe")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printHeader("✅ mirrorhub Approve")
	fmt.Printf("Gateway: %s\n", cfg.Gateway.URL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := approval.NewClient(cfg.Gateway.URL, cfg.Gateway.AuthToken)
	return approval.NewApprover(gw, os.Stdin, os.Stdout, cfg.Approval.PromptInterval).Run(ctx)
}
