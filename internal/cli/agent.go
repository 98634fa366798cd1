package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/mirrorhub/mirrorhub/internal/agent"
	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/config"
	"github.com/mirrorhub/mirrorhub/internal/session"
	"github.com/mirrorhub/mirrorhub/internal/toolrpc"
	"github.com/spf13/cobra"
)

const emptyReplyFallback = "Sorry, I couldn't come up with a response."

var (
	agentMessage  string
	agentToolsCmd string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with the assistant in the terminal",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Send a single message and exit")
	agentCmd.Flags().StringVar(&agentToolsCmd, "tools-cmd", "", "Run tools in a child process speaking tool RPC on stdio (e.g. \"mirrorhub tools serve\")")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := approval.NewClient(cfg.Gateway.URL, cfg.Gateway.AuthToken)
	dispatcher, closeTools, err := agentDispatcher(ctx, cfg, gw)
	if err != nil {
		return err
	}
	defer closeTools()

	loop, err := newLoop(cfg, dispatcher, agent.RemoteThoughts(gw))
	if err != nil {
		return err
	}
	sess := session.NewSession("cli:default")

	if agentMessage != "" {
		return agentTurn(ctx, loop, sess, agentMessage)
	}

	printHeader("🪞 mirrorhub Agent")
	fmt.Printf("Model: %s. Type 'quit' to exit.\n", cfg.Model.Name)
	prompt := color.New(color.FgGreen, color.Bold)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("\nYou: ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" {
			return nil
		}
		if err := agentTurn(ctx, loop, sess, line); err != nil {
			return err
		}
	}
}

func agentTurn(ctx context.Context, loop *agent.Loop, sess *session.Session, text string) error {
	reply, err := loop.RunTurn(ctx, sess, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if strings.TrimSpace(reply) == "" {
		reply = emptyReplyFallback
	}
	color.New(color.FgCyan).Print("Assistant: ")
	fmt.Println(reply)
	return nil
}

// agentDispatcher returns either a tool RPC client for --tools-cmd or a local
// registry whose mutating tools wait on the gateway.
func agentDispatcher(ctx context.Context, cfg *config.Config, gw *approval.Client) (agent.Dispatcher, func(), error) {
	if agentToolsCmd != "" {
		client, err := toolrpc.Spawn(agentToolsCmd)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {
			if err := client.Close(); err != nil {
				slog.Debug("Tool server exited", "error", err)
			}
		}, nil
	}

	reg, closeFn, err := gatewayRegistry(ctx, cfg, gw)
	if err != nil {
		return nil, nil, err
	}
	return reg, closeFn, nil
}
