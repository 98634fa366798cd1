package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mirrorhub/mirrorhub/internal/agent"
	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/bus"
	"github.com/mirrorhub/mirrorhub/internal/channels"
	"github.com/mirrorhub/mirrorhub/internal/gateway"
	"github.com/mirrorhub/mirrorhub/internal/scheduler"
	"github.com/mirrorhub/mirrorhub/internal/session"
	"github.com/mirrorhub/mirrorhub/internal/timeline"
	"github.com/spf13/cobra"
)

// sessionIdle is how long a chat session may sit unused before it is dropped.
const sessionIdle = 24 * time.Hour

var (
	gatewayWithAgent   bool
	gatewayInteractive bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the confirmation gateway",
	RunE:  runGateway,
}

func init() {
	gatewayCmd.Flags().BoolVar(&gatewayWithAgent, "with-agent", false, "Serve POST /chat backed by an in-process agent")
	gatewayCmd.Flags().BoolVar(&gatewayInteractive, "interactive", false, "Prompt y/n/skip for pending actions on this terminal")
}

func runGateway(cmd *cobra.Command, args []string) error {
	printHeader("🪞 mirrorhub Gateway")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeSvc, err := timeline.NewTimelineService(cfg.Paths.TimelineDBPath())
	if err != nil {
		return err
	}
	defer timeSvc.Close()
	if n, err := timeSvc.TimeoutLeftovers(ctx); err != nil {
		slog.Warn("Could not close out journal leftovers", "error", err)
	} else if n > 0 {
		slog.Info("Journal leftovers marked timeout", "count", n)
	}

	// Confirmation lifecycle fan-out.
	events := bus.NewEventBus(256)
	events.Subscribe("log", bus.LogHandler)
	events.Subscribe("timeline", timeSvc.HandleConfirmation)
	if cfg.Notify.SlackWebhookURL != "" {
		events.Subscribe("slack", channels.NewSlackNotifier(cfg.Notify.SlackWebhookURL).Handle)
		fmt.Println("Slack:     ✓ Notifying new pending actions")
	}
	if cfg.Notify.KafkaBrokers != "" {
		sink := bus.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		defer sink.Close()
		events.Subscribe("kafka", sink.Handle)
		fmt.Printf("Kafka:     ✓ Publishing to %s\n", cfg.Notify.KafkaTopic)
	}
	go func() {
		if err := events.Dispatch(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Event dispatch stopped", "error", err)
		}
	}()

	store, closeStore, err := openStore(ctx, cfg, approval.WithNotifier(events))
	if err != nil {
		return err
	}
	defer closeStore()
	fmt.Printf("Store:     %s\n", cfg.Store.Backend)

	sched := scheduler.New(scheduler.Config{LockDir: dataDir(cfg)}, timeSvc)
	jobs := []*scheduler.Job{
		gateway.SweepJob(store, cfg.Approval.StaleAfter, cfg.Approval.SweepInterval),
		gateway.PruneJob(timeSvc, cfg.Approval.JournalRetainDays),
	}

	opts := gateway.Options{
		Store:     store,
		AuthToken: cfg.Gateway.AuthToken,
		Thoughts:  gateway.NewThoughtRing(gateway.DefaultThoughtCapacity),
	}

	if gatewayWithAgent {
		reg, err := buildRegistry(ctx, cfg, registryDeps{
			Confirmer: approval.NewPoller(store, cfg.Approval.PollInterval, cfg.Approval.Timeout),
			Outfits:   timeSvc,
			Auditor:   timeSvc,
		})
		if err != nil {
			return err
		}
		ring := opts.Thoughts
		thoughts := agent.MultiThoughts(agent.LogThoughts{}, agent.ThoughtFunc(func(_ context.Context, text string) {
			ring.Add(text)
		}))
		loop, err := newLoop(cfg, reg, thoughts)
		if err != nil {
			return err
		}
		sessions := session.NewManager()
		opts.Agent = loop
		opts.Sessions = sessions
		jobs = append(jobs, gateway.SessionPruneJob(sessions, sessionIdle))
		fmt.Printf("Agent:     ✓ %d tools, model %s\n", len(reg.List()), cfg.Model.Name)
	}

	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	if gatewayInteractive {
		approver := approval.NewApprover(store, os.Stdin, os.Stdout, cfg.Approval.PromptInterval)
		go func() {
			if err := approver.Run(ctx); err != nil {
				slog.Error("Interactive approver stopped", "error", err)
			}
		}()
	}

	color.Green("Gateway:   http://%s", cfg.Gateway.Addr())
	return gateway.New(opts).ListenAndServe(ctx, cfg.Gateway.Addr())
}
