package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mirrorhub/mirrorhub/internal/agent"
	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/config"
	"github.com/mirrorhub/mirrorhub/internal/mirror"
	"github.com/mirrorhub/mirrorhub/internal/provider"
	"github.com/mirrorhub/mirrorhub/internal/tools"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// registryDeps are the process-specific pieces of a tool registry.
type registryDeps struct {
	Confirmer tools.Confirmer
	Outfits   tools.OutfitBackend
	Auditor   tools.Auditor
}

// buildRegistry registers the mirror tools for every backend cfg configures.
// Backends without credentials are left out and their tools are not offered.
func buildRegistry(ctx context.Context, cfg *config.Config, d registryDeps) (*tools.Registry, error) {
	clock, err := mirror.NewClock(cfg.Location.Timezone)
	if err != nil {
		return nil, err
	}

	deps := tools.MirrorDeps{
		Clock:     clock,
		Confirmer: d.Confirmer,
	}
	if d.Outfits != nil {
		deps.Outfits = d.Outfits
	}

	if key := strings.TrimSpace(cfg.Notion.APIKey); key != "" {
		notion := mirror.NewNotionClient(key, cfg.Notion.APIBase)
		if cfg.Notion.TaskDB != "" {
			deps.Tasks = mirror.NewTaskStore(notion, cfg.Notion.TaskDB, clock)
		}
		if cfg.Notion.HabitDB != "" {
			deps.Habits = mirror.NewHabitStore(notion, cfg.Notion.HabitDB)
		}
		if cfg.Notion.ClosetDB != "" {
			deps.Closet = mirror.NewClosetStore(notion, cfg.Notion.ClosetDB)
		}
	} else {
		slog.Info("Notion not configured, task, habit and closet tools disabled")
	}

	if cfg.Calendar.CredentialsPath != "" && len(cfg.Calendar.CalendarIDs) > 0 {
		cal, err := mirror.NewCalendarService(ctx, cfg.Calendar.CredentialsPath,
			cfg.Calendar.CalendarIDs, cfg.Calendar.EventCalendarID, clock)
		if err != nil {
			return nil, fmt.Errorf("calendar: %w", err)
		}
		deps.Calendar = cal
	} else {
		slog.Info("Google Calendar not configured, calendar tools disabled")
	}

	reg := tools.NewRegistry()
	if d.Auditor != nil {
		reg.SetAuditor(d.Auditor)
	}
	if err := tools.RegisterMirrorTools(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}

// newLoop builds an agent loop from the model settings in cfg.
func newLoop(cfg *config.Config, dispatcher agent.Dispatcher, thoughts agent.ThoughtSink) (*agent.Loop, error) {
	prov, err := provider.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	return agent.NewLoop(agent.LoopOptions{
		Provider:     prov,
		Tools:        dispatcher,
		Model:        cfg.Model.Name,
		MaxTokens:    cfg.Model.MaxTokens,
		Temperature:  cfg.Model.Temperature,
		MaxToolTurns: cfg.Model.MaxToolTurns,
		SystemPrompt: cfg.Model.SystemPrompt,
		Thoughts:     thoughts,
	}), nil
}

// openStore returns the configured confirmation store and a function that
// releases it.
func openStore(ctx context.Context, cfg *config.Config, opts ...approval.Option) (approval.Store, func(), error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "memory":
		return approval.NewMemoryStore(opts...), func() {}, nil
	case "redis":
		rdb, err := approval.DialRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		store := approval.NewRedisStore(rdb, cfg.Store.RedisPrefix, opts...)
		return store, func() { _ = store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func dataDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.TimelineDBPath())
}
