package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mirrorhub/mirrorhub/internal/approval"
	"github.com/mirrorhub/mirrorhub/internal/config"
	"github.com/mirrorhub/mirrorhub/internal/scheduler"
	"github.com/mirrorhub/mirrorhub/internal/timeline"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ mirrorhub Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, gateway and journal status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 mirrorhub Status")
		fmt.Printf("Version: %s\n", version)

		if path, err := config.ConfigPath(); err == nil {
			if _, err := os.Stat(path); err == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found, using defaults and environment")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:  ? Unable to load (%v)\n", err)
			return
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("Config:  ✗ %v\n", err)
		}

		if cfg.Providers.Gemini.APIKey != "" || cfg.Providers.OpenAI.APIKey != "" {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found")
		}
		check("Notion", cfg.Notion.APIKey != "")
		check("Calendar", cfg.Calendar.CredentialsPath != "" && len(cfg.Calendar.CalendarIDs) > 0)
		check("Slack", cfg.Notify.SlackWebhookURL != "")
		check("Kafka", cfg.Notify.KafkaBrokers != "")

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		gw := approval.NewClient(cfg.Gateway.URL, cfg.Gateway.AuthToken)
		if pending, err := gw.Pending(ctx); err != nil {
			fmt.Printf("Gateway: ✗ %s unreachable (%v)\n", cfg.Gateway.URL, err)
		} else {
			fmt.Printf("Gateway: ✓ %s, %d pending\n", cfg.Gateway.URL, len(pending))
		}

		timeSvc, err := timeline.NewTimelineService(cfg.Paths.TimelineDBPath())
		if err != nil {
			fmt.Printf("Journal: ✗ %v\n", err)
			return
		}
		defer timeSvc.Close()
		jobs, err := timeSvc.ListScheduledJobs()
		if err != nil {
			fmt.Printf("Jobs:    ✗ %v\n", err)
			return
		}
		for _, j := range jobs {
			fmt.Printf("Job:     %-28s %-16s %s\n", j.JobName, j.LastStatus, j.LastRunAt.Local().Format(time.RFC3339))
			if owner, err := scheduler.ReadLockOwner(filepath.Join(dataDir(cfg), j.JobName+".lock")); err == nil {
				fmt.Printf("         running in pid %d on %s since %s\n", owner.PID, owner.Host, owner.Since.Local().Format(time.Kitchen))
			}
		}
	},
}

func check(name string, ok bool) {
	if ok {
		fmt.Printf("%-8s ✓ Configured\n", name+":")
	} else {
		fmt.Printf("%-8s ✗ Not configured\n", name+":")
	}
}
