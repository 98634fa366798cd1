package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/mirrorhub/mirrorhub/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"           _                     __         __\n" +
		"  __ _    (_)___ ___  ___  ____ / /  __ __ / /\n" +
		" /  ' \\  / // __// __// _ \\/ __// _ \\/ // // _ \\\n" +
		"/_/_/_/ /_//_/  /_/   \\___/_/  /_//_/\\_,_//_.__/\n"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "mirrorhub",
	Short: "mirrorhub - smart mirror assistant with human-confirmed actions",
	Long:  color.CyanString(logo) + "\nAn assistant hub whose mutating tools wait for a human yes or no.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env MIRRORHUB_LOG_LEVEL)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(toolsCmd)
}

// setupLogging installs a text handler on stderr. The flag wins over the env var.
func setupLogging(flagLevel string) error {
	raw := strings.TrimSpace(flagLevel)
	if raw == "" {
		raw = strings.TrimSpace(os.Getenv("MIRRORHUB_LOG_LEVEL"))
	}
	level, err := parseLevel(raw)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
