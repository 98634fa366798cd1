package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mirrorhub/mirrorhub/internal/secrets"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".mirrorhub"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
	// EnvPrefix namespaces every envconfig group.
	EnvPrefix = "MIRRORHUB"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("MIRRORHUB_CONFIG")); explicit != "" {
		return expandHome(explicit), nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("MIRRORHUB_HOME")); h != "" {
		return expandHome(h), nil
	}
	return os.UserHomeDir()
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// Load loads the configuration from file and environment variables.
// Priority: environment > env files > config file > defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Env files only fill variables the process does not already have.
	LoadEnvFileCandidates()

	path, err := ConfigPath()
	if err != nil {
		return cfg, nil // Use defaults if we can't find config path
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyLegacyEnv(cfg)

	groups := []struct {
		name string
		spec any
	}{
		{"PATHS", &cfg.Paths},
		{"MODEL", &cfg.Model},
		{"GEMINI", &cfg.Providers.Gemini},
		{"OPENAI", &cfg.Providers.OpenAI},
		{"GATEWAY", &cfg.Gateway},
		{"APPROVAL", &cfg.Approval},
		{"STORE", &cfg.Store},
		{"NOTION", &cfg.Notion},
		{"CALENDAR", &cfg.Calendar},
		{"NOTIFY", &cfg.Notify},
		{"LOCATION", &cfg.Location},
	}
	for _, g := range groups {
		if err := envconfig.Process(EnvPrefix+"_"+g.name, g.spec); err != nil {
			return nil, fmt.Errorf("env %s_%s: %w", EnvPrefix, g.name, err)
		}
	}

	cfg.Paths.DataDir = expandHome(cfg.Paths.DataDir)
	cfg.Calendar.CredentialsPath = expandHome(cfg.Calendar.CredentialsPath)
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Approval.StaleAfter <= 0 {
		cfg.Approval.StaleAfter = 2 * cfg.Approval.Timeout
	}
	applyKeyring(cfg)

	return cfg, nil
}

// applyKeyring fills credentials still empty after file and env from the OS
// keyring. MIRRORHUB_KEYRING=off skips the lookup.
func applyKeyring(cfg *Config) {
	if strings.EqualFold(strings.TrimSpace(os.Getenv(EnvPrefix+"_KEYRING")), "off") {
		return
	}
	fields := []struct {
		dst  *string
		name string
	}{
		{&cfg.Providers.Gemini.APIKey, secrets.GeminiAPIKey},
		{&cfg.Providers.OpenAI.APIKey, secrets.OpenAIAPIKey},
		{&cfg.Notion.APIKey, secrets.NotionAPIKey},
		{&cfg.Gateway.AuthToken, secrets.GatewayToken},
		{&cfg.Store.RedisPassword, secrets.RedisPass},
	}
	for _, f := range fields {
		if secrets.Fill(f.dst, f.name) {
			slog.Debug("Credential loaded from keyring", "name", f.name)
		}
	}
}

// applyLegacyEnv honours the unprefixed variable names of older
// deployments. They sit below the MIRRORHUB_* namespace in priority.
func applyLegacyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setSeconds := func(dst *time.Duration, key string) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("Ignoring invalid legacy setting", "key", key, "value", v)
			return
		}
		*dst = time.Duration(n) * time.Second
	}

	setString(&cfg.Gateway.URL, "INTERACTION_SERVICE_URL")
	setSeconds(&cfg.Approval.PollInterval, "CONFIRMATION_POLLING_INTERVAL")
	setSeconds(&cfg.Approval.Timeout, "CONFIRMATION_TIMEOUT_SECONDS")
	setString(&cfg.Providers.Gemini.APIKey, "GOOGLE_AI_STUDIO_API_KEY")
	setString(&cfg.Providers.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Notion.APIKey, "NOTION_API_KEY")
	setString(&cfg.Notion.TaskDB, "NOTION_TASK_DB_ID")
	setString(&cfg.Notion.HabitDB, "NOTION_HABIT_DB_ID")
	setString(&cfg.Notion.ClosetDB, "CLOSET_INVENTORY_DB_ID")
	setString(&cfg.Calendar.CredentialsPath, "GOOGLE_CALENDAR_CRED_PATH")
	setString(&cfg.Calendar.EventCalendarID, "GOOGLE_EVENT_CALENDAR_ID")
	if ids := strings.TrimSpace(os.Getenv("GOOGLE_CALENDAR_IDS")); ids != "" {
		cfg.Calendar.CalendarIDs = nil
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Calendar.CalendarIDs = append(cfg.Calendar.CalendarIDs, id)
			}
		}
	}
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
