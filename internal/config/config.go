// Package config provides configuration types and loading for mirrorhub.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Providers, Gateway, Approval, Store, Notion, Calendar, Notify, Location.
type Config struct {
	Paths     PathsConfig     `json:"paths"`
	Model     ModelConfig     `json:"model"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Approval  ApprovalConfig  `json:"approval"`
	Store     StoreConfig     `json:"store"`
	Notion    NotionConfig    `json:"notion"`
	Calendar  CalendarConfig  `json:"calendar"`
	Notify    NotifyConfig    `json:"notify"`
	Location  LocationConfig  `json:"location"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
}

// TimelineDBPath returns the sqlite file used for the confirmation journal.
func (p PathsConfig) TimelineDBPath() string {
	return filepath.Join(expandHome(p.DataDir), "timeline.db")
}

// ---------------------------------------------------------------------------
// Model – LLM behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups LLM model and agent-loop settings.
type ModelConfig struct {
	Name         string  `json:"name" envconfig:"MODEL"`
	MaxTokens    int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature  float64 `json:"temperature" envconfig:"TEMPERATURE"`
	MaxToolTurns int     `json:"maxToolTurns" envconfig:"MAX_TOOL_TURNS"`
	SystemPrompt string  `json:"systemPrompt,omitempty" envconfig:"SYSTEM_PROMPT"`
}

// ---------------------------------------------------------------------------
// Providers – LLM API keys & endpoints
// ---------------------------------------------------------------------------

// ProvidersConfig contains LLM provider configurations.
type ProvidersConfig struct {
	Gemini ProviderConfig `json:"gemini"`
	OpenAI ProviderConfig `json:"openai"`
}

// ProviderConfig contains settings for a single LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Gateway – confirmation HTTP service
// ---------------------------------------------------------------------------

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
	// URL is where tool servers and the approval CLI reach the gateway.
	URL       string `json:"url" envconfig:"URL"`
	AuthToken string `json:"authToken" envconfig:"AUTH_TOKEN"`
}

// Addr returns the listen address.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// ---------------------------------------------------------------------------
// Approval – confirmation polling and housekeeping
// ---------------------------------------------------------------------------

// ApprovalConfig controls how mutating tool calls wait for a human.
type ApprovalConfig struct {
	PollInterval      time.Duration `json:"pollInterval" envconfig:"POLL_INTERVAL"`
	Timeout           time.Duration `json:"timeout" envconfig:"TIMEOUT"`
	StaleAfter        time.Duration `json:"staleAfter" envconfig:"STALE_AFTER"`
	SweepInterval     time.Duration `json:"sweepInterval" envconfig:"SWEEP_INTERVAL"`
	PromptInterval    time.Duration `json:"promptInterval" envconfig:"PROMPT_INTERVAL"`
	JournalRetainDays int           `json:"journalRetainDays" envconfig:"JOURNAL_RETAIN_DAYS"`
}

// ---------------------------------------------------------------------------
// Store – where pending actions live
// ---------------------------------------------------------------------------

// StoreConfig selects the confirmation store backend.
type StoreConfig struct {
	Backend       string `json:"backend" envconfig:"BACKEND"` // "memory" or "redis"
	RedisAddr     string `json:"redisAddr" envconfig:"REDIS_ADDR"`
	RedisPassword string `json:"redisPassword" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `json:"redisDb" envconfig:"REDIS_DB"`
	RedisPrefix   string `json:"redisPrefix" envconfig:"REDIS_PREFIX"`
}

// ---------------------------------------------------------------------------
// Notion – tasks, habits, closet inventory
// ---------------------------------------------------------------------------

// NotionConfig holds the Notion integration token and database ids.
type NotionConfig struct {
	APIKey   string `json:"apiKey" envconfig:"API_KEY"`
	APIBase  string `json:"apiBase,omitempty" envconfig:"API_BASE"`
	TaskDB   string `json:"taskDb" envconfig:"TASK_DB"`
	HabitDB  string `json:"habitDb" envconfig:"HABIT_DB"`
	ClosetDB string `json:"closetDb" envconfig:"CLOSET_DB"`
}

// ---------------------------------------------------------------------------
// Calendar – Google Calendar
// ---------------------------------------------------------------------------

// CalendarConfig holds service-account credentials and calendar ids.
type CalendarConfig struct {
	CredentialsPath string   `json:"credentialsPath" envconfig:"CREDENTIALS_PATH"`
	CalendarIDs     []string `json:"calendarIds" envconfig:"CALENDAR_IDS"`
	EventCalendarID string   `json:"eventCalendarId" envconfig:"EVENT_CALENDAR_ID"`
}

// ---------------------------------------------------------------------------
// Notify – who hears about new pending actions
// ---------------------------------------------------------------------------

// NotifyConfig configures confirmation lifecycle fan-out.
type NotifyConfig struct {
	SlackWebhookURL string `json:"slackWebhookUrl" envconfig:"SLACK_WEBHOOK_URL"`
	KafkaBrokers    string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string `json:"kafkaTopic" envconfig:"KAFKA_TOPIC"`
}

// ---------------------------------------------------------------------------
// Location – user locale
// ---------------------------------------------------------------------------

// LocationConfig holds the user's timezone.
type LocationConfig struct {
	Timezone string `json:"timezone" envconfig:"TIMEZONE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir: "~/.mirrorhub",
		},
		Model: ModelConfig{
			Name:         "gemini/gemini-1.5-flash",
			MaxTokens:    4096,
			Temperature:  1.0,
			MaxToolTurns: 5,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1", // Secure default
			Port: 8000,
			URL:  "http://localhost:8000/api",
		},
		Approval: ApprovalConfig{
			PollInterval:      2 * time.Second,
			Timeout:           300 * time.Second,
			StaleAfter:        600 * time.Second,
			SweepInterval:     time.Minute,
			PromptInterval:    3 * time.Second,
			JournalRetainDays: 30,
		},
		Store: StoreConfig{
			Backend:     "memory",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "mirrorhub:confirm:",
		},
		Notion: NotionConfig{
			APIBase: "https://api.notion.com/v1",
		},
		Notify: NotifyConfig{
			KafkaTopic: "mirrorhub.confirmations",
		},
		Location: LocationConfig{
			Timezone: "America/New_York",
		},
	}
}

// Validate reports settings that would make the hub misbehave.
func (c *Config) Validate() error {
	if c.Approval.PollInterval <= 0 {
		return fmt.Errorf("approval.pollInterval must be positive")
	}
	if c.Approval.Timeout < c.Approval.PollInterval {
		return fmt.Errorf("approval.timeout (%s) shorter than pollInterval (%s)", c.Approval.Timeout, c.Approval.PollInterval)
	}
	if c.Model.MaxToolTurns <= 0 {
		return fmt.Errorf("model.maxToolTurns must be positive")
	}
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("store.backend %q: want memory or redis", c.Store.Backend)
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	return nil
}
