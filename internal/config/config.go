// Package config provides configuration loading and structs for the QueryLinker server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Embedding providers. The provider is always chosen explicitly; a missing API key
// for a remote provider is a configuration error, never a silent switch to hash.
const (
	EmbeddingProviderHash   = "hash"
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderGemini = "gemini"
)

// Mail transports.
const (
	MailTransportSMTP = "smtp"
	MailTransportTest = "test"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug" env:"QL_DEBUG"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Search     SearchConfig     `yaml:"search"`
	Auth       AuthConfig       `yaml:"auth"`
	Mail       MailConfig       `yaml:"mail"`
	Connectors ConnectorsConfig `yaml:"connectors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host" env:"QL_HOST"`
	Port int    `yaml:"port" env:"QL_PORT"`
	// PublicURL is the externally visible UI address used to build password-reset links.
	PublicURL string `yaml:"public_url" env:"QL_PUBLIC_URL"`
}

// StorageConfig holds the user database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" env:"QL_DATABASE_PATH"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider      string        `yaml:"provider" env:"EMBEDDING_PROVIDER"`
	Model         string        `yaml:"model" env:"EMBEDDING_MODEL"`
	Dimensions    int           `yaml:"dimensions" env:"EMBEDDING_DIMENSIONS"`
	OpenAIAPIKey  string        `yaml:"openai_api_key" env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `yaml:"openai_base_url" env:"OPENAI_BASE_URL"`
	GeminiAPIKey  string        `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	RetryAttempts uint          `yaml:"retry_attempts" env:"EMBEDDING_RETRY_ATTEMPTS"`
	Timeout       time.Duration `yaml:"timeout" env:"EMBEDDING_TIMEOUT"`
}

// SearchConfig holds result limits for the search orchestrator.
type SearchConfig struct {
	DefaultMaxResults int           `yaml:"default_max_results"`
	MaxResults        int           `yaml:"max_results"`
	ConnectorTimeout  time.Duration `yaml:"connector_timeout" env:"QL_CONNECTOR_TIMEOUT"`
	// MaxConcurrent caps connectors queried at once; 0 queries all targets together.
	MaxConcurrent int `yaml:"max_concurrent" env:"QL_SEARCH_MAX_CONCURRENT"`
}

// AuthConfig holds Google sign-in and session token settings.
type AuthConfig struct {
	Google  GoogleOAuthConfig `yaml:"google"`
	Session SessionConfig     `yaml:"session"`
}

// GoogleOAuthConfig holds the OAuth client registration.
type GoogleOAuthConfig struct {
	ClientID     string   `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string   `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" env:"GOOGLE_REDIRECT_URI"`
	Scopes       []string `yaml:"scopes"`
}

// Configured reports whether every value needed for the code flow is present.
func (g *GoogleOAuthConfig) Configured() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

// SessionConfig holds JWT signing settings.
type SessionConfig struct {
	Secret string        `yaml:"secret" env:"QL_SESSION_SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"QL_SESSION_TTL"`
}

// MailConfig selects the transport used for transactional email.
type MailConfig struct {
	Transport string            `yaml:"transport" env:"MAIL_TRANSPORT"`
	From      string            `yaml:"from" env:"MAIL_FROM"`
	SMTP      SMTPConfig        `yaml:"smtp"`
	Test      TestMailboxConfig `yaml:"test"`
}

// SMTPConfig holds credentials for a real SMTP provider.
type SMTPConfig struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	// STARTTLS is used whenever the server offers it. UseTLS makes it mandatory;
	// UseSSL dials TLS directly (port 465).
	UseTLS bool `yaml:"use_tls" env:"SMTP_USE_TLS"`
	UseSSL bool `yaml:"use_ssl" env:"SMTP_USE_SSL"`
}

// TestMailboxConfig points at a disposable local mailbox (Mailpit, MailHog).
type TestMailboxConfig struct {
	Host       string `yaml:"host" env:"TEST_MAILBOX_HOST"`
	Port       int    `yaml:"port" env:"TEST_MAILBOX_PORT"`
	PreviewURL string `yaml:"preview_url" env:"TEST_MAILBOX_PREVIEW_URL"`
}

// ConnectorsConfig holds credentials for each searchable system.
type ConnectorsConfig struct {
	RequestsPerSecond float64          `yaml:"requests_per_second"`
	Jira              AtlassianConfig  `yaml:"jira" envPrefix:"JIRA_"`
	Confluence        AtlassianConfig  `yaml:"confluence" envPrefix:"CONFLUENCE_"`
	GitHub            GitHubConfig     `yaml:"github"`
	ServiceNow        ServiceNowConfig `yaml:"servicenow"`
	Slack             SlackConfig      `yaml:"slack"`
}

// AtlassianConfig is shared by Jira and Confluence Cloud (email + API token basic auth).
type AtlassianConfig struct {
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	Email    string `yaml:"email" env:"EMAIL"`
	APIToken string `yaml:"api_token" env:"API_TOKEN"`
}

// Enabled reports whether the connector has enough configuration to be registered.
func (a *AtlassianConfig) Enabled() bool {
	return a.BaseURL != "" && a.APIToken != ""
}

// GitHubConfig holds the GitHub token and optional org scope.
type GitHubConfig struct {
	Token   string `yaml:"token" env:"GITHUB_TOKEN"`
	Org     string `yaml:"org" env:"GITHUB_ORG"`
	BaseURL string `yaml:"base_url" env:"GITHUB_BASE_URL"`
}

// Enabled reports whether a token is configured.
func (g *GitHubConfig) Enabled() bool {
	return g.Token != ""
}

// ServiceNowConfig holds instance credentials.
type ServiceNowConfig struct {
	InstanceURL string `yaml:"instance_url" env:"SERVICENOW_INSTANCE_URL"`
	Username    string `yaml:"username" env:"SERVICENOW_USERNAME"`
	Password    string `yaml:"password" env:"SERVICENOW_PASSWORD"`
}

// Enabled reports whether the instance and credentials are configured.
func (s *ServiceNowConfig) Enabled() bool {
	return s.InstanceURL != "" && s.Username != ""
}

// SlackConfig holds a user token with search:read scope.
type SlackConfig struct {
	Token   string `yaml:"token" env:"SLACK_TOKEN"`
	BaseURL string `yaml:"base_url" env:"SLACK_BASE_URL"`
}

// Enabled reports whether a token is configured.
func (s *SlackConfig) Enabled() bool {
	return s.Token != ""
}

// Load reads the config file at path (when non-empty), loads a sibling .env file,
// applies environment overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := LoadDotEnv(configDir); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	return &cfg, nil
}

// LoadDotEnv loads dir/.env into the process environment if it exists.
// Variables already set in the environment win.
func LoadDotEnv(dir string) error {
	file := filepath.Join(dir, ".env")
	if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("failed to load %s: %w", file, err)
	}
	return nil
}

// Validate rejects unknown enum values and impossible numbers.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case EmbeddingProviderHash, EmbeddingProviderOpenAI, EmbeddingProviderGemini:
	default:
		return fmt.Errorf("unknown embedding provider %q (want hash, openai or gemini)", c.Embedding.Provider)
	}
	switch c.Mail.Transport {
	case MailTransportSMTP, MailTransportTest:
	default:
		return fmt.Errorf("unknown mail transport %q (want smtp or test)", c.Mail.Transport)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Search.DefaultMaxResults > c.Search.MaxResults {
		return fmt.Errorf("default_max_results (%d) exceeds max_results (%d)", c.Search.DefaultMaxResults, c.Search.MaxResults)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
