package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = "http://localhost:3000"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/querylinker.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = EmbeddingProviderHash
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case EmbeddingProviderOpenAI:
			cfg.Embedding.Dimensions = 1536
		case EmbeddingProviderGemini:
			cfg.Embedding.Dimensions = 768
		default:
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case EmbeddingProviderOpenAI:
			cfg.Embedding.Model = "text-embedding-3-small"
		case EmbeddingProviderGemini:
			cfg.Embedding.Model = "text-embedding-004"
		}
	}
	if cfg.Embedding.OpenAIBaseURL == "" {
		cfg.Embedding.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.RetryAttempts == 0 {
		cfg.Embedding.RetryAttempts = 1
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Search.DefaultMaxResults == 0 {
		cfg.Search.DefaultMaxResults = 10
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = 100
	}
	if cfg.Search.ConnectorTimeout == 0 {
		cfg.Search.ConnectorTimeout = 20 * time.Second
	}
	if len(cfg.Auth.Google.Scopes) == 0 {
		cfg.Auth.Google.Scopes = []string{"openid", "email", "profile"}
	}
	if cfg.Auth.Session.TTL == 0 {
		cfg.Auth.Session.TTL = 24 * time.Hour
	}
	if cfg.Mail.Transport == "" {
		cfg.Mail.Transport = MailTransportTest
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = "QueryLinker <no-reply@querylinker.local>"
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = 587
	}
	if cfg.Mail.Test.Host == "" {
		cfg.Mail.Test.Host = "localhost"
	}
	if cfg.Mail.Test.Port == 0 {
		cfg.Mail.Test.Port = 1025
	}
	if cfg.Mail.Test.PreviewURL == "" {
		cfg.Mail.Test.PreviewURL = "http://localhost:8025"
	}
	if cfg.Connectors.RequestsPerSecond == 0 {
		cfg.Connectors.RequestsPerSecond = 5
	}
	if cfg.Connectors.Slack.BaseURL == "" {
		cfg.Connectors.Slack.BaseURL = "https://slack.com/api"
	}
}
