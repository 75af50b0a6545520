package config

import (
	"errors"
	"testing"
)

// validConfig returns a configuration that passes every validation
// section, for tests to break one field at a time.
func validConfig() *Config {
	return &Config{
		Provider:           ProviderGemini,
		ModelName:          "gemini-2.5-flash",
		EmbedderModel:      "gemini-embedding-001",
		Host:               "0.0.0.0",
		Port:               8000,
		Environment:        EnvDev,
		TurnTimeoutSeconds: 25,
		RetrieveTopK:       5,
		PostgresHost:       "localhost",
		PostgresPort:       5432,
		PostgresUser:       "iecho",
		PostgresPassword:   "a_real_password",
		PostgresDBName:     "iecho",
		PostgresSSLMode:    "disable",
		FeedbackBackend:    FeedbackPostgres,
		LogLevel:           "info",
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() on nil = %v, want ErrConfigNil", err)
	}
}

func TestValidateMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if err := validConfig().Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{
			name:   "unknown provider",
			mutate: func(c *Config) { c.Provider = "openai" },
			want:   ErrInvalidProvider,
		},
		{
			name: "ollama without host",
			mutate: func(c *Config) {
				c.Provider = ProviderOllama
				c.OllamaHost = ""
			},
			want: ErrInvalidOllamaHost,
		},
		{
			name:   "empty model name",
			mutate: func(c *Config) { c.ModelName = "" },
			want:   ErrInvalidModelName,
		},
		{
			name:   "empty embedder model",
			mutate: func(c *Config) { c.EmbedderModel = "" },
			want:   ErrInvalidEmbedderModel,
		},
		{
			name:   "port zero",
			mutate: func(c *Config) { c.Port = 0 },
			want:   ErrInvalidPort,
		},
		{
			name:   "port above range",
			mutate: func(c *Config) { c.Port = 70000 },
			want:   ErrInvalidPort,
		},
		{
			name:   "unknown environment",
			mutate: func(c *Config) { c.Environment = "staging" },
			want:   ErrInvalidEnvironment,
		},
		{
			name:   "top_k zero",
			mutate: func(c *Config) { c.RetrieveTopK = 0 },
			want:   ErrInvalidTopK,
		},
		{
			name:   "top_k above range",
			mutate: func(c *Config) { c.RetrieveTopK = 11 },
			want:   ErrInvalidTopK,
		},
		{
			name:   "turn timeout zero",
			mutate: func(c *Config) { c.TurnTimeoutSeconds = 0 },
			want:   ErrInvalidTurnTimeout,
		},
		{
			name:   "turn timeout above range",
			mutate: func(c *Config) { c.TurnTimeoutSeconds = 600 },
			want:   ErrInvalidTurnTimeout,
		},
		{
			name:   "empty postgres host",
			mutate: func(c *Config) { c.PostgresHost = "" },
			want:   ErrInvalidPostgresHost,
		},
		{
			name:   "postgres port above range",
			mutate: func(c *Config) { c.PostgresPort = 70000 },
			want:   ErrInvalidPostgresPort,
		},
		{
			name:   "empty database name",
			mutate: func(c *Config) { c.PostgresDBName = "" },
			want:   ErrInvalidPostgresDBName,
		},
		{
			name:   "empty password",
			mutate: func(c *Config) { c.PostgresPassword = "" },
			want:   ErrInvalidPostgresPassword,
		},
		{
			name:   "short password",
			mutate: func(c *Config) { c.PostgresPassword = "short" },
			want:   ErrInvalidPostgresPassword,
		},
		{
			name:   "deprecated ssl mode",
			mutate: func(c *Config) { c.PostgresSSLMode = "prefer" },
			want:   ErrInvalidPostgresSSLMode,
		},
		{
			name:   "unknown feedback backend",
			mutate: func(c *Config) { c.FeedbackBackend = "redis" },
			want:   ErrInvalidFeedbackBackend,
		},
		{
			name: "file backend without directory",
			mutate: func(c *Config) {
				c.FeedbackBackend = FeedbackFile
				c.FeedbackDir = ""
			},
			want: ErrInvalidFeedbackBackend,
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "trace" },
			want:   ErrInvalidLogLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateFileBackendWithDir(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	cfg := validConfig()
	cfg.FeedbackBackend = FeedbackFile
	cfg.FeedbackDir = "/var/lib/iecho/feedback"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for file backend with directory", err)
	}
}
