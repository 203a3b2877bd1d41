package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the cortex service.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. YAML file + environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithBindAddress("0.0.0.0:50051"),
//	    core.WithPlannerModel("phi3:3.8b"),
//	)
type Config struct {
	// Name identifies this service in logs and telemetry.
	Name string `yaml:"name"`

	Server     ServerConfig     `yaml:"server"`
	AI         AIConfig         `yaml:"ai"`
	Subsystems SubsystemsConfig `yaml:"subsystems"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains the inbound chat-stream server configuration.
type ServerConfig struct {
	BindAddress     string        `yaml:"bind_address"`
	MaxStreams      int           `yaml:"max_streams"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AIConfig contains LLM endpoint configuration for the planner and narrator.
// Provider selects the wire protocol: "ollama" (default) or "openai".
type AIConfig struct {
	Provider      string `yaml:"provider"`
	PlannerURL    string `yaml:"planner_url"`
	PlannerModel  string `yaml:"planner_model"`
	NarratorURL   string `yaml:"narrator_url"`
	NarratorModel string `yaml:"narrator_model"`
	APIKey        string `yaml:"api_key"`
}

// SubsystemsConfig contains base URLs for the downstream collaborators.
type SubsystemsConfig struct {
	RagURL    string `yaml:"rag_url"`
	MemoryURL string `yaml:"memory_url"`
	ClientURL string `yaml:"client_url"`
	OpsURL    string `yaml:"ops_url"`
}

// RedisConfig configures the optional Redis execution audit store.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Address     string        `yaml:"address"`
	HistorySize int           `yaml:"history_size"`
	TTL         time.Duration `yaml:"ttl"`
}

// LoggingConfig configures the production logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Option is a functional configuration option.
type Option func(*Config)

// WithName sets the service name.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithBindAddress sets the inbound bind address.
func WithBindAddress(addr string) Option {
	return func(c *Config) { c.Server.BindAddress = addr }
}

// WithMaxStreams bounds the number of concurrently served chat streams.
func WithMaxStreams(n int) Option {
	return func(c *Config) { c.Server.MaxStreams = n }
}

// WithPlannerURL sets the planner LLM endpoint.
func WithPlannerURL(url string) Option {
	return func(c *Config) { c.AI.PlannerURL = url }
}

// WithPlannerModel sets the planner model id.
func WithPlannerModel(model string) Option {
	return func(c *Config) { c.AI.PlannerModel = model }
}

// WithNarrator sets the narrator LLM endpoint and model.
func WithNarrator(url, model string) Option {
	return func(c *Config) {
		c.AI.NarratorURL = url
		c.AI.NarratorModel = model
	}
}

// WithSubsystems sets the downstream base URLs.
func WithSubsystems(ragURL, memoryURL, clientURL, opsURL string) Option {
	return func(c *Config) {
		c.Subsystems.RagURL = ragURL
		c.Subsystems.MemoryURL = memoryURL
		c.Subsystems.ClientURL = clientURL
		c.Subsystems.OpsURL = opsURL
	}
}

// WithRedis enables the Redis execution audit store.
func WithRedis(address string) Option {
	return func(c *Config) {
		c.Redis.Enabled = true
		c.Redis.Address = address
	}
}

// WithConfigFile loads YAML overrides from the given path.
// File values sit between defaults and later options.
func WithConfigFile(path string) Option {
	return func(c *Config) {
		_ = c.loadFile(path)
	}
}

// NewConfig builds a Config from defaults, environment and options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	cfg.applyEnvironment()

	if path := os.Getenv("CORTEX_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, &BrainError{Op: "config.NewConfig", Kind: "config", Message: fmt.Sprintf("config file %s: %v", path, err), Err: ErrInvalidConfiguration}
		}
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Name: "cortex",
		Server: ServerConfig{
			BindAddress:     "0.0.0.0:50051",
			MaxStreams:      16,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		AI: AIConfig{
			Provider:      "ollama",
			PlannerURL:    "http://127.0.0.1:11434/api/generate",
			PlannerModel:  "phi3:3.8b",
			NarratorURL:   "http://127.0.0.1:11434/api/generate",
			NarratorModel: "phi3:3.8b",
		},
		Subsystems: SubsystemsConfig{
			RagURL:    "http://localhost:50052",
			MemoryURL: "http://localhost:50053",
			ClientURL: "http://localhost:50054",
			OpsURL:    "http://localhost:50055",
		},
		Redis: RedisConfig{
			Enabled:     false,
			Address:     "localhost:6379",
			HistorySize: 100,
			TTL:         24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "",
		},
	}
}

func (c *Config) applyEnvironment() {
	setString(&c.Name, "CORTEX_NAME")
	setString(&c.Server.BindAddress, "CORTEX_BIND_ADDRESS")
	setInt(&c.Server.MaxStreams, "CORTEX_MAX_STREAMS")
	setString(&c.AI.Provider, "CORTEX_AI_PROVIDER")
	setString(&c.AI.PlannerURL, "CORTEX_PLANNER_URL")
	setString(&c.AI.PlannerModel, "CORTEX_PLANNER_MODEL")
	setString(&c.AI.NarratorURL, "CORTEX_NARRATOR_URL")
	setString(&c.AI.NarratorModel, "CORTEX_NARRATOR_MODEL")
	setString(&c.AI.APIKey, "CORTEX_AI_API_KEY")
	setString(&c.Subsystems.RagURL, "CORTEX_RAG_URL")
	setString(&c.Subsystems.MemoryURL, "CORTEX_MEMORY_URL")
	setString(&c.Subsystems.ClientURL, "CORTEX_CLIENT_URL")
	setString(&c.Subsystems.OpsURL, "CORTEX_OPS_URL")
	setBool(&c.Redis.Enabled, "CORTEX_REDIS_ENABLED")
	setString(&c.Redis.Address, "CORTEX_REDIS_ADDRESS")
	setInt(&c.Redis.HistorySize, "CORTEX_REDIS_HISTORY_SIZE")
	setString(&c.Logging.Level, "CORTEX_LOG_LEVEL")
	setString(&c.Logging.Format, "CORTEX_LOG_FORMAT")
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate checks required fields. Defaults make most misconfiguration
// impossible; this catches explicit blanking via file or env.
func (c *Config) Validate() error {
	if c.Server.BindAddress == "" {
		return &BrainError{Op: "config.Validate", Kind: "config", Message: "server.bind_address is required", Err: ErrMissingConfiguration}
	}
	if c.Server.MaxStreams < 1 {
		return &BrainError{Op: "config.Validate", Kind: "config", Message: "server.max_streams must be >= 1", Err: ErrInvalidConfiguration}
	}
	if c.AI.PlannerURL == "" || c.AI.NarratorURL == "" {
		return &BrainError{Op: "config.Validate", Kind: "config", Message: "ai.planner_url and ai.narrator_url are required", Err: ErrMissingConfiguration}
	}
	switch c.AI.Provider {
	case "ollama", "openai":
	default:
		return &BrainError{Op: "config.Validate", Kind: "config", Message: fmt.Sprintf("unknown ai.provider %q", c.AI.Provider), Err: ErrInvalidConfiguration}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
