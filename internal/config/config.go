package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/familiar/internal/pathutil"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Agent     AgentConfig     `koanf:"agent" yaml:"agent"`
	Model     ModelConfig     `koanf:"model" yaml:"model"`
	Desire    DesireConfig    `koanf:"desire" yaml:"desire"`
	Scheduler SchedulerConfig `koanf:"scheduler" yaml:"scheduler"`
	Memory    MemoryConfig    `koanf:"memory" yaml:"memory"`
	Store     StoreConfig     `koanf:"store" yaml:"store"`
	Tools     ToolsConfig     `koanf:"tools" yaml:"tools"`
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Daemon    DaemonConfig    `koanf:"daemon" yaml:"daemon"`
}

type AgentConfig struct {
	Name          string   `koanf:"name" yaml:"name"`
	CompanionName string   `koanf:"companion_name" yaml:"companion_name"`
	MaxIterations int      `koanf:"max_iterations" yaml:"max_iterations"`
	MaxTokens     int      `koanf:"max_tokens" yaml:"max_tokens"`
	Planning      bool     `koanf:"planning" yaml:"planning"`
	IdentityPaths []string `koanf:"identity_paths" yaml:"identity_paths"`
	SystemPrompt  string   `koanf:"system_prompt" yaml:"system_prompt"`
}

type ModelConfig struct {
	Provider       string `koanf:"provider" yaml:"provider"`
	Name           string `koanf:"name" yaml:"name"`
	APIKey         string `koanf:"api_key" yaml:"api_key"`
	BaseURL        string `koanf:"base_url" yaml:"base_url"`
	ToolsMode      string `koanf:"tools_mode" yaml:"tools_mode"`
	EmbeddingModel string `koanf:"embedding_model" yaml:"embedding_model"`
	ThinkingBudget int    `koanf:"thinking_budget" yaml:"thinking_budget"`
	RequestTimeout string `koanf:"request_timeout" yaml:"request_timeout"`
}

type DesireConfig struct {
	Enabled        bool    `koanf:"enabled" yaml:"enabled"`
	Threshold      float64 `koanf:"threshold" yaml:"threshold"`
	CuriosityBoost float64 `koanf:"curiosity_boost" yaml:"curiosity_boost"`
	StatePath      string  `koanf:"state_path" yaml:"state_path"`
}

type SchedulerConfig struct {
	Schedule        string `koanf:"schedule" yaml:"schedule"`
	ShutdownTimeout string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type MemoryConfig struct {
	Enabled    bool `koanf:"enabled" yaml:"enabled"`
	RecallK    int  `koanf:"recall_k" yaml:"recall_k"`
	StoreChars int  `koanf:"store_chars" yaml:"store_chars"`
}

type StoreConfig struct {
	DataDir                  string `koanf:"data_dir" yaml:"data_dir"`
	LockTimeout              string `koanf:"lock_timeout" yaml:"lock_timeout"`
	LockRetry                string `koanf:"lock_retry" yaml:"lock_retry"`
	InboxSize                int    `koanf:"inbox_size" yaml:"inbox_size"`
	TranscriptRotateMaxBytes int64  `koanf:"transcript_rotate_max_bytes" yaml:"transcript_rotate_max_bytes"`
}

type ToolsConfig struct {
	Web   WebToolConfig   `koanf:"web" yaml:"web"`
	Files FilesToolConfig `koanf:"files" yaml:"files"`
}

type WebToolConfig struct {
	SearchURL        string `koanf:"search_url" yaml:"search_url"`
	Timeout          string `koanf:"timeout" yaml:"timeout"`
	MaxContentLength int    `koanf:"max_content_length" yaml:"max_content_length"`
}

type FilesToolConfig struct {
	Workspace string   `koanf:"workspace" yaml:"workspace"`
	Denylist  []string `koanf:"denylist" yaml:"denylist"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout" yaml:"startup_shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval" yaml:"health_check_interval"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"

	ToolsModeNative = "native"
	ToolsModePrompt = "prompt"
)

const (
	DefaultAgentName          = "familiar"
	DefaultAgentMaxIterations = 50
	DefaultAgentMaxTokens     = 4096

	DefaultModelProvider       = ProviderAnthropic
	DefaultModelToolsMode      = ToolsModeNative
	DefaultModelRequestTimeout = "120s"
	DefaultAnthropicModel      = "claude-haiku-4-5-20251001"
	DefaultOpenAIModel         = "gpt-4o-mini"
	DefaultGeminiModel         = "gemini-2.5-flash"

	DefaultDesireThreshold      = 0.6
	DefaultDesireCuriosityBoost = 0.3

	DefaultSchedulerSchedule        = "@every 10s"
	DefaultSchedulerShutdownTimeout = "5s"

	DefaultMemoryRecallK    = 3
	DefaultMemoryStoreChars = 500

	DefaultStoreLockTimeout              = "5s"
	DefaultStoreLockRetry                = "100ms"
	DefaultStoreInboxSize                = 100
	DefaultStoreTranscriptRotateMaxBytes = int64(8 * 1024 * 1024)

	DefaultFilesWorkspace = "workspace"

	DefaultWebToolSearchURL        = "https://html.duckduckgo.com/html/"
	DefaultWebToolTimeout          = "15s"
	DefaultWebToolMaxContentLength = 5000

	DefaultDaemonShutdownTimeout        = "10s"
	DefaultDaemonStartupShutdownTimeout = "5s"
	DefaultDaemonHealthCheckInterval    = "30s"

	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// DefaultFileDenylist lists workspace entries the file tools refuse to touch.
var DefaultFileDenylist = []string{".env", "ME.md", ".git", "config.yaml", "desires.json"}

// DefaultModelFor returns the default model name for a provider.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return DefaultOpenAIModel
	case ProviderGemini:
		return DefaultGeminiModel
	default:
		return DefaultAnthropicModel
	}
}

func Load(cmd *cobra.Command) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	home, homeErr := pathutil.HomeDir()
	dataDir := filepath.Join(home, ".familiar")
	if homeErr != nil {
		dataDir = ".familiar"
	}

	defaults := map[string]interface{}{
		"agent.name":                        DefaultAgentName,
		"agent.max_iterations":              DefaultAgentMaxIterations,
		"agent.max_tokens":                  DefaultAgentMaxTokens,
		"agent.planning":                    false,
		"agent.identity_paths":              []string{"ME.md", filepath.Join(dataDir, "ME.md")},
		"model.provider":                    DefaultModelProvider,
		"model.tools_mode":                  DefaultModelToolsMode,
		"model.request_timeout":             DefaultModelRequestTimeout,
		"desire.enabled":                    true,
		"desire.threshold":                  DefaultDesireThreshold,
		"desire.curiosity_boost":            DefaultDesireCuriosityBoost,
		"desire.state_path":                 filepath.Join(dataDir, "desires.json"),
		"scheduler.schedule":                DefaultSchedulerSchedule,
		"scheduler.shutdown_timeout":        DefaultSchedulerShutdownTimeout,
		"memory.enabled":                    true,
		"memory.recall_k":                   DefaultMemoryRecallK,
		"memory.store_chars":                DefaultMemoryStoreChars,
		"store.data_dir":                    dataDir,
		"store.lock_timeout":                DefaultStoreLockTimeout,
		"store.lock_retry":                  DefaultStoreLockRetry,
		"store.inbox_size":                  DefaultStoreInboxSize,
		"store.transcript_rotate_max_bytes": DefaultStoreTranscriptRotateMaxBytes,
		"tools.web.search_url":              DefaultWebToolSearchURL,
		"tools.web.timeout":                 DefaultWebToolTimeout,
		"tools.web.max_content_length":      DefaultWebToolMaxContentLength,
		"tools.files.workspace":             DefaultFilesWorkspace,
		"tools.files.denylist":              DefaultFileDenylist,
		"daemon.shutdown_timeout":           DefaultDaemonShutdownTimeout,
		"daemon.startup_shutdown_timeout":   DefaultDaemonStartupShutdownTimeout,
		"daemon.health_check_interval":      DefaultDaemonHealthCheckInterval,
		"log.level":                         DefaultLogLevel,
		"log.format":                        DefaultLogFormat,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if homeErr == nil {
		globalPath := filepath.Join(dataDir, "config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	applyLegacyEnv(k)

	// FAMILIAR_MODEL__TOOLS_MODE -> model.tools_mode
	k.Load(env.Provider("FAMILIAR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "FAMILIAR_")), "__", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModelFor(cfg.Model.Provider)
	}

	if cfg.Model.APIKey == "" {
		switch cfg.Model.Provider {
		case ProviderOpenAI:
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderGemini:
			cfg.Model.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyLegacyEnv honours the flat variables older setups export
// (PLATFORM, MODEL, API_KEY, BASE_URL, TOOLS_MODE).
func applyLegacyEnv(k *koanf.Koanf) {
	legacy := map[string]string{
		"PLATFORM":   "model.provider",
		"MODEL":      "model.name",
		"API_KEY":    "model.api_key",
		"BASE_URL":   "model.base_url",
		"TOOLS_MODE": "model.tools_mode",
	}
	for envKey, cfgKey := range legacy {
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			k.Set(cfgKey, v)
		}
	}
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	fields := []*string{
		&cfg.Store.DataDir,
		&cfg.Desire.StatePath,
		&cfg.Tools.Files.Workspace,
	}
	for _, f := range fields {
		expanded, err := pathutil.Expand(*f)
		if err != nil {
			return err
		}
		if expanded != "" {
			*f = expanded
		}
	}

	return nil
}
