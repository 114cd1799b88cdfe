package config

import (
	"fmt"
	"strings"
	"time"

	familiarErrors "github.com/harunnryd/familiar/internal/errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"
)

// DurationOrDefault parses a duration string and falls back to defaultValue when empty.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	return d, nil
}

// Validate checks the resolved configuration. Any failure here halts
// startup; nothing else in the runtime is allowed to.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Agent),
		validation.Field(&c.Model),
		validation.Field(&c.Desire),
		validation.Field(&c.Scheduler),
		validation.Field(&c.Memory),
		validation.Field(&c.Store),
		validation.Field(&c.Log),
		validation.Field(&c.Daemon),
	)
	if err == nil {
		err = validation.Validate(c.Model.ThinkingBudget, validation.By(c.checkThinkingBudget))
		if err != nil {
			err = fmt.Errorf("model.thinking_budget: %w", err)
		}
	}
	if err != nil {
		return familiarErrors.Config(err.Error())
	}
	return nil
}

// minAnthropicThinkingBudget is the smallest budget the Messages API accepts.
const minAnthropicThinkingBudget = 1024

// checkThinkingBudget keeps the budget inside agent.max_tokens, which every
// provider counts thinking against.
func (c *Config) checkThinkingBudget(value interface{}) error {
	budget, _ := value.(int)
	if budget == 0 {
		return nil
	}
	if c.Model.Provider == ProviderAnthropic && budget < minAnthropicThinkingBudget {
		return fmt.Errorf("must be at least %d for provider %s", minAnthropicThinkingBudget, c.Model.Provider)
	}
	if budget >= c.Agent.MaxTokens {
		return fmt.Errorf("must be below agent.max_tokens (%d)", c.Agent.MaxTokens)
	}
	return nil
}

func (a AgentConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.MaxIterations, validation.Required, validation.Min(1)),
		validation.Field(&a.MaxTokens, validation.Required, validation.Min(16)),
	)
}

func (m ModelConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Provider, validation.Required, validation.In(ProviderAnthropic, ProviderOpenAI, ProviderGemini)),
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.ToolsMode, validation.Required, validation.In(ToolsModeNative, ToolsModePrompt)),
		validation.Field(&m.APIKey, validation.By(m.requireKey)),
		validation.Field(&m.RequestTimeout, validation.By(isDuration)),
		validation.Field(&m.ThinkingBudget, validation.Min(0)),
	)
}

// requireKey allows an empty key only for self-hosted OpenAI-compatible
// endpoints (Ollama, vLLM) reached through a custom base URL.
func (m ModelConfig) requireKey(value interface{}) error {
	key, _ := value.(string)
	if strings.TrimSpace(key) != "" {
		return nil
	}
	if m.Provider == ProviderOpenAI && strings.TrimSpace(m.BaseURL) != "" {
		return nil
	}
	return fmt.Errorf("api key required for provider %s", m.Provider)
}

func (d DesireConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Threshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&d.CuriosityBoost, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&d.StatePath, validation.Required),
	)
}

func (s SchedulerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Schedule, validation.Required, validation.By(isSchedule)),
		validation.Field(&s.ShutdownTimeout, validation.By(isDuration)),
	)
}

func (m MemoryConfig) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.RecallK, validation.Min(0)),
		validation.Field(&m.StoreChars, validation.Min(0)),
	)
}

func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.DataDir, validation.Required),
		validation.Field(&s.LockTimeout, validation.By(isDuration)),
		validation.Field(&s.LockRetry, validation.By(isDuration)),
		validation.Field(&s.InboxSize, validation.Min(1)),
	)
}

func (d DaemonConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ShutdownTimeout, validation.By(isDuration)),
		validation.Field(&d.StartupShutdownTimeout, validation.By(isDuration)),
		validation.Field(&d.HealthCheckInterval, validation.By(isDuration)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "warning", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}

func isDuration(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := time.ParseDuration(s)
	return err
}

func isSchedule(value interface{}) error {
	s, _ := value.(string)
	if _, err := cron.ParseStandard(s); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s, err)
	}
	return nil
}
