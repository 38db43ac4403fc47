// Package config loads and merges the runtime's typed configuration
// surface: bounded-loop knobs, remote-server settings, and chat-provider
// credentials. Loading itself is a collaborator concern per the runtime
// design (§1/§6); the merge algorithm is core, pure, and grounded on
// agent.RunContext.Merge in the sibling agent SDK, generalized from a
// single override to a slice applied in order.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AgentConfig carries the bounded reason/act loop's knobs.
type AgentConfig struct {
	MaxSteps int `mapstructure:"maxSteps" yaml:"maxSteps"`
}

// ServerConfig carries the remote session server's knobs (C11).
type ServerConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	Token       string `mapstructure:"token" yaml:"token"`
	AutoApprove bool   `mapstructure:"autoApprove" yaml:"autoApprove"`
}

// LLMConfig carries the chat-completion provider's connection settings.
type LLMConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	BaseURL  string `mapstructure:"baseURL" yaml:"baseURL"`
	APIKey   string `mapstructure:"apiKey" yaml:"apiKey"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// Config is the typed structure the core accepts; loading it from files or
// the environment is the caller's concern (cmd/workshopd wires this).
type Config struct {
	BaseDir string       `mapstructure:"baseDir" yaml:"baseDir"`
	Agent   AgentConfig  `mapstructure:"agent" yaml:"agent"`
	Server  ServerConfig `mapstructure:"server" yaml:"server"`
	LLM     LLMConfig    `mapstructure:"llm" yaml:"llm"`
}

// Default returns the built-in baseline the runtime falls back to before
// any config file or environment override is applied.
func Default() Config {
	return Config{
		BaseDir: ".",
		Agent:   AgentConfig{MaxSteps: 12},
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8080},
		LLM:     LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
	}
}

// Merge applies overrides on top of base in order, last write wins, only
// for fields that are non-zero in the override. This is the pure algorithm
// S6 exercises: given defaults and a sequence of file/env overrides applied
// in order, the merged result reflects the last non-zero value seen per
// field.
func Merge(base Config, overrides ...Config) Config {
	merged := base
	for _, o := range overrides {
		merged = mergeOne(merged, o)
	}
	return merged
}

func mergeOne(base, override Config) Config {
	merged := base
	if strings.TrimSpace(override.BaseDir) != "" {
		merged.BaseDir = override.BaseDir
	}
	if override.Agent.MaxSteps > 0 {
		merged.Agent.MaxSteps = override.Agent.MaxSteps
	}
	if strings.TrimSpace(override.Server.Host) != "" {
		merged.Server.Host = override.Server.Host
	}
	if override.Server.Port > 0 {
		merged.Server.Port = override.Server.Port
	}
	if strings.TrimSpace(override.Server.Token) != "" {
		merged.Server.Token = override.Server.Token
	}
	if override.Server.AutoApprove {
		merged.Server.AutoApprove = override.Server.AutoApprove
	}
	if strings.TrimSpace(override.LLM.Provider) != "" {
		merged.LLM.Provider = override.LLM.Provider
	}
	if strings.TrimSpace(override.LLM.BaseURL) != "" {
		merged.LLM.BaseURL = override.LLM.BaseURL
	}
	if strings.TrimSpace(override.LLM.APIKey) != "" {
		merged.LLM.APIKey = override.LLM.APIKey
	}
	if strings.TrimSpace(override.LLM.Model) != "" {
		merged.LLM.Model = override.LLM.Model
	}
	return merged
}

// Load builds the effective Config from Default(), any YAML files named in
// paths (applied in order, so a later path wins over an earlier one), a
// ".env" file in the current directory if present, and environment
// variables with the WORKSHOP_ prefix (WORKSHOP_AGENT_MAXSTEPS,
// WORKSHOP_SERVER_TOKEN, WORKSHOP_LLM_APIKEY, and so on). Environment
// variables are read last and win over every file, matching S6's literal
// scenario (env maxSteps=7 beats a file value of 20).
func Load(paths []string) (Config, error) {
	_ = godotenv.Load() // .env is optional; a missing file is not an error.

	cfg := Default()
	for _, p := range paths {
		v := viper.New()
		v.SetConfigFile(p)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", p, err)
		}
		var fileCfg Config
		if err := v.Unmarshal(&fileCfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", p, err)
		}
		cfg = mergeOne(cfg, fileCfg)
	}

	env := viper.New()
	env.SetEnvPrefix("WORKSHOP")
	env.AutomaticEnv()
	env.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{
		"agent.maxSteps", "server.host", "server.port", "server.token",
		"server.autoApprove", "llm.provider", "llm.baseURL", "llm.apiKey", "llm.model", "baseDir",
	} {
		_ = env.BindEnv(key)
	}
	var envCfg Config
	if err := env.Unmarshal(&envCfg); err != nil {
		return Config{}, fmt.Errorf("config: decode environment: %w", err)
	}
	cfg = mergeOne(cfg, envCfg)

	return cfg, nil
}

// Redacted returns a copy of c with secret-bearing fields replaced by a
// fixed placeholder, safe to log or render at startup.
func (c Config) Redacted() Config {
	redacted := c
	if redacted.Server.Token != "" {
		redacted.Server.Token = "***"
	}
	if redacted.LLM.APIKey != "" {
		redacted.LLM.APIKey = "***"
	}
	return redacted
}

// DumpYAML renders c as YAML, used to log the effective startup
// configuration in a form an operator can read at a glance. Callers that
// intend to log this should call Redacted() first.
func (c Config) DumpYAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: marshal yaml: %w", err)
	}
	return string(out), nil
}
