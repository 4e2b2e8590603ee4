package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	DBPath          string `yaml:"db_path"`
	ExportOutputDir string `yaml:"export_output_dir"`

	CatalogContextLimit int `yaml:"catalog_context_limit"`
	BatchDelayMS        int `yaml:"batch_delay_ms"`

	BatchSchedule  string `yaml:"batch_schedule"`
	BatchInputDir  string `yaml:"batch_input_dir"`
	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	Timezone string         `yaml:"timezone"`
	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ExportOutputDir, "EXPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.CatalogContextLimit, "CATALOG_CONTEXT_LIMIT")
	envOverrideInt(&cfg.BatchDelayMS, "BATCH_DELAY_MS")
	envOverride(&cfg.BatchSchedule, "BATCH_SCHEDULE")
	envOverride(&cfg.BatchInputDir, "BATCH_INPUT_DIR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")

	// Defaults
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "gemini"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./funcaudit.db"
	}
	if cfg.ExportOutputDir == "" {
		cfg.ExportOutputDir = "./exports"
	}
	if cfg.CatalogContextLimit == 0 {
		cfg.CatalogContextLimit = 100
	}
	if cfg.BatchDelayMS == 0 {
		cfg.BatchDelayMS = 500
	}
	if cfg.BatchInputDir == "" {
		cfg.BatchInputDir = "./inbox"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	switch cfg.LLMProvider {
	case "gemini", "anthropic":
	default:
		log.Fatalf("llm_provider must be 'gemini' or 'anthropic', got '%s'", cfg.LLMProvider)
	}

	if cfg.CatalogContextLimit < 1 {
		log.Fatalf("invalid catalog_context_limit '%d': must be >= 1", cfg.CatalogContextLimit)
	}
	if cfg.BatchDelayMS < 0 {
		log.Fatalf("invalid batch_delay_ms '%d': must be >= 0", cfg.BatchDelayMS)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

// BatchDelay returns the pause inserted between batch items.
func (c Config) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
