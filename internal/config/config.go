package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"productmatch/internal/categorize"
	"productmatch/internal/integrations/llm"
	"productmatch/internal/matching"
	"productmatch/internal/schedule"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

const (
	defaultBaseURL           = "https://api.groq.com/openai/v1"
	defaultModel             = "llama-3.1-8b-instant"
	defaultRequestsPerMinute = 30
)

type Config struct {
	LLMProvider          string   `yaml:"llm_provider"`
	LLMBaseURL           string   `yaml:"llm_base_url"`
	LLMModel             string   `yaml:"llm_model"`
	LLMMatchModel        string   `yaml:"llm_match_model"`
	LLMAPIKey            string   `yaml:"llm_api_key"`
	LLMMatchAPIKey       string   `yaml:"llm_match_api_key"`
	LLMBatchSize         int      `yaml:"llm_batch_size"`
	LLMMaxIterations     int      `yaml:"llm_max_iterations"`
	LLMRetryBackoffSecs  *int     `yaml:"llm_retry_backoff_seconds"`
	LLMRequestsPerMinute *int     `yaml:"llm_requests_per_minute"`
	LLMMatchThreshold    *float64 `yaml:"llm_match_threshold"`
	LLMCandidateLimit    int      `yaml:"llm_candidate_limit"`
	LLMGlossaryPath      string   `yaml:"llm_glossary_path"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	ProductFile     string `yaml:"product_file"`
	SampleFile      string `yaml:"sample_file"`
	CategorizedFile string `yaml:"categorized_file"`
	OutputFile      string `yaml:"output_file"`
	UsePrevious     bool   `yaml:"use_previous"`

	DBPath         string `yaml:"db_path"`
	RunSchedule    string `yaml:"run_schedule"`
	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`
	Timezone       string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// LoadConfig loads configuration for commands that call an oracle.
func LoadConfig() Config {
	return load(true)
}

// LoadStoreConfig loads configuration for commands that only read the local
// store, so no llm_api_key is required.
func LoadStoreConfig() Config {
	return load(false)
}

func load(requireAPIKey bool) Config {
	var cfg Config

	keysPath := "./config/keys.env"
	if envPath := os.Getenv("KEYS_ENV_PATH"); envPath != "" {
		keysPath = envPath
	}
	// Values already present in the environment win over keys.env.
	if err := godotenv.Load(keysPath); err == nil {
		log.Printf("Loaded credentials from %s", keysPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error parsing %s: %v", keysPath, err)
	}

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

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMBaseURL, "LLM_BASE_URL")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMMatchModel, "LLM_MATCH_MODEL")
	// API and API2 are the historical names of the two key slots.
	envOverride(&cfg.LLMAPIKey, "API")
	envOverride(&cfg.LLMAPIKey, "LLM_API_KEY")
	envOverride(&cfg.LLMMatchAPIKey, "API2")
	envOverride(&cfg.LLMMatchAPIKey, "LLM_MATCH_API_KEY")
	envOverrideInt(&cfg.LLMBatchSize, "LLM_BATCH_SIZE")
	envOverrideInt(&cfg.LLMMaxIterations, "LLM_MAX_ITERATIONS")
	envOverrideIntPtr(&cfg.LLMRetryBackoffSecs, "LLM_RETRY_BACKOFF_SECONDS")
	envOverrideIntPtr(&cfg.LLMRequestsPerMinute, "LLM_REQUESTS_PER_MINUTE")
	envOverrideFloatPtr(&cfg.LLMMatchThreshold, "LLM_MATCH_THRESHOLD")
	envOverrideInt(&cfg.LLMCandidateLimit, "LLM_CANDIDATE_LIMIT")
	envOverride(&cfg.LLMGlossaryPath, "LLM_GLOSSARY_PATH")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.ProductFile, "PRODUCT_FILE")
	envOverride(&cfg.SampleFile, "SAMPLE_FILE")
	envOverride(&cfg.CategorizedFile, "CATEGORIZED_FILE")
	envOverride(&cfg.OutputFile, "OUTPUT_FILE")
	envOverrideBool(&cfg.UsePrevious, "USE_PREVIOUS")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideAllowEmpty(&cfg.RunSchedule, "RUN_SCHEDULE")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = llm.ProviderOpenAI
	}
	if cfg.LLMProvider == llm.ProviderOpenAI && cfg.LLMBaseURL == "" {
		cfg.LLMBaseURL = defaultBaseURL
	}
	if cfg.LLMProvider == llm.ProviderOpenAI && cfg.LLMModel == "" {
		cfg.LLMModel = defaultModel
	}
	if cfg.LLMMatchModel == "" {
		cfg.LLMMatchModel = cfg.LLMModel
	}
	if cfg.LLMMatchAPIKey == "" {
		cfg.LLMMatchAPIKey = cfg.LLMAPIKey
	}
	if cfg.LLMBatchSize == 0 {
		cfg.LLMBatchSize = categorize.DefaultBatchSize
	}
	if cfg.LLMMaxIterations == 0 {
		cfg.LLMMaxIterations = categorize.DefaultMaxIterations
	}
	// Unset and explicit 0 differ for backoff, rpm and threshold.
	if cfg.LLMRetryBackoffSecs == nil {
		backoff := int(categorize.DefaultBackoff / time.Second)
		cfg.LLMRetryBackoffSecs = &backoff
	}
	if cfg.LLMRequestsPerMinute == nil {
		rpm := defaultRequestsPerMinute
		cfg.LLMRequestsPerMinute = &rpm
	}
	if cfg.LLMMatchThreshold == nil {
		threshold := matching.DefaultThreshold
		cfg.LLMMatchThreshold = &threshold
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.CategorizedFile == "" {
		cfg.CategorizedFile = "./categorized_products.xlsx"
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = "./processed_output.xlsx"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./productmatch.db"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	switch cfg.LLMProvider {
	case llm.ProviderOpenAI, llm.ProviderAnthropic:
	default:
		log.Fatalf("llm_provider must be '%s' or '%s', got '%s'", llm.ProviderOpenAI, llm.ProviderAnthropic, cfg.LLMProvider)
	}
	if requireAPIKey && strings.TrimSpace(cfg.LLMAPIKey) == "" {
		log.Fatalf("Required config 'llm_api_key' is not set (via config.yaml, keys.env or env var API/LLM_API_KEY)")
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

	if cfg.LLMBatchSize < 1 {
		log.Fatalf("invalid llm_batch_size '%d': must be >= 1", cfg.LLMBatchSize)
	}
	if cfg.LLMMaxIterations < 1 {
		log.Fatalf("invalid llm_max_iterations '%d': must be >= 1", cfg.LLMMaxIterations)
	}
	if *cfg.LLMRetryBackoffSecs < 0 {
		log.Fatalf("invalid llm_retry_backoff_seconds '%d': must be >= 0", *cfg.LLMRetryBackoffSecs)
	}
	if *cfg.LLMRequestsPerMinute < 0 {
		log.Fatalf("invalid llm_requests_per_minute '%d': must be >= 0", *cfg.LLMRequestsPerMinute)
	}
	if *cfg.LLMMatchThreshold < 0 || *cfg.LLMMatchThreshold >= 100 {
		log.Fatalf("invalid llm_match_threshold '%f': must be between 0 and 100", *cfg.LLMMatchThreshold)
	}
	if cfg.LLMCandidateLimit < 0 {
		log.Fatalf("invalid llm_candidate_limit '%d': must be >= 0", cfg.LLMCandidateLimit)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.RunSchedule != "" {
		if _, err := schedule.Parse(cfg.RunSchedule); err != nil {
			log.Fatalf("invalid run_schedule '%s': %v", cfg.RunSchedule, err)
		}
	}
	if cfg.LLMGlossaryPath != "" {
		if _, err := categorize.LoadGlossary(cfg.LLMGlossaryPath); err != nil {
			log.Fatalf("invalid llm_glossary_path '%s': %v", cfg.LLMGlossaryPath, err)
		}
	}
	if (cfg.SlackBotToken == "") != (cfg.SlackChannelID == "") {
		log.Printf("WARNING: slack_bot_token and slack_channel_id must both be set; Slack notifications disabled.")
	}

	return cfg
}

// Primary returns the settings of the slot used for batch categorization
// and generated titles.
func (c Config) Primary() llm.Settings {
	return llm.Settings{
		Provider:          c.LLMProvider,
		BaseURL:           c.LLMBaseURL,
		Model:             c.LLMModel,
		APIKey:            c.LLMAPIKey,
		RequestsPerMinute: c.requestsPerMinute(),
	}
}

// Match returns the settings of the slot used for per-row category and
// product questions.
func (c Config) Match() llm.Settings {
	return llm.Settings{
		Provider:          c.LLMProvider,
		BaseURL:           c.LLMBaseURL,
		Model:             c.LLMMatchModel,
		APIKey:            c.LLMMatchAPIKey,
		RequestsPerMinute: c.requestsPerMinute(),
	}
}

func (c Config) requestsPerMinute() int {
	if c.LLMRequestsPerMinute == nil {
		return defaultRequestsPerMinute
	}
	return *c.LLMRequestsPerMinute
}

func (c Config) RetryBackoff() time.Duration {
	if c.LLMRetryBackoffSecs == nil {
		return categorize.DefaultBackoff
	}
	return time.Duration(*c.LLMRetryBackoffSecs) * time.Second
}

func (c Config) MatchThreshold() float64 {
	if c.LLMMatchThreshold == nil {
		return matching.DefaultThreshold
	}
	return *c.LLMMatchThreshold
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
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

func envOverrideIntPtr(field **int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = &parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloatPtr(field **float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = &parsed
	}
}

func (c Config) String() string {
	return fmt.Sprintf("provider=%s model=%s match_model=%s batch=%d max_iterations=%d threshold=%.0f db=%s",
		c.LLMProvider, c.LLMModel, c.LLMMatchModel, c.LLMBatchSize, c.LLMMaxIterations, c.MatchThreshold(), c.DBPath)
}
