package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"crm-value-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Scoring      Scoring            `json:"scoring"`
	Collector    CollectorConfig    `json:"collector"`
	Redis        RedisConfig        `json:"redis"`
	Messaging    MessagingConfig    `json:"messaging"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Metrics      MetricsConfig      `json:"metrics"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"LOG_FORMAT" default:"json"`
	OutputFile string `json:"output_file" env:"LOG_OUTPUT_FILE"`
}

// CollectorConfig selects where raw customer records come from.
type CollectorConfig struct {
	// Source is one of memory, file or redis
	Source      string        `json:"source" env:"COLLECTOR_SOURCE" default:"memory"`
	FixturePath string        `json:"fixture_path" env:"COLLECTOR_FIXTURE_PATH"`
	Timeout     time.Duration `json:"timeout" env:"COLLECTOR_TIMEOUT" default:"10s"`

	BreakerEnabled          bool          `json:"breaker_enabled" env:"COLLECTOR_CB_ENABLED" default:"true"`
	BreakerFailureThreshold int64         `json:"breaker_failure_threshold" env:"COLLECTOR_CB_FAILURE_THRESHOLD" default:"3"`
	BreakerSuccessThreshold int64         `json:"breaker_success_threshold" env:"COLLECTOR_CB_SUCCESS_THRESHOLD" default:"1"`
	BreakerTimeout          time.Duration `json:"breaker_timeout" env:"COLLECTOR_CB_TIMEOUT" default:"30s"`
}

// RedisConfig holds the connection settings of the Redis record store
type RedisConfig struct {
	Address     string        `json:"address" env:"REDIS_ADDRESS" default:"localhost:6379"`
	Password    string        `json:"-" env:"REDIS_PASSWORD"`
	Database    int           `json:"database" env:"REDIS_DATABASE" default:"0"`
	KeyPrefix   string        `json:"key_prefix" env:"REDIS_KEY_PREFIX" default:"valuescore"`
	DialTimeout time.Duration `json:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

// MessagingConfig holds AMQP publishing settings for finished analyses
type MessagingConfig struct {
	Enabled   bool   `json:"enabled" env:"AMQP_ENABLED" default:"false"`
	URL       string `json:"-" env:"AMQP_URL"`
	QueueName string `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"customer-value-results"`
}

// OrchestratorConfig holds settings of the analysis orchestrator
type OrchestratorConfig struct {
	BatchConcurrency int           `json:"batch_concurrency" env:"BATCH_CONCURRENCY" default:"8"`
	DefaultLookback  time.Duration `json:"default_lookback" env:"DEFAULT_LOOKBACK" default:"720h"`
}

// MetricsConfig toggles Prometheus instrumentation
type MetricsConfig struct {
	Enabled bool `json:"enabled" env:"METRICS_ENABLED" default:"true"`
}

// Load loads the configuration from .env files and environment variables
func Load(logger *logrus.Logger) (*Config, error) {
	loadEnvFile(logger)

	config := &Config{}

	if err := loadLoggingConfig(logger, &config.Logging); err != nil {
		return nil, errors.Wrap(err, "failed to load logging configuration")
	}

	if err := loadScoringConfig(logger, &config.Scoring); err != nil {
		return nil, errors.Wrap(err, "failed to load scoring configuration")
	}

	if err := loadCollectorConfig(logger, &config.Collector); err != nil {
		return nil, errors.Wrap(err, "failed to load collector configuration")
	}

	loadRedisConfig(&config.Redis)
	loadMessagingConfig(logger, &config.Messaging)
	loadOrchestratorConfig(logger, &config.Orchestrator)
	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", true)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile(logger *logrus.Logger) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr != nil {
			continue
		}
		absPath, _ := filepath.Abs(envFile)
		logger.WithField("path", absPath).Debug("Attempting to load .env file")
		if loadErr := godotenv.Load(envFile); loadErr == nil {
			loadedFrom = absPath
			break
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}
}

func loadLoggingConfig(logger *logrus.Logger, config *LoggingConfig) error {
	config.Level = getEnv("LOG_LEVEL", "info")
	if _, err := logrus.ParseLevel(config.Level); err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to 'info'", config.Level)
		config.Level = "info"
	}

	config.Format = getEnv("LOG_FORMAT", "json")
	if config.Format != "json" && config.Format != "text" {
		logger.Warn("Invalid LOG_FORMAT, must be 'json' or 'text', defaulting to 'json'")
		config.Format = "json"
	}

	config.OutputFile = getEnv("LOG_OUTPUT_FILE", "")
	return nil
}

func loadScoringConfig(logger *logrus.Logger, config *Scoring) error {
	def := DefaultScoring()

	config.Fusion = FusionWeights{
		Text:        getEnvFloat("FUSION_WEIGHT_TEXT", def.Fusion.Text),
		Voice:       getEnvFloat("FUSION_WEIGHT_VOICE", def.Fusion.Voice),
		Behavior:    getEnvFloat("FUSION_WEIGHT_BEHAVIOR", def.Fusion.Behavior),
		Interaction: getEnvFloat("FUSION_WEIGHT_INTERACTION", def.Fusion.Interaction),
	}
	config.Value = ValueWeights{
		Behavioral:    getEnvFloat("VALUE_WEIGHT_BEHAVIORAL", def.Value.Behavioral),
		Transactional: getEnvFloat("VALUE_WEIGHT_TRANSACTIONAL", def.Value.Transactional),
		Engagement:    getEnvFloat("VALUE_WEIGHT_ENGAGEMENT", def.Value.Engagement),
		Voice:         getEnvFloat("VALUE_WEIGHT_VOICE", def.Value.Voice),
	}
	config.Tiers = TierThresholds{
		VeryHigh: getEnvFloat("TIER_VERY_HIGH", def.Tiers.VeryHigh),
		High:     getEnvFloat("TIER_HIGH", def.Tiers.High),
		Medium:   getEnvFloat("TIER_MEDIUM", def.Tiers.Medium),
	}
	config.BehaviorTiers = BehaviorTiers{
		High:   getEnvFloat("BEHAVIOR_TIER_HIGH", def.BehaviorTiers.High),
		Medium: getEnvFloat("BEHAVIOR_TIER_MEDIUM", def.BehaviorTiers.Medium),
	}
	config.HighValueMinScore = getEnvFloat("HIGH_VALUE_MIN_SCORE", def.HighValueMinScore)
	config.FusionAgreement = def.FusionAgreement
	config.Tier1Cities = getEnvList("TIER1_CITIES", def.Tier1Cities)
	config.Tier2Cities = getEnvList("TIER2_CITIES", def.Tier2Cities)
	config.HighValueIndustries = getEnvList("HIGH_VALUE_INDUSTRIES", def.HighValueIndustries)

	logger.WithFields(logrus.Fields{
		"fusion_weights": config.Fusion,
		"value_weights":  config.Value,
		"min_score":      config.HighValueMinScore,
	}).Debug("Loaded scoring configuration")

	return nil
}

func loadCollectorConfig(logger *logrus.Logger, config *CollectorConfig) error {
	config.Source = strings.ToLower(getEnv("COLLECTOR_SOURCE", "memory"))
	switch config.Source {
	case "memory", "file", "redis":
	default:
		return errors.NewInvalidInput(fmt.Sprintf("unsupported COLLECTOR_SOURCE %q", config.Source))
	}

	config.FixturePath = getEnv("COLLECTOR_FIXTURE_PATH", "")
	if config.Source == "file" && config.FixturePath == "" {
		return errors.NewInvalidInput("COLLECTOR_SOURCE=file requires COLLECTOR_FIXTURE_PATH")
	}

	config.Timeout = getEnvDuration("COLLECTOR_TIMEOUT", 10*time.Second)
	config.BreakerEnabled = getEnvBool("COLLECTOR_CB_ENABLED", true)
	config.BreakerFailureThreshold = int64(getEnvInt("COLLECTOR_CB_FAILURE_THRESHOLD", 3))
	config.BreakerSuccessThreshold = int64(getEnvInt("COLLECTOR_CB_SUCCESS_THRESHOLD", 1))
	config.BreakerTimeout = getEnvDuration("COLLECTOR_CB_TIMEOUT", 30*time.Second)

	if config.BreakerFailureThreshold < 1 {
		logger.Warn("COLLECTOR_CB_FAILURE_THRESHOLD must be positive, using default: 3")
		config.BreakerFailureThreshold = 3
	}
	return nil
}

func loadRedisConfig(config *RedisConfig) {
	config.Address = getEnv("REDIS_ADDRESS", "localhost:6379")
	config.Password = getEnv("REDIS_PASSWORD", "")
	config.Database = getEnvInt("REDIS_DATABASE", 0)
	config.KeyPrefix = getEnv("REDIS_KEY_PREFIX", "valuescore")
	config.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
}

func loadMessagingConfig(logger *logrus.Logger, config *MessagingConfig) {
	config.URL = getEnv("AMQP_URL", "")
	config.QueueName = getEnv("AMQP_QUEUE_NAME", "customer-value-results")
	config.Enabled = getEnvBool("AMQP_ENABLED", config.URL != "")

	if config.Enabled && config.URL == "" {
		logger.Warn("AMQP_ENABLED is set but AMQP_URL is empty, disabling result publishing")
		config.Enabled = false
	}
}

func loadOrchestratorConfig(logger *logrus.Logger, config *OrchestratorConfig) {
	config.BatchConcurrency = getEnvInt("BATCH_CONCURRENCY", 8)
	if config.BatchConcurrency < 1 {
		logger.Warn("BATCH_CONCURRENCY must be positive, using default: 8")
		config.BatchConcurrency = 8
	}
	config.DefaultLookback = getEnvDuration("DEFAULT_LOOKBACK", 30*24*time.Hour)
}

// Validate checks cross-field constraints of the loaded configuration
func (c *Config) Validate() error {
	if err := c.Scoring.Validate(); err != nil {
		return err
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("cannot write to log file: %s", c.Logging.OutputFile))
		}
		f.Close()
	}

	if c.Collector.Timeout <= 0 {
		return errors.NewInvalidInput("COLLECTOR_TIMEOUT must be a positive duration")
	}

	return nil
}

// ApplyLogging applies the logging configuration to the logger
func (c *Config) ApplyLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	}

	if c.Logging.OutputFile != "" {
		f, err := os.OpenFile(c.Logging.OutputFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to open log file: %s", c.Logging.OutputFile))
		}
		logger.SetOutput(f)
	} else {
		// stdout carries the CLI's JSON output
		logger.SetOutput(os.Stderr)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvList reads a comma separated list, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
