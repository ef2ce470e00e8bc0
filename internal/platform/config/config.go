// Package config loads the server configuration from the environment.
// A .env file, if present, is loaded by main before Load is called.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parkpilot/server/internal/guidance"
	"github.com/parkpilot/server/internal/occupancy"
)

// Config holds all configuration for the server.
type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Auth       AuthConfig
	AI         AIConfig
	Simulation SimulationConfig
	Classifier occupancy.Thresholds
	Guidance   guidance.Config

	// Logging
	LogLevel  string
	LogFormat string
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxUploadSize  int64
	CORSOrigins    []string
	Profile        string // tuning profile, see optimization.ForName
}

// StorageConfig holds the SQLite configuration. An empty path disables
// persistence.
type StorageConfig struct {
	SQLitePath string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Password  string
	DB        int
	Addr      string
	KeyPrefix string
	// TTL of the mirrored lot snapshot
	SnapshotTTL time.Duration
}

// KafkaConfig holds the activity stream configuration.
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
}

// AuthConfig holds admin token configuration. An empty secret leaves the
// admin routes open, which main logs loudly.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	Issuer    string
}

// AIConfig holds the generative collaborator configuration.
type AIConfig struct {
	InsightProvider  string // "openai" or "anthropic"
	OpenAIKey        string
	OpenAIBaseURL    string
	OpenAIModel      string
	AnthropicKey     string
	AnthropicBaseURL string
	AnthropicModel   string
	RequestTimeout   time.Duration
	DailyBudgetUSD   float64
	MonthlyBudgetUSD float64
	InsightCacheTTL  time.Duration
	InsightInterval  time.Duration // 0 disables pushed insights

	SpeechEnabled bool
	SpeechVoice   string
	SpeechTimeout time.Duration
}

// SimulationConfig holds the lot and vehicle simulation parameters.
type SimulationConfig struct {
	LotID            string
	Layout           string // "seed" or "grid"
	GridRows         int
	GridCols         int
	PhysicsInterval  time.Duration
	GuidanceInterval time.Duration
	VehicleID        string
	StartX           float64
	StartY           float64
	StartHeading     float64

	// Vehicle dynamics, normalised units per second (squared)
	Acceleration float64
	Braking      float64
	Friction     float64
	MaxSpeed     float64
	MaxReverse   float64
	TurnRate     float64 // degrees per second
}

// Load loads configuration from environment variables.
func Load() *Config {
	thresholds := occupancy.DefaultThresholds()
	guide := guidance.DefaultConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			GinMode:        getEnv("GIN_MODE", "debug"),
			APIVersion:     getEnv("API_VERSION", "v1"),
			APIPrefix:      getEnv("API_PREFIX", "/api"),
			ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
			MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB
			MaxUploadSize:  getInt64Env("MAX_UPLOAD_SIZE", 10<<20),
			CORSOrigins:    getStringSliceEnv("CORS_ORIGINS", []string{"*"}),
			Profile:        getEnv("TUNING_PROFILE", "default"),
		},

		Storage: StorageConfig{
			SQLitePath: getEnv("SQLITE_PATH", "parkpilot.db"),
		},

		Redis: RedisConfig{
			Enabled:     getBoolEnv("REDIS_ENABLED", false),
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getIntEnv("REDIS_DB", 0),
			KeyPrefix:   getEnv("REDIS_KEY_PREFIX", "parkpilot"),
			SnapshotTTL: getDurationEnv("REDIS_SNAPSHOT_TTL", 10*time.Minute),
		},

		Kafka: KafkaConfig{
			Enabled:  getBoolEnv("KAFKA_ENABLED", false),
			Brokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:    getEnv("KAFKA_ACTIVITY_TOPIC", "parkpilot.activity"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "parkpilot-server"),
		},

		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getDurationEnv("JWT_TTL", 12*time.Hour),
			Issuer:    getEnv("JWT_ISSUER", "parkpilot"),
		},

		AI: AIConfig{
			InsightProvider:  getEnv("INSIGHT_PROVIDER", "openai"),
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:      getEnv("OPENAI_MODEL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
			AnthropicModel:   getEnv("ANTHROPIC_MODEL", ""),
			RequestTimeout:   getDurationEnv("AI_REQUEST_TIMEOUT", 20*time.Second),
			DailyBudgetUSD:   getFloatEnv("AI_DAILY_BUDGET_USD", 1),
			MonthlyBudgetUSD: getFloatEnv("AI_MONTHLY_BUDGET_USD", 20),
			InsightCacheTTL:  getDurationEnv("INSIGHT_CACHE_TTL", 30*time.Second),
			InsightInterval:  getDurationEnv("INSIGHT_INTERVAL", 0),
			SpeechEnabled:    getBoolEnv("SPEECH_ENABLED", true),
			SpeechVoice:      getEnv("SPEECH_VOICE", "alloy"),
			SpeechTimeout:    getDurationEnv("SPEECH_TIMEOUT", 6*time.Second),
		},

		Simulation: SimulationConfig{
			LotID:            getEnv("LOT_ID", "main"),
			Layout:           getEnv("LOT_LAYOUT", "seed"),
			GridRows:         getIntEnv("LOT_GRID_ROWS", 4),
			GridCols:         getIntEnv("LOT_GRID_COLS", 10),
			PhysicsInterval:  getDurationEnv("PHYSICS_INTERVAL", 20*time.Millisecond),
			GuidanceInterval: getDurationEnv("GUIDANCE_INTERVAL", time.Second),
			VehicleID:        getEnv("VEHICLE_ID", "car-1"),
			StartX:           getFloatEnv("VEHICLE_START_X", 5),
			StartY:           getFloatEnv("VEHICLE_START_Y", 50),
			StartHeading:     getFloatEnv("VEHICLE_START_HEADING", 0),
			Acceleration:     getFloatEnv("VEHICLE_ACCELERATION", 40),
			Braking:          getFloatEnv("VEHICLE_BRAKING", 60),
			Friction:         getFloatEnv("VEHICLE_FRICTION", 25),
			MaxSpeed:         getFloatEnv("VEHICLE_MAX_SPEED", 25),
			MaxReverse:       getFloatEnv("VEHICLE_MAX_REVERSE", 8),
			TurnRate:         getFloatEnv("VEHICLE_TURN_RATE", 120),
		},

		Classifier: occupancy.Thresholds{
			DarkLuma:       getFloatEnv("CLASSIFIER_DARK_LUMA", thresholds.DarkLuma),
			ChromaMean:     getFloatEnv("CLASSIFIER_CHROMA_MEAN", thresholds.ChromaMean),
			ChromaMax:      getFloatEnv("CLASSIFIER_CHROMA_MAX", thresholds.ChromaMax),
			Texture:        getFloatEnv("CLASSIFIER_TEXTURE", thresholds.Texture),
			ShadowFraction: getFloatEnv("CLASSIFIER_SHADOW_FRACTION", thresholds.ShadowFraction),
			SignageLuma:    getFloatEnv("CLASSIFIER_SIGNAGE_LUMA", thresholds.SignageLuma),
			SignageTexture: getFloatEnv("CLASSIFIER_SIGNAGE_TEXTURE", thresholds.SignageTexture),
			SignageChroma:  getFloatEnv("CLASSIFIER_SIGNAGE_CHROMA", thresholds.SignageChroma),
			BusyTexture:    getFloatEnv("CLASSIFIER_BUSY_TEXTURE", thresholds.BusyTexture),
			NearWhiteLuma:  getFloatEnv("CLASSIFIER_NEAR_WHITE_LUMA", thresholds.NearWhiteLuma),
			BoxWidth:       getFloatEnv("CLASSIFIER_BOX_WIDTH", thresholds.BoxWidth),
			BoxHeight:      getFloatEnv("CLASSIFIER_BOX_HEIGHT", thresholds.BoxHeight),
		},

		Guidance: guidance.Config{
			ArrivalDistance: getFloatEnv("GUIDANCE_ARRIVAL_DISTANCE", guide.ArrivalDistance),
			NearDistance:    getFloatEnv("GUIDANCE_NEAR_DISTANCE", guide.NearDistance),
			TurnAngle:       getFloatEnv("GUIDANCE_TURN_ANGLE", guide.TurnAngle),
			TurnAroundAngle: getFloatEnv("GUIDANCE_TURN_AROUND_ANGLE", guide.TurnAroundAngle),
			Cooldown:        getDurationEnv("GUIDANCE_COOLDOWN", guide.Cooldown),
			MoveThreshold:   getFloatEnv("GUIDANCE_MOVE_THRESHOLD", guide.MoveThreshold),
			MinGap:          getDurationEnv("GUIDANCE_MIN_GAP", guide.MinGap),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if err := c.Classifier.Validate(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if c.Simulation.PhysicsInterval <= 0 || c.Simulation.GuidanceInterval <= 0 {
		return fmt.Errorf("simulation: tick intervals must be positive")
	}
	if c.Simulation.Layout != "seed" && c.Simulation.Layout != "grid" {
		return fmt.Errorf("simulation: unknown layout %q", c.Simulation.Layout)
	}
	if c.Guidance.ArrivalDistance <= 0 {
		return fmt.Errorf("guidance: arrival distance must be positive")
	}
	if c.Guidance.NearDistance < c.Guidance.ArrivalDistance {
		return fmt.Errorf("guidance: near distance %v below arrival distance %v",
			c.Guidance.NearDistance, c.Guidance.ArrivalDistance)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka: enabled without brokers")
	}
	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getInt64Env gets an int64 environment variable with a fallback value
func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return fallback
}

// getFloatEnv gets a float environment variable with a fallback value
func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the server runs in gin release mode
func (c *Config) IsProduction() bool {
	return c.Server.GinMode == "release"
}

// GetServerAddress returns the listen address
func (c *Config) GetServerAddress() string {
	return ":" + c.Server.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.Server.APIPrefix + "/" + c.Server.APIVersion
}
