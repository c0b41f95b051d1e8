// ==============================================
// Configuration system, environment-driven
// ==============================================

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Google   GoogleConfig
	Chat     ChatConfig
	Presence PresenceConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Domain      string
	Debug       bool
}

type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

type HTTPConfig struct {
	Port           string
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     bool
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

type DatabaseConfig struct {
	MongoDB MongoConfig
	Redis   RedisConfig
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

type GoogleConfig struct {
	ClientID string
}

type ChatConfig struct {
	// TypingDebounce is the quiet period before a stopped-typing write.
	TypingDebounce time.Duration
	MaxMessageLen  int
}

type PresenceConfig struct {
	// HeartbeatTTL bounds how long a user stays online in Redis without
	// a new heartbeat. Presence falls back to the users collection when
	// Redis is disabled.
	HeartbeatTTL      time.Duration
	HeartbeatInterval time.Duration
}

// Load builds the configuration from environment variables with
// development defaults.
func Load() *Config {
	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "pairchat"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Domain:      getEnv("APP_DOMAIN", "localhost"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
		},
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Port:           getEnv("HTTP_PORT", "8080"),
				Host:           getEnv("HTTP_HOST", "0.0.0.0"),
				ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", "30s"),
				WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", "30s"),
				IdleTimeout:    getEnvAsDuration("HTTP_IDLE_TIMEOUT", "120s"),
				MaxHeaderBytes: getEnvAsInt("HTTP_MAX_HEADER_BYTES", 1<<20),
			},
			WebSocket: WebSocketConfig{
				ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
				WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
				CheckOrigin:     getEnvAsBool("WS_CHECK_ORIGIN", false),
				PingPeriod:      getEnvAsDuration("WS_PING_PERIOD", "54s"),
				PongWait:        getEnvAsDuration("WS_PONG_WAIT", "60s"),
				WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", "10s"),
				MaxMessageSize:  getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 65536),
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", "*"),
				AllowedMethods:   getEnvAsSlice("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
				AllowedHeaders:   getEnvAsSlice("CORS_ALLOWED_HEADERS", "Origin,Content-Type,Authorization"),
				AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
				MaxAge:           getEnvAsDuration("CORS_MAX_AGE", "12h"),
			},
			RateLimit: RateLimitConfig{
				Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
				RequestsPerSecond: getEnvAsFloat64("RATE_LIMIT_RPS", 10),
				Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
			},
		},
		Database: DatabaseConfig{
			MongoDB: MongoConfig{
				URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
				Database: getEnv("MONGODB_DATABASE", "pairchat"),
			},
			Redis: RedisConfig{
				Enabled:  getEnvAsBool("REDIS_ENABLED", false),
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
				PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
			},
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", "change-me-in-production"),
			Issuer:    getEnv("JWT_ISSUER", "pairchat"),
			ExpiresIn: getEnvAsDuration("JWT_EXPIRES_IN", "24h"),
		},
		Google: GoogleConfig{
			ClientID: getEnv("GOOGLE_CLIENT_ID", ""),
		},
		Chat: ChatConfig{
			TypingDebounce: getEnvAsDuration("CHAT_TYPING_DEBOUNCE", "1000ms"),
			MaxMessageLen:  getEnvAsInt("CHAT_MAX_MESSAGE_LEN", 4096),
		},
		Presence: PresenceConfig{
			HeartbeatTTL:      getEnvAsDuration("PRESENCE_HEARTBEAT_TTL", "90s"),
			HeartbeatInterval: getEnvAsDuration("PRESENCE_HEARTBEAT_INTERVAL", "30s"),
		},
	}
}

// Environment helpers

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
