package config

import (
	"time"

	"road-severity/db"
	"road-severity/utils"

	"github.com/google/uuid"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig
	Model    ModelConfig
	Store    db.Options
	Session  SessionConfig
	Advisor  AdvisorConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	HistoryLimit int
}

type ModelConfig struct {
	Dir string
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
	Secure bool
	// Generated is set when Secret was not configured and a random one was used.
	Generated bool
}

type AdvisorConfig struct {
	APIKey string
	Model  string
}

// Enabled reports whether a Gemini key was configured.
func (a AdvisorConfig) Enabled() bool { return a.APIKey != "" }

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	secret := utils.GetEnv("SESSION_SECRET", "")
	generated := false
	if secret == "" {
		secret = uuid.NewString()
		generated = true
	}

	historyLimit := utils.GetEnvInt("HISTORY_LIMIT", 5)
	if historyLimit <= 0 {
		historyLimit = 5
	}

	return Config{
		Server: ServerConfig{
			Port:         utils.GetEnv("PORT", "5000"),
			HistoryLimit: historyLimit,
		},
		Model: ModelConfig{
			Dir: utils.GetEnv("MODEL_DIR", "model"),
		},
		Store: db.Options{
			Type:       utils.GetEnv("DB_TYPE", "sqlite"),
			SQLitePath: utils.GetEnv("SQLITE_PATH", "db/app.db"),
			FilePath:   utils.GetEnv("STORE_FILE", "db/store.json"),
			MongoURI:   utils.GetEnv("MONGO_URI", ""),
			MongoDB:    utils.GetEnv("MONGO_DB", "road_severity"),
		},
		Session: SessionConfig{
			Secret:    secret,
			TTL:       utils.GetEnvDuration("SESSION_TTL", 24*time.Hour),
			Secure:    utils.GetEnv("SESSION_SECURE", "") == "true",
			Generated: generated,
		},
		Advisor: AdvisorConfig{
			APIKey: utils.GetEnv("GEMINI_API_KEY", ""),
			Model:  utils.GetEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		LogLevel: utils.GetEnv("LOG_LEVEL", "info"),
	}
}
