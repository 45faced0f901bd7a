/**
 * @description
 * This package loads the tracker's settings. Viper reads an optional .env file
 * from the given path and lets environment variables override it.
 *
 * @dependencies
 * - github.com/spf13/viper: Configuration loading and env binding.
 */

package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultServerPort             = "8090"
	defaultNPPAPIBaseURL          = "http://localhost:8080"
	defaultNPPAPITimeoutSeconds   = 30
	defaultSessionKeyPrefix       = "npp:tracker:session"
	defaultSessionTTLMinutes      = 120
	defaultTrackingExchange       = "npp.tracking"
	defaultWorkspaceIdleMinutes   = 60
	defaultWorkspaceSweepSchedule = "@every 5m"
	defaultCORSAllowedOrigins     = "http://localhost:3000,http://localhost:5173"
)

// Config holds all the configuration variables for the tracker.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	NPPAPIBaseURL          string `mapstructure:"NPP_API_BASE_URL"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	SessionKeyPrefix       string `mapstructure:"SESSION_KEY_PREFIX"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	TrackingExchange       string `mapstructure:"TRACKING_EXCHANGE"`
	WorkspaceSweepSchedule string `mapstructure:"WORKSPACE_SWEEP_SCHEDULE"`
	CORSAllowedOrigins     string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Numeric settings are parsed after Unmarshal so a bad value falls back to
	// its default instead of failing startup.
	NPPAPITimeoutSeconds int `mapstructure:"-"`
	SessionTTLMinutes    int `mapstructure:"-"`
	WorkspaceIdleMinutes int `mapstructure:"-"`
}

// LoadConfig reads configuration from the optional .env file in path and from
// environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("NPP_API_BASE_URL", defaultNPPAPIBaseURL)
	viper.SetDefault("NPP_API_TIMEOUT_SECONDS", defaultNPPAPITimeoutSeconds)
	viper.SetDefault("SESSION_KEY_PREFIX", defaultSessionKeyPrefix)
	viper.SetDefault("SESSION_TTL_MINUTES", defaultSessionTTLMinutes)
	viper.SetDefault("TRACKING_EXCHANGE", defaultTrackingExchange)
	viper.SetDefault("WORKSPACE_IDLE_MINUTES", defaultWorkspaceIdleMinutes)
	viper.SetDefault("WORKSPACE_SWEEP_SCHEDULE", defaultWorkspaceSweepSchedule)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", defaultCORSAllowedOrigins)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("NPP_API_BASE_URL", "NPP_API_BASE_URL", "NPP_API_URL")
	_ = viper.BindEnv("NPP_API_TIMEOUT_SECONDS")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("SESSION_KEY_PREFIX")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("TRACKING_EXCHANGE")
	_ = viper.BindEnv("WORKSPACE_IDLE_MINUTES")
	_ = viper.BindEnv("WORKSPACE_SWEEP_SCHEDULE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.NPPAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.NPPAPIBaseURL), "/")
	if config.NPPAPIBaseURL == "" {
		config.NPPAPIBaseURL = defaultNPPAPIBaseURL
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.SessionKeyPrefix = strings.TrimSpace(config.SessionKeyPrefix)
	if config.SessionKeyPrefix == "" {
		config.SessionKeyPrefix = defaultSessionKeyPrefix
	}
	config.TrackingExchange = strings.TrimSpace(config.TrackingExchange)
	if config.TrackingExchange == "" {
		config.TrackingExchange = defaultTrackingExchange
	}
	config.WorkspaceSweepSchedule = strings.TrimSpace(config.WorkspaceSweepSchedule)
	if config.WorkspaceSweepSchedule == "" {
		config.WorkspaceSweepSchedule = defaultWorkspaceSweepSchedule
	}

	config.NPPAPITimeoutSeconds = positiveInt("NPP_API_TIMEOUT_SECONDS", defaultNPPAPITimeoutSeconds)
	config.SessionTTLMinutes = positiveInt("SESSION_TTL_MINUTES", defaultSessionTTLMinutes)
	config.WorkspaceIdleMinutes = positiveInt("WORKSPACE_IDLE_MINUTES", defaultWorkspaceIdleMinutes)

	return
}

func positiveInt(key string, fallback int) int {
	raw := strings.TrimSpace(viper.GetString(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("level=warn component=config msg=\"invalid %s; using default\" value=%q default=%d err=%v", key, raw, fallback, err)
		return fallback
	}
	if value <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive %s; using default\" value=%d default=%d", key, value, fallback)
		return fallback
	}
	return value
}

// NPPAPITimeout bounds every non-streaming call to the NPP API.
func (c Config) NPPAPITimeout() time.Duration {
	return time.Duration(c.NPPAPITimeoutSeconds) * time.Second
}

// SessionTTL is how long a mirrored session survives without a write.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// WorkspaceIdle is how long a workspace may go unused before it is evicted.
func (c Config) WorkspaceIdle() time.Duration {
	return time.Duration(c.WorkspaceIdleMinutes) * time.Minute
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
