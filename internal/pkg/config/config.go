package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jagawarga/jagawarga/internal/pkg/constants"
	"github.com/jagawarga/jagawarga/internal/pkg/models"
)

// Load reads configuration from an optional YAML file plus environment
// variables. Environment variables use underscores, e.g. BACKEND_BASE_URL
// overrides backend.base_url.
func Load(configPath string) (*models.Config, error) {
	v := viper.New()
	v.SetConfigName("agent")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// File is optional; environment alone is a valid configuration.
	}

	cfg := &models.Config{
		App: models.AppConfig{
			Name:        v.GetString("app.name"),
			Environment: v.GetString("app.environment"),
			Version:     v.GetString("app.version"),
		},
		Server: models.ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Backend: models.BackendConfig{
			BaseURL: v.GetString("backend.base_url"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Events: models.EventChannelConfig{
			URL:               v.GetString("events.url"),
			ReconnectAttempts: v.GetInt("events.reconnect_attempts"),
			RequestTimeout:    v.GetDuration("events.request_timeout"),
		},
		Inbox: models.InboxConfig{
			PollInterval: v.GetDuration("inbox.poll_interval"),
		},
		Location: models.LocationConfig{
			Mode:          v.GetString("location.mode"),
			Latitude:      v.GetFloat64("location.latitude"),
			Longitude:     v.GetFloat64("location.longitude"),
			JitterMeters:  v.GetFloat64("location.jitter_meters"),
			WatchInterval: v.GetDuration("location.watch_interval"),
		},
		Notify: models.NotifyConfig{
			Mode:       v.GetString("notify.mode"),
			WebhookURL: v.GetString("notify.webhook_url"),
			Timeout:    v.GetDuration("notify.timeout"),
		},
		Logger: models.LoggerConfig{
			Level: v.GetString("log.level"),
		},
		Session: models.SessionConfig{
			UserID:   v.GetString("session.user_id"),
			Username: v.GetString("session.username"),
			Token:    v.GetString("session.token"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "jagawarga-agent")
	v.SetDefault("app.environment", "local")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8420)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("backend.timeout", 10*time.Second)

	v.SetDefault("events.reconnect_attempts", constants.MaxReconnectAttempts)
	v.SetDefault("events.request_timeout", 5*time.Second)

	// The poll period is configurable; anything in the 3-5s band is fine.
	v.SetDefault("inbox.poll_interval", 5*time.Second)

	v.SetDefault("location.mode", "fixed")
	v.SetDefault("location.watch_interval", 15*time.Second)

	v.SetDefault("notify.mode", "log")
	v.SetDefault("notify.timeout", 5*time.Second)

	v.SetDefault("log.level", "info")
}

func validate(cfg *models.Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if cfg.Events.URL == "" {
		return fmt.Errorf("events.url is required")
	}
	if cfg.Session.UserID == "" {
		return fmt.Errorf("session.user_id is required")
	}
	if cfg.Inbox.PollInterval <= 0 {
		return fmt.Errorf("inbox.poll_interval must be positive")
	}
	return nil
}
