package models

import "time"

// Config represents application configuration
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Backend  BackendConfig
	Events   EventChannelConfig
	Inbox    InboxConfig
	Location LocationConfig
	Notify   NotifyConfig
	Logger   LoggerConfig
	Session  SessionConfig
}

// AppConfig contains application-specific configuration
type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

// ServerConfig contains the local control API configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// BackendConfig points at the HTTP report/moderation backend.
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// EventChannelConfig configures the duplex notification channel.
type EventChannelConfig struct {
	URL               string
	ReconnectAttempts int
	RequestTimeout    time.Duration
}

// InboxConfig configures the case inbox polling loop.
type InboxConfig struct {
	PollInterval time.Duration
}

// LocationConfig configures the location provider. Mode "fixed" serves a
// configured coordinate, which is what a headless deployment uses.
type LocationConfig struct {
	Mode          string
	Latitude      float64
	Longitude     float64
	JitterMeters  float64
	WatchInterval time.Duration
}

// NotifyConfig selects the local notification sink.
type NotifyConfig struct {
	Mode       string // "log" or "webhook"
	WebhookURL string
	Timeout    time.Duration
}

// LoggerConfig contains logger configuration
type LoggerConfig struct {
	Level string
}

// SessionConfig carries the volunteer identity the agent runs for.
type SessionConfig struct {
	UserID   string
	Username string
	Token    string
}
