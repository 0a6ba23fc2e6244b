// Package config provides the configuration schema and loader for the trntxt
// voice notification server.
package config

import "time"

// LogLevel controls log verbosity for the trntxt server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for trntxt.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Telephony   TelephonyConfig   `yaml:"telephony"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Rail        RailConfig        `yaml:"rail"`
	Stations    StationsConfig    `yaml:"stations"`
	Sessions    SessionsConfig    `yaml:"sessions"`
	CallLog     CallLogConfig     `yaml:"calllog"`
}

// ServerConfig holds network and logging settings for the trntxt server.
type ServerConfig struct {
	// ListenAddr is the TCP address the webhook server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TelephonyConfig holds the telephony provider credentials and the SMS
// sending identity.
type TelephonyConfig struct {
	// APIKey and APISecret authenticate outbound SMS sends.
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`

	// ApplicationID is the voice application identifier embedded in the
	// per-fetch recording JWT.
	ApplicationID string `yaml:"application_id"`

	// PrivateKeyPath is the PEM-encoded RSA private key used to sign
	// recording-fetch tokens.
	PrivateKeyPath string `yaml:"private_key_path"`

	// SMSFrom is the sender identity on outbound texts.
	SMSFrom string `yaml:"sms_from"`

	// SMSBaseURL overrides the SMS gateway endpoint. Leave empty for the
	// provider default.
	SMSBaseURL string `yaml:"sms_base_url"`

	// RecordingDir is where fetched call recordings are written.
	RecordingDir string `yaml:"recording_dir"`
}

// TranscriberConfig points at the whisper-server instance used for batch
// transcription of call recordings.
type TranscriberConfig struct {
	// BaseURL is the whisper-server address (e.g., "http://localhost:8178").
	BaseURL string `yaml:"base_url"`

	// Language is the hint passed to the engine (e.g., "en"). Empty lets the
	// engine auto-detect.
	Language string `yaml:"language"`

	// Model selects a server-side model when the server hosts several.
	Model string `yaml:"model"`

	// Timeout bounds a single inference request. Default: 60s.
	Timeout time.Duration `yaml:"timeout"`
}

// RailConfig points at the live departure board source.
type RailConfig struct {
	// BaseURL is the departure API root.
	BaseURL string `yaml:"base_url"`

	// AccessToken authenticates departure board requests.
	AccessToken string `yaml:"access_token"`

	// Timeout bounds a single departure request. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`
}

// StationsConfig configures the station directory.
type StationsConfig struct {
	// File is an optional CSV file (code,name per row) replacing the
	// embedded station list.
	File string `yaml:"file"`
}

// SessionsConfig tunes the call session cache.
type SessionsConfig struct {
	// TTL is how long a call-start entry stays retrievable. Default: 60s.
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval is how often expired entries are removed. Default: 100s.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// CallLogConfig configures the optional Postgres pipeline audit log.
type CallLogConfig struct {
	// PostgresDSN enables the call log when non-empty.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default values applied by [Validate] when fields are unset.
const (
	DefaultSessionTTL    = 60 * time.Second
	DefaultSweepInterval = 100 * time.Second

	DefaultSMSFrom      = "trntxt"
	DefaultRecordingDir = "recordings"

	DefaultTranscribeTimeout = 60 * time.Second
	DefaultRailTimeout       = 15 * time.Second
)
