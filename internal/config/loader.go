package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for unset fields. It returns a joined error listing all validation
// failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Telephony
	if cfg.Telephony.SMSFrom == "" {
		cfg.Telephony.SMSFrom = DefaultSMSFrom
	}
	if cfg.Telephony.RecordingDir == "" {
		cfg.Telephony.RecordingDir = DefaultRecordingDir
	}
	if cfg.Telephony.APIKey == "" || cfg.Telephony.APISecret == "" {
		slog.Warn("telephony.api_key/api_secret not set; SMS sends will be rejected by the gateway")
	}
	if cfg.Telephony.ApplicationID == "" || cfg.Telephony.PrivateKeyPath == "" {
		slog.Warn("telephony.application_id/private_key_path not set; recording fetches will fail authentication")
	}
	if cfg.Telephony.PrivateKeyPath != "" {
		if _, err := os.Stat(cfg.Telephony.PrivateKeyPath); err != nil {
			errs = append(errs, fmt.Errorf("telephony.private_key_path: %w", err))
		}
	}

	// Transcriber
	if cfg.Transcriber.BaseURL == "" {
		errs = append(errs, errors.New("transcriber.base_url is required"))
	}
	if cfg.Transcriber.Timeout < 0 {
		errs = append(errs, fmt.Errorf("transcriber.timeout %s must not be negative", cfg.Transcriber.Timeout))
	}
	if cfg.Transcriber.Timeout == 0 {
		cfg.Transcriber.Timeout = DefaultTranscribeTimeout
	}

	// Rail
	if cfg.Rail.BaseURL == "" {
		errs = append(errs, errors.New("rail.base_url is required"))
	}
	if cfg.Rail.Timeout < 0 {
		errs = append(errs, fmt.Errorf("rail.timeout %s must not be negative", cfg.Rail.Timeout))
	}
	if cfg.Rail.Timeout == 0 {
		cfg.Rail.Timeout = DefaultRailTimeout
	}

	// Stations
	if cfg.Stations.File != "" {
		if _, err := os.Stat(cfg.Stations.File); err != nil {
			errs = append(errs, fmt.Errorf("stations.file: %w", err))
		}
	}

	// Sessions
	if cfg.Sessions.TTL < 0 {
		errs = append(errs, fmt.Errorf("sessions.ttl %s must not be negative", cfg.Sessions.TTL))
	}
	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = DefaultSessionTTL
	}
	if cfg.Sessions.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("sessions.sweep_interval %s must not be negative", cfg.Sessions.SweepInterval))
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = DefaultSweepInterval
	}

	// Call log
	if cfg.CallLog.PostgresDSN == "" {
		slog.Warn("calllog.postgres_dsn is empty; pipeline outcomes will not be persisted")
	}

	return errors.Join(errs...)
}
