// Package config loads service configuration from configs/config.yml and
// THERMO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"thermostat_runtime/internal/session"

	"github.com/spf13/viper"
)

const envPrefix = "THERMO"

// Config is the single explicit configuration handed to every component.
type Config struct {
	Port   string
	DBPath string
	Log    LogConfig

	Engine  session.Config
	Runtime RuntimeConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	Sinks   SinksConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// RuntimeConfig sizes the worker pools and background loops.
type RuntimeConfig struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
	SweepInterval  time.Duration
	StaleAfter     time.Duration
	PersistQueue   int
	RecoveryLimit  int
}

type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// WebhookConfig guards the ingress endpoint. An empty token disables the check.
type WebhookConfig struct {
	Token string
}

type SinksConfig struct {
	Workers   int
	QueueSize int
	MaxTries  uint
	Timeout   time.Duration

	StatusWebhookURL string
	IngestURL        string
	IngestAPIKey     string
	MQTT             MQTTConfig
}

// MQTTConfig enables the MQTT sink when Broker is set.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

var (
	errWorkers   = errors.New("config: runtime.workers must be > 0")
	errQueueSize = errors.New("config: queue sizes must be > 0")
	errTimeout   = errors.New("config: runtime durations must be > 0")
	errSigning   = errors.New("config: auth.signing_key must be set")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db.path", "app.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("engine.temp_change_threshold", session.DefaultTempChangeThreshold)
	v.SetDefault("engine.setpoint_change_threshold", session.DefaultSetpointChangeThreshold)
	v.SetDefault("engine.min_post_interval", session.DefaultMinPostInterval)
	v.SetDefault("engine.fan_tail", session.DefaultFanTail)
	v.SetDefault("engine.session_timeout", session.DefaultSessionTimeout)
	v.SetDefault("engine.sticky_window", session.DefaultStickyWindow)
	v.SetDefault("engine.min_runtime_seconds", session.DefaultMinRuntimeSeconds)
	v.SetDefault("engine.max_runtime_seconds", session.DefaultMaxRuntimeSeconds)
	v.SetDefault("engine.cool_on_delta", session.DefaultCoolOnDelta)
	v.SetDefault("engine.heat_on_delta", session.DefaultHeatOnDelta)
	v.SetDefault("engine.trend_delta", session.DefaultTrendDelta)

	v.SetDefault("runtime.workers", 8)
	v.SetDefault("runtime.queue_size", 256)
	v.SetDefault("runtime.process_timeout", 60*time.Second)
	v.SetDefault("runtime.sweep_interval", 5*time.Second)
	v.SetDefault("runtime.stale_after", 24*time.Hour)
	v.SetDefault("runtime.persist_queue", 1024)
	v.SetDefault("runtime.recovery_limit", 4)

	v.SetDefault("auth.signing_key", "change-me")
	v.SetDefault("auth.token_ttl", 12*time.Hour)

	v.SetDefault("webhook.token", "")

	v.SetDefault("sinks.workers", 4)
	v.SetDefault("sinks.queue_size", 1024)
	v.SetDefault("sinks.max_tries", 3)
	v.SetDefault("sinks.timeout", 10*time.Second)
	v.SetDefault("sinks.status_webhook_url", "")
	v.SetDefault("sinks.ingest_url", "")
	v.SetDefault("sinks.ingest_api_key", "")
	v.SetDefault("sinks.mqtt.broker", "")
	v.SetDefault("sinks.mqtt.client_id", "thermostat-runtime")
	v.SetDefault("sinks.mqtt.topic", "thermostat/events")
	v.SetDefault("sinks.mqtt.username", "")
	v.SetDefault("sinks.mqtt.password", "")
	v.SetDefault("sinks.mqtt.qos", 1)
}

// Load reads config.yml from dir (a missing file is not an error), applies
// environment overrides and validates the result.
func Load(dir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		Port:   v.GetString("port"),
		DBPath: v.GetString("db.path"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Engine: session.Config{
			TempChangeThreshold:     v.GetFloat64("engine.temp_change_threshold"),
			SetpointChangeThreshold: v.GetFloat64("engine.setpoint_change_threshold"),
			MinPostInterval:         v.GetDuration("engine.min_post_interval"),
			FanTail:                 v.GetDuration("engine.fan_tail"),
			SessionTimeout:          v.GetDuration("engine.session_timeout"),
			StickyWindow:            v.GetDuration("engine.sticky_window"),
			MinRuntimeSeconds:       v.GetInt64("engine.min_runtime_seconds"),
			MaxRuntimeSeconds:       v.GetInt64("engine.max_runtime_seconds"),
			CoolOnDelta:             v.GetFloat64("engine.cool_on_delta"),
			HeatOnDelta:             v.GetFloat64("engine.heat_on_delta"),
			TrendDelta:              v.GetFloat64("engine.trend_delta"),
		},
		Runtime: RuntimeConfig{
			Workers:        v.GetInt("runtime.workers"),
			QueueSize:      v.GetInt("runtime.queue_size"),
			ProcessTimeout: v.GetDuration("runtime.process_timeout"),
			SweepInterval:  v.GetDuration("runtime.sweep_interval"),
			StaleAfter:     v.GetDuration("runtime.stale_after"),
			PersistQueue:   v.GetInt("runtime.persist_queue"),
			RecoveryLimit:  v.GetInt("runtime.recovery_limit"),
		},
		Auth: AuthConfig{
			SigningKey: v.GetString("auth.signing_key"),
			TokenTTL:   v.GetDuration("auth.token_ttl"),
		},
		Webhook: WebhookConfig{Token: v.GetString("webhook.token")},
		Sinks: SinksConfig{
			Workers:          v.GetInt("sinks.workers"),
			QueueSize:        v.GetInt("sinks.queue_size"),
			MaxTries:         v.GetUint("sinks.max_tries"),
			Timeout:          v.GetDuration("sinks.timeout"),
			StatusWebhookURL: v.GetString("sinks.status_webhook_url"),
			IngestURL:        v.GetString("sinks.ingest_url"),
			IngestAPIKey:     v.GetString("sinks.ingest_api_key"),
			MQTT: MQTTConfig{
				Broker:   v.GetString("sinks.mqtt.broker"),
				ClientID: v.GetString("sinks.mqtt.client_id"),
				Topic:    v.GetString("sinks.mqtt.topic"),
				Username: v.GetString("sinks.mqtt.username"),
				Password: v.GetString("sinks.mqtt.password"),
				QoS:      byte(v.GetUint("sinks.mqtt.qos")),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the engine tunables and the pool sizing.
func (c Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Runtime.Workers <= 0 || c.Sinks.Workers <= 0 {
		return errWorkers
	}
	if c.Runtime.QueueSize <= 0 || c.Runtime.PersistQueue <= 0 || c.Sinks.QueueSize <= 0 {
		return errQueueSize
	}
	if c.Runtime.ProcessTimeout <= 0 || c.Runtime.SweepInterval <= 0 || c.Runtime.StaleAfter <= 0 {
		return errTimeout
	}
	if c.Auth.SigningKey == "" {
		return errSigning
	}
	return nil
}
