package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Load reads configuration the way the teacher's LoadConfiguration
// does: viper defaults, a config file search path, and
// CONNECTOR_-prefixed environment variable overrides, unmarshalled
// into Config. Unlike the teacher, a detected file change is never
// applied to a running process — per spec.md §5 Non-goals (no dynamic
// reconfiguration), the file watch's change handler only logs a warning
// so an operator knows a restart is needed.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetEnvPrefix("CONNECTOR")
	v.AutomaticEnv()
	bindLiteralEnvOverrides(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("connector")
		v.AddConfigPath(".")
		v.AddConfigPath("./conf")
		v.AddConfigPath("/etc/connector")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
			log.Warn().Msg("no config file found, using defaults and environment only")
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	applyLogLevel(cfg.Logging.Level)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Warn().Str("file", e.Name).Msg("config file changed on disk; restart the process to apply it, changes are not hot-reloaded")
	})

	return cfg, nil
}

// bindLiteralEnvOverrides wires the literal (un-prefixed) environment
// variable names spec.md §6 names explicitly — DANUBE_SERVICE_URL,
// CONNECTOR_NAME, and the per-destination URL/credential pairs — on
// top of the CONNECTOR_-prefixed AutomaticEnv binding. These take
// precedence over the file exactly because BindEnv keys are consulted
// before a config file's own values in viper's resolution order. None
// of these map onto topic_mappings, so an operator can never introduce
// a new mapping through the environment, only override connection
// settings for mappings the file already declares.
func bindLiteralEnvOverrides(v *viper.Viper) {
	mustBind(v, "danube_service_url", "DANUBE_SERVICE_URL")
	mustBind(v, "connector_name", "CONNECTOR_NAME")

	mustBind(v, "destination.vector_url", "VECTOR_URL")
	mustBind(v, "destination.vector_api_key", "VECTOR_API_KEY")
	mustBind(v, "destination.mongo_uri", "MONGO_URI")
	mustBind(v, "destination.mqtt_broker_url", "MQTT_BROKER_URL")
	mustBind(v, "destination.username", "CONNECTOR_BUS_USERNAME")
	mustBind(v, "destination.password", "CONNECTOR_BUS_PASSWORD")
	mustBind(v, "destination.webhook_auth_secret", "WEBHOOK_AUTH_SECRET")

	// Blob-store credentials are read directly from their respective
	// SDK-native environment variables (AWS_*,
	// AZURE_STORAGE_*, GOOGLE_APPLICATION_CREDENTIALS) by the SDKs'
	// default credential chains rather than through Config at all — so
	// there is nothing to bind here for them; binding a second copy
	// into Config would just be an unused field.
}

func mustBind(v *viper.Viper, key, envVar string) {
	if err := v.BindEnv(key, envVar); err != nil {
		log.Warn().Str("key", key).Str("env", envVar).Err(err).Msg("failed to bind environment override")
	}
}

func applyDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("connector_name", d.ConnectorName)
	v.SetDefault("batch_size", d.BatchSize)
	v.SetDefault("flush_interval_ms", d.FlushIntervalMs)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unrecognized log level, defaulting to info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
