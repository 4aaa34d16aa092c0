package config

import (
	"fmt"

	"github.com/cohenjo/connectors/pkg/connect"
)

// Config is the root shape a connector process reads at startup,
// matching spec.md §6 and kept in the teacher's flat,
// json/yaml-tagged struct style (pkg/config/config.go's Config).
type Config struct {
	DanubeServiceURL string               `mapstructure:"danube_service_url"`
	ConnectorName    string               `mapstructure:"connector_name"`
	ConnectorType    string               `mapstructure:"connector_type"` // table, vector, document, mqtt, webhook
	BatchSize        int                  `mapstructure:"batch_size"`
	FlushIntervalMs  int                  `mapstructure:"flush_interval_ms"`
	Destination      DestinationConfig    `mapstructure:"destination"`
	TopicMappings    []TopicMappingConfig `mapstructure:"topic_mappings"`
	Logging          LoggingConfig        `mapstructure:"logging"`
	Metrics          MetricsConfig        `mapstructure:"metrics"`
}

// DestinationConfig carries every destination driver's connection
// settings; only the fields relevant to ConnectorType are read.
type DestinationConfig struct {
	// table (parquet lake)
	BlobProvider string `mapstructure:"blob_provider"` // object-store, azure-blob, gcs-like
	BlobBucket   string `mapstructure:"blob_bucket"`
	BlobPrefix   string `mapstructure:"blob_prefix"`

	// vector (qdrant-wire REST)
	VectorURL        string `mapstructure:"vector_url"`
	VectorAPIKey     string `mapstructure:"vector_api_key"`
	VectorCollection string `mapstructure:"vector_collection"`

	// document (mongo)
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`

	// mqtt source
	MQTTBrokerURL string   `mapstructure:"mqtt_broker_url"`
	MQTTClientID  string   `mapstructure:"mqtt_client_id"`
	MQTTTopics    []string `mapstructure:"mqtt_topics"`
	MQTTQoS       byte     `mapstructure:"mqtt_qos"`

	// webhook source
	WebhookListenAddr   string  `mapstructure:"webhook_listen_addr"`
	WebhookAuthMode     string  `mapstructure:"webhook_auth_mode"`
	WebhookAuthSecret   string  `mapstructure:"webhook_auth_secret"`
	WebhookMaxBodyBytes int64   `mapstructure:"webhook_max_body_bytes"`
	WebhookRateLimitRPS float64 `mapstructure:"webhook_rate_limit_rps"`
	WebhookTargetTopic  string  `mapstructure:"webhook_target_topic"`

	// kafka bus credentials, shared across connector types
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	UseTLS        bool     `mapstructure:"use_tls"`
}

// TopicMappingConfig is the file-shape counterpart of connect.Mapping.
type TopicMappingConfig struct {
	Name                  string               `mapstructure:"name"`
	SourceTopic           string               `mapstructure:"source_topic"`
	DestinationRef        string               `mapstructure:"destination_ref"`
	DestinationType       string               `mapstructure:"destination_type"`
	BatchSize             int                  `mapstructure:"batch_size"`
	FlushIntervalMs       int                  `mapstructure:"flush_interval_ms"`
	SchemaFields          []FieldMappingConfig `mapstructure:"schema_fields"`
	VectorDimension       int                  `mapstructure:"vector_dimension"`
	VectorFieldPath       string               `mapstructure:"vector_field_path"`
	WritePolicy           string               `mapstructure:"write_policy"`
	IncludeSourceMetadata bool                 `mapstructure:"include_source_metadata"`
	Auxiliary             map[string]string    `mapstructure:"auxiliary"`
}

type FieldMappingConfig struct {
	SourcePath  string `mapstructure:"source_path"`
	Destination string `mapstructure:"destination"`
	Type        string `mapstructure:"type"`
	Required    bool   `mapstructure:"required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig mirrors the teacher's DefaultConfig: conservative
// defaults a process can run with before any file/env override lands.
func DefaultConfig() *Config {
	return &Config{
		ConnectorName:   "connector",
		BatchSize:       100,
		FlushIntervalMs: 5000,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

// ToRegistry converts the file-shape topic mappings into a connect.Registry,
// applying the global batch_size/flush_interval_ms as per-mapping
// defaults wherever a mapping doesn't override them.
func (c *Config) ToRegistry() (*connect.Registry, error) {
	reg := connect.NewRegistry()
	for _, tm := range c.TopicMappings {
		m := &connect.Mapping{
			Name:                  tm.Name,
			SourceTopic:           tm.SourceTopic,
			DestinationRef:        tm.DestinationRef,
			DestinationType:       connect.DestinationKind(tm.DestinationType),
			BatchSize:             tm.BatchSize,
			FlushIntervalMs:       tm.FlushIntervalMs,
			VectorDimension:       tm.VectorDimension,
			VectorFieldPath:       tm.VectorFieldPath,
			WritePolicy:           connect.WritePolicy(tm.WritePolicy),
			IncludeSourceMetadata: tm.IncludeSourceMetadata,
			Auxiliary:             tm.Auxiliary,
		}
		if m.BatchSize == 0 {
			m.BatchSize = c.BatchSize
		}
		if m.FlushIntervalMs == 0 {
			m.FlushIntervalMs = c.FlushIntervalMs
		}
		for _, f := range tm.SchemaFields {
			m.SchemaFields = append(m.SchemaFields, connect.FieldMapping{
				SourcePath:  f.SourcePath,
				Destination: f.Destination,
				Type:        f.Type,
				Required:    f.Required,
			})
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("topic mapping %q: %w", tm.Name, err)
		}
		if err := reg.Add(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
