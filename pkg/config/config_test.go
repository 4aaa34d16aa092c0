package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohenjo/connectors/pkg/connect"
)

func TestValidateRejectsMissingConnectorType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectorName = "orders-sink"
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateAcceptsMinimalValidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectorName = "orders-sink"
	cfg.ConnectorType = "table"
	require.NoError(t, cfg.Validate())
}

func TestToRegistryAppliesGlobalDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectorName = "orders-sink"
	cfg.ConnectorType = "table"
	cfg.BatchSize = 50
	cfg.FlushIntervalMs = 2000
	cfg.TopicMappings = []TopicMappingConfig{
		{
			Name:            "orders",
			SourceTopic:     "orders.events",
			DestinationRef:  "lake/orders",
			DestinationType: "table",
			SchemaFields: []FieldMappingConfig{
				{SourcePath: "id", Destination: "id", Type: "int64", Required: true},
			},
		},
	}

	reg, err := cfg.ToRegistry()
	require.NoError(t, err)
	m, ok := reg.LookupByTopic("orders.events")
	require.True(t, ok)
	assert.Equal(t, 50, m.BatchSize)
	assert.Equal(t, 2000, m.FlushIntervalMs)
}

func TestToRegistryThreadsWritePolicyAndAuxiliaryOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectorName = "orders-sink"
	cfg.ConnectorType = "table"
	cfg.TopicMappings = []TopicMappingConfig{
		{
			Name:                  "orders",
			SourceTopic:           "orders.events",
			DestinationRef:        "lake/orders",
			DestinationType:       "table",
			WritePolicy:           "overwrite",
			IncludeSourceMetadata: true,
			Auxiliary:             map[string]string{"distance": "Dot"},
			SchemaFields: []FieldMappingConfig{
				{SourcePath: "id", Destination: "id", Type: "int64", Required: true},
			},
		},
	}

	reg, err := cfg.ToRegistry()
	require.NoError(t, err)
	m, ok := reg.LookupByTopic("orders.events")
	require.True(t, ok)
	assert.Equal(t, connect.WriteOverwrite, m.EffectiveWritePolicy())
	assert.True(t, m.IncludeSourceMetadata)
	assert.Equal(t, "Dot", m.Auxiliary["distance"])
}

func TestToRegistryRejectsInvalidMapping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopicMappings = []TopicMappingConfig{
		{Name: "bad", SourceTopic: "t", DestinationRef: "", DestinationType: "table"},
	}
	_, err := cfg.ToRegistry()
	assert.Error(t, err)
}
