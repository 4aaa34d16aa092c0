package config

import "fmt"

// Validate checks the parts of Config that apply regardless of
// connector_type, mirroring the teacher's validation.go ValidateConfig
// entry point but scoped to this module's much smaller config surface.
func (c *Config) Validate() error {
	if c.ConnectorName == "" {
		return fmt.Errorf("connector_name is required")
	}
	if c.ConnectorType == "" {
		return fmt.Errorf("connector_type is required")
	}
	validTypes := map[string]bool{"table": true, "vector": true, "document": true, "mqtt": true, "webhook": true}
	if !validTypes[c.ConnectorType] {
		return fmt.Errorf("unsupported connector_type: %s", c.ConnectorType)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.FlushIntervalMs <= 0 {
		return fmt.Errorf("flush_interval_ms must be positive")
	}
	for i, tm := range c.TopicMappings {
		if tm.Name == "" {
			return fmt.Errorf("topic_mappings[%d]: name is required", i)
		}
		if tm.SourceTopic == "" {
			return fmt.Errorf("topic_mappings[%d]: source_topic is required", i)
		}
	}
	return nil
}
