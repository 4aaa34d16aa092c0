package bus

import "time"

// Config configures the Kafka-backed stand-in for the Danube bus
// consumer/producer pair, grounded on the teacher's
// pkg/streams/kafka_stream.go setupConsumer and pkg/estuary/kafka.go
// newDataCollector.
type Config struct {
	Brokers           []string
	ConsumerGroup     string
	Username          string
	Password          string
	UseTLS            bool
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 3 * time.Second
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = "connectors-group"
	}
	return c
}
