package bus

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

// KafkaProducer implements connect.Producer, adapted from the teacher's
// pkg/estuary/kafka.go newDataCollector/KafkaEndpoint. The teacher only
// ever needed a strong-consistency sync producer; source adapters here
// need both: PublishAck mirrors that sync, wait-for-all-replicas
// producer for reliable-tier deliveries (e.g. MQTT QoS >= 1), while
// Publish is a fire-and-forget async producer for QoS 0 traffic that
// must never block on broker acks.
type KafkaProducer struct {
	sync  sarama.SyncProducer
	async sarama.AsyncProducer
}

func NewKafkaProducer(cfg Config) (*KafkaProducer, error) {
	cfg = cfg.withDefaults()

	syncCfg := sarama.NewConfig()
	syncCfg.Producer.RequiredAcks = sarama.WaitForAll
	syncCfg.Producer.Retry.Max = 10
	syncCfg.Producer.Return.Successes = true
	applyAuth(syncCfg, cfg)

	asyncCfg := sarama.NewConfig()
	asyncCfg.Producer.RequiredAcks = sarama.WaitForLocal
	asyncCfg.Producer.Return.Successes = false
	asyncCfg.Producer.Return.Errors = true
	applyAuth(asyncCfg, cfg)

	syncProducer, err := sarama.NewSyncProducer(cfg.Brokers, syncCfg)
	if err != nil {
		return nil, fmt.Errorf("start kafka sync producer: %w", err)
	}
	asyncProducer, err := sarama.NewAsyncProducer(cfg.Brokers, asyncCfg)
	if err != nil {
		syncProducer.Close()
		return nil, fmt.Errorf("start kafka async producer: %w", err)
	}

	p := &KafkaProducer{sync: syncProducer, async: asyncProducer}
	go p.drainAsyncErrors()
	return p, nil
}

func applyAuth(scfg *sarama.Config, cfg Config) {
	if cfg.Username != "" && cfg.Password != "" {
		scfg.Net.SASL.Enable = true
		scfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		scfg.Net.SASL.User = cfg.Username
		scfg.Net.SASL.Password = cfg.Password
	}
	if cfg.UseTLS {
		scfg.Net.TLS.Enable = true
	}
}

func (p *KafkaProducer) drainAsyncErrors() {
	for err := range p.async.Errors() {
		if err != nil {
			log.Error().Err(err.Err).Str("topic", err.Msg.Topic).Msg("async publish failed, message dropped")
		}
	}
}

func toProducerMessage(topic string, key, value []byte, headers map[string][]byte) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{Topic: topic, Value: sarama.ByteEncoder(value)}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	return msg
}

// Publish implements connect.Producer as a fire-and-forget send: used
// for source traffic whose reliability tier doesn't require waiting on
// a broker ack before acknowledging upstream.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte, headers map[string][]byte) error {
	select {
	case p.async.Input() <- toProducerMessage(topic, key, value, headers):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAck implements connect.Producer by blocking until all
// in-sync replicas acknowledge the message, matching the teacher's
// newDataCollector consistency level.
func (p *KafkaProducer) PublishAck(ctx context.Context, topic string, key, value []byte, headers map[string][]byte) error {
	_, _, err := p.sync.SendMessage(toProducerMessage(topic, key, value, headers))
	if err != nil {
		return fmt.Errorf("publish with ack to topic %s: %w", topic, err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	if err := p.sync.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close kafka sync producer cleanly")
	}
	return p.async.Close()
}
