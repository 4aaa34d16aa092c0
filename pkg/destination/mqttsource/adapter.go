// Package mqttsource implements the source-direction broker ingress of
// spec.md §4.G: a paho.mqtt.golang client subscribing to configured
// topic patterns, routing inbound messages to a Mapping by wildcard
// match, transforming them into bus Records, and pushing them into a
// bounded connect.Queue for the runtime's Poll loop to drain and
// publish. Grounded on
// original_source/source-mqtt/src/connector.rs's subscribe/dispatch
// loop and its QoS-to-reliability coupling (SPEC_FULL.md §4).
package mqttsource

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/cohenjo/connectors/pkg/connect"
)

// TopicMapping associates one MQTT topic pattern (with +/# wildcards)
// with a Mapping. The adapter subscribes each pattern with its own
// handler and does not route through Router, so no first-match choice
// is made between overlapping patterns.
type TopicMapping struct {
	Pattern string
	Mapping *connect.Mapping
	QoS     byte
	// ReliableOverride, when non-nil, raises (never lowers) the
	// QoS-implied reliability tier, resolving the open question
	// SPEC_FULL.md §4 settles: a config override may only demand more
	// reliability than QoS implies, never less.
	ReliableOverride *bool
}

func (tm TopicMapping) reliable() bool {
	impliedReliable := tm.QoS >= 1
	if tm.ReliableOverride != nil && *tm.ReliableOverride {
		return true
	}
	return impliedReliable
}

// Config configures the broker connection, adapted from spec.md §6's
// broker source config block.
type Config struct {
	BrokerHost    string
	BrokerPort    int
	ClientID      string
	Username      string
	Password      string
	UseTLS        bool
	KeepAliveSecs int
	CleanSession  bool
	MaxPacketSize uint32
	TCPNoDelay    bool
	QueueCapacity int
}

// Transformer converts a raw MQTT payload plus its routed Mapping into
// a bus Record, implemented by pkg/transform.Engine's source-direction
// path.
type Transformer interface {
	TransformInbound(ctx context.Context, mapping *connect.Mapping, topic string, payload []byte) (connect.Record, error)
}

// Adapter implements connect.Ingress.
type Adapter struct {
	cfg         Config
	routes      []TopicMapping
	transformer Transformer
	producer    connect.Producer
	queue       *connect.Queue

	client mqtt.Client
}

func NewAdapter(cfg Config, routes []TopicMapping, transformer Transformer, producer connect.Producer) *Adapter {
	return &Adapter{
		cfg:         cfg,
		routes:      routes,
		transformer: transformer,
		producer:    producer,
		queue:       connect.NewQueue(cfg.QueueCapacity),
	}
}

// Start connects the MQTT client and subscribes to every configured
// pattern. Acks are handled manually (AutoAckDisabled) so the handler
// can withhold the broker ack for reliable-tier (QoS>=1) messages
// until the bus publish it depends on has actually landed.
func (a *Adapter) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", a.cfg.BrokerHost, a.cfg.BrokerPort)).
		SetClientID(a.cfg.ClientID).
		SetCleanSession(a.cfg.CleanSession).
		SetKeepAlive(time.Duration(a.cfg.KeepAliveSecs) * time.Second).
		SetAutoAckDisabled(true).
		SetConnectTimeout(10 * time.Second)

	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
		opts.SetPassword(a.cfg.Password)
	}

	a.client = mqtt.NewClient(opts)
	token := a.client.Connect()
	if !token.WaitTimeout(30*time.Second) || token.Error() != nil {
		if token.Error() != nil {
			return connect.NewFatalError("mqtt-source", "connect to broker", token.Error())
		}
		return connect.NewRetryableError("mqtt-source", "connect to broker timed out", nil)
	}

	for _, rt := range a.routes {
		pattern, qos := rt.Pattern, rt.QoS
		subToken := a.client.Subscribe(pattern, qos, a.handlerFor(rt))
		if !subToken.WaitTimeout(10*time.Second) || subToken.Error() != nil {
			return connect.NewFatalError("mqtt-source", fmt.Sprintf("subscribe to %s", pattern), subToken.Error())
		}
		log.Info().Str("pattern", pattern).Uint8("qos", qos).Msg("mqtt source subscribed")
	}
	return nil
}

// handlerFor binds the matched route so the message handler doesn't
// need to re-run wildcard matching per message; paho already dispatches
// by the subscribed filter.
func (a *Adapter) handlerFor(rt TopicMapping) mqtt.MessageHandler {
	route := rt
	return func(client mqtt.Client, msg mqtt.Message) {
		ctx := context.Background()
		rec, err := a.transformer.TransformInbound(ctx, route.Mapping, msg.Topic(), msg.Payload())
		if err != nil {
			log.Error().Err(err).Str("topic", msg.Topic()).Msg("mqtt message failed transformation, dropped")
			msg.Ack()
			return
		}

		if route.reliable() {
			// QoS >= 1 (or an override that raises it): wait for the bus
			// to durably accept the record before acking the broker, so a
			// crash between MQTT delivery and bus publish causes redelivery
			// rather than silent loss.
			if err := a.producer.PublishAck(ctx, route.Mapping.SourceTopic, nil, recordPayload(rec), nil); err != nil {
				log.Error().Err(err).Str("topic", msg.Topic()).Msg("reliable publish failed, broker will redeliver")
				return // do not ack; let the broker redeliver
			}
			msg.Ack()
			return
		}

		// QoS 0: best-effort, queued for the runtime's poll loop. When
		// the queue is full the message is logged, acked and dropped;
		// the broker event loop is not paused.
		if !a.queue.TryPush(rec) {
			log.Warn().Str("topic", msg.Topic()).Msg("source ingress queue full, dropping QoS0 message")
		}
		msg.Ack()
	}
}

func recordPayload(rec connect.Record) []byte {
	return rec.Value
}

func (a *Adapter) Poll(ctx context.Context, max int, timeout time.Duration) []connect.Record {
	return a.queue.Poll(ctx, max, timeout)
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.client != nil && a.client.IsConnected() {
		a.client.Disconnect(250)
	}
	return nil
}

var _ connect.Ingress = (*Adapter)(nil)
