package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// BrightnessSetTopic is appended to the prefix for brightness commands
const BrightnessSetTopic = "brightness/set"

const publishTimeout = time.Second

// ClientOptions returns paho options for broker with a random client id
func ClientOptions(broker string) *mqtt.ClientOptions {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID("dimctl-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Str("broker", broker).Msg("mqtt: connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt: connection lost")
	}
	return opts
}

// Publisher publishes readings under a topic prefix
type Publisher struct {
	client mqtt.Client
	prefix string
}

// NewPublisher wraps a client that may not be connected yet
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
	}
}

// Connect connects the client to the broker
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		log.Debug().Msg("mqtt: disconnecting")
		p.client.Disconnect(250)
	}
}

// Topic returns the full topic for name
func (p *Publisher) Topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

// Sink returns a sink publishing retained values to <prefix>/<name>
func (p *Publisher) Sink(name string) Sink {
	return &topicSink{publisher: p, topic: p.Topic(name)}
}

// SubscribeBrightness delivers normalized levels (0.0-1.0) received on
// <prefix>/brightness/set to handler. Malformed or out of range payloads
// are dropped.
func (p *Publisher) SubscribeBrightness(handler func(level float64)) error {
	topic := p.Topic(BrightnessSetTopic)
	token := p.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		level, err := ParseLevel(msg.Payload())
		if err != nil {
			log.Warn().Err(err).Str("topic", msg.Topic()).Msg("mqtt: ignoring brightness command")
			return
		}
		handler(level)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	log.Info().Str("topic", topic).Msg("mqtt: subscribed to brightness commands")
	return nil
}

// ParseLevel parses a normalized brightness level
func ParseLevel(payload []byte) (float64, error) {
	level, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q: %w", payload, err)
	}
	if !(level >= 0 && level <= 1) {
		return 0, fmt.Errorf("level %v out of range 0-1", level)
	}
	return level, nil
}

type topicSink struct {
	publisher *Publisher
	topic     string
}

func (s *topicSink) Publish(value float64) {
	payload := strconv.FormatFloat(value, 'f', 3, 64)

	token := s.publisher.client.Publish(s.topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("topic", s.topic).Msg("mqtt: publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Str("topic", s.topic).Msg("mqtt: failed to publish")
	}
}
