package collector

import (
	"context"
	"os"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nicuwatch/nicuwatch/internal/config"
	"github.com/nicuwatch/nicuwatch/internal/router"
	"github.com/rs/zerolog"
)

var mqttEvents = []string{
	router.EventSensorData,
	router.EventBedPosition,
	router.EventEmergency,
	router.EventCrying,
}

// MQTTSource subscribes to <prefix>/<event> for every inbound event name.
type MQTTSource struct {
	cfg    config.MQTTConfig
	logger zerolog.Logger
	health *healthTracker
}

// NewMQTTSource creates an MQTT source
func NewMQTTSource(cfg config.MQTTConfig, logger zerolog.Logger) *MQTTSource {
	return &MQTTSource{
		cfg:    cfg,
		logger: logger.With().Str("component", "mqtt-source").Str("broker", cfg.Broker).Logger(),
		health: newHealthTracker("mqtt"),
	}
}

// Name returns the source type
func (s *MQTTSource) Name() string { return "mqtt" }

// Health returns the current health status
func (s *MQTTSource) Health() Health { return s.health.snapshot() }

// Topics returns the subscription filters, topic -> event name.
func (s *MQTTSource) Topics() map[string]string {
	topics := make(map[string]string, len(mqttEvents))
	prefix := strings.TrimSuffix(s.cfg.TopicPrefix, "/")
	for _, name := range mqttEvents {
		topic := name
		if prefix != "" {
			topic = prefix + "/" + name
		}
		topics[topic] = name
	}
	return topics
}

// Run connects to the broker and forwards messages until ctx is cancelled.
// Reconnection is left to the paho client.
func (s *MQTTSource) Run(ctx context.Context, sink Sink) error {
	topics := s.Topics()
	filters := make(map[string]byte, len(topics))
	for topic := range topics {
		filters[topic] = s.cfg.QoS
	}

	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		name, ok := topics[msg.Topic()]
		if !ok {
			return
		}
		s.health.event()
		sink.Handle(router.Event{Name: name, Payload: rawPayload(msg.Payload())})
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.PasswordEnv != "" {
		opts.SetPassword(os.Getenv(s.cfg.PasswordEnv))
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(defaultBackoffMin)
	opts.SetMaxReconnectInterval(defaultBackoffMax)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.SubscribeMultiple(filters, onMessage)
		if token.Wait() && token.Error() != nil {
			s.health.failed(token.Error(), false)
			s.logger.Error().Err(token.Error()).Msg("MQTT subscribe failed")
			return
		}
		s.health.connected()
		s.logger.Info().Int("topics", len(filters)).Msg("MQTT connected and subscribed")
		sink.SetConnected(true)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.health.failed(err, true)
		s.logger.Warn().Err(err).Msg("MQTT connection lost, will reconnect")
		sink.SetConnected(false)
	})

	client := mqtt.NewClient(opts)
	client.Connect()

	<-ctx.Done()
	client.Disconnect(250)
	s.health.failed(nil, false)
	sink.SetConnected(false)
	return nil
}
