// Package mqtt feeds event records received from MQTT topics into the engine.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/timzifer/viewstate/config"
	"github.com/timzifer/viewstate/translator"
)

const subscribeTimeout = 5 * time.Second

// Source subscribes to the configured topics and decodes each message into a
// translator.Record.
type Source struct {
	settings config.MQTTConfig
	logger   zerolog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// New validates settings and prepares a source. The broker is contacted by Run.
func New(settings config.MQTTConfig, logger zerolog.Logger) (*Source, error) {
	settings.Enabled = true
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		settings: settings,
		logger:   logger.With().Str("component", "viewstate_mqtt").Logger(),
		ready:    make(chan struct{}),
	}, nil
}

// Ready is closed once the first subscription round succeeded.
func (s *Source) Ready() <-chan struct{} {
	return s.ready
}

// Run connects, forwards decoded records to out until ctx is cancelled and
// disconnects afterwards. Subscriptions are renewed after reconnects. out is
// never closed.
func (s *Source) Run(ctx context.Context, out chan<- translator.Event) error {
	handler := s.handler(ctx, out)
	client, err := buildClient(s.settings, s.logger, func(c mqtt.Client) {
		if err := s.subscribe(c, handler); err != nil {
			s.logger.Error().Err(err).Msg("mqtt: subscribe failed")
			return
		}
		s.readyOnce.Do(func() { close(s.ready) })
	})
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	<-ctx.Done()
	return ctx.Err()
}

func (s *Source) subscribe(client mqtt.Client, handler mqtt.MessageHandler) error {
	filters := make(map[string]byte, len(s.settings.Topics))
	for _, topic := range s.settings.Topics {
		filters[topic] = s.settings.QoS
	}
	token := client.SubscribeMultiple(filters, handler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("mqtt: subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe: %w", err)
	}
	s.logger.Info().Strs("topics", s.settings.Topics).Msg("mqtt: subscribed")
	return nil
}

func (s *Source) handler(ctx context.Context, out chan<- translator.Event) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		rec, err := Decode(msg.Topic(), msg.Payload(), s.settings.TypeFromTopic)
		if err != nil {
			s.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("mqtt: decode failed")
			return
		}
		select {
		case out <- rec:
		case <-ctx.Done():
		}
	}
}

// Decode turns a message payload into a record. With fromTopic set, records
// without a type take the last topic segment as their type and an empty
// payload is accepted.
func Decode(topic string, payload []byte, fromTopic bool) (translator.Record, error) {
	rec, err := translator.DecodeRecord(payload)
	if err == nil || !fromTopic {
		return rec, err
	}
	if !errors.Is(err, translator.ErrMissingType) && len(bytes.TrimSpace(payload)) > 0 {
		return nil, err
	}
	raw := translator.Record{}
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, fmt.Errorf("decode event record: %w", err)
		}
		if raw == nil {
			raw = translator.Record{}
		}
	}
	raw[translator.RecordTypeField] = path.Base(topic)
	return raw, nil
}
