package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ahrav/gavel-arena/internal/ports"
)

// NATSConfig holds the connection settings for the replica bridge.
type NATSConfig struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the bridge defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "arena.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// envelope tags an event with the replica that published it so a replica
// does not deliver its own events twice.
type envelope struct {
	Origin string      `json:"origin"`
	Event  ports.Event `json:"event"`
}

// NATSBridge publishes events locally and to a NATS subject, and forwards
// events published by other replicas to the local hub.
type NATSBridge struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	local   *Hub
	subject string
	origin  string
}

// ConnectNATS dials NATS and subscribes to the event subject.
func ConnectNATS(cfg NATSConfig, local *Hub) (*NATSBridge, error) {
	opts := []nats.Option{
		nats.Name("gavel-arena"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	b := newBridge(local, cfg.Subject)
	b.nc = nc
	sub, err := nc.Subscribe(cfg.Subject, b.handleMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.Subject, err)
	}
	b.sub = sub

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject", cfg.Subject).
		Str("origin", b.origin).
		Msg("NATS event bridge connected")
	return b, nil
}

func newBridge(local *Hub, subject string) *NATSBridge {
	return &NATSBridge{
		local:   local,
		subject: subject,
		origin:  uuid.NewString(),
	}
}

// Publish delivers ev locally first, then announces it to other replicas.
func (b *NATSBridge) Publish(ctx context.Context, ev ports.Event) error {
	if err := b.local.Publish(ctx, ev); err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe registers a local listener; it sees events from every replica.
func (b *NATSBridge) Subscribe(fn func(ports.Event)) func() {
	return b.local.Subscribe(fn)
}

func (b *NATSBridge) handleMessage(msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
		return
	}
	if env.Origin == b.origin {
		return
	}
	_ = b.local.Publish(context.Background(), env.Event)
}

// Close drains the subscription and closes the connection.
func (b *NATSBridge) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	if b.nc != nil {
		b.nc.Close()
	}
}
