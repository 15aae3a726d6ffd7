package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/usher-agent/usher/internal/config"
	"github.com/usher-agent/usher/internal/engine"
)

// Bridge manages the MQTT connection and routes inbound questions to
// the engine. Replies are published at QoS 1 so a kiosk that briefly
// drops off the network still gets its answer.
type Bridge struct {
	cfg        config.MQTTConfig
	instanceID string
	engine     *engine.Engine
	logger     *slog.Logger
	cm         *autopaho.ConnectionManager
}

// NewBridge creates a Bridge but does not connect. Call [Bridge.Start]
// to begin the connection and message loop.
func NewBridge(cfg config.MQTTConfig, instanceID string, eng *engine.Engine, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:        cfg,
		instanceID: instanceID,
		engine:     eng,
		logger:     logger.With("component", "mqtt"),
	}
}

// Start connects to the MQTT broker and blocks until ctx is cancelled.
// On every (re-)connect it re-subscribes to the ask filter and publishes
// a birth message.
func (b *Bridge) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := b.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqtt connected to broker", "broker", b.cfg.Broker)
			if _, err := cm.Subscribe(ctx, &paho.Subscribe{
				Subscriptions: []paho.SubscribeOptions{
					{Topic: b.askFilter(), QoS: 1},
				},
			}); err != nil {
				b.logger.Warn("mqtt subscribe failed", "filter", b.askFilter(), "error", err)
			}
			b.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "usher-" + shortID(b.instanceID),
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					// Reply through the client that delivered the message:
					// a retained question can arrive before NewConnection
					// returns, so the manager field may not be set yet.
					b.handleAsk(ctx, pr.Packet, pr.Client)
					return true, nil
				},
			},
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	b.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		b.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()
	return nil
}

// Stop gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cm == nil {
		return nil
	}
	b.publishAvailability(ctx, b.cm, "offline")
	return b.cm.Disconnect(ctx)
}

// publisher is the subset of the paho client used to send replies.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// handleAsk processes one inbound question. The engine call can take
// several seconds, so the work runs in its own goroutine to keep the
// paho receive path unblocked.
func (b *Bridge) handleAsk(ctx context.Context, pub *paho.Publish, out publisher) {
	session, ok := b.sessionFromTopic(pub.Topic)
	if !ok {
		b.logger.Debug("ignoring message on unexpected topic", "topic", pub.Topic)
		return
	}

	message := strings.TrimSpace(string(pub.Payload))
	if message == "" {
		b.logger.Debug("ignoring empty question", "topic", pub.Topic)
		return
	}

	b.logger.Info("question received", "session", session, "bytes", len(pub.Payload))

	go func() {
		reply := b.engine.Answer(ctx, message, session)
		if _, err := out.Publish(ctx, &paho.Publish{
			Topic:   b.replyTopic(session),
			Payload: []byte(reply),
			QoS:     1,
		}); err != nil {
			b.logger.Warn("reply publish failed", "session", session, "error", err)
			return
		}
		b.logger.Info("reply published", "session", session)
	}()
}

// --- Topic helpers ---

func (b *Bridge) baseTopic() string {
	prefix := b.cfg.TopicPrefix
	if prefix == "" {
		prefix = "usher"
	}
	return prefix + "/" + b.instanceID
}

func (b *Bridge) askFilter() string {
	return b.baseTopic() + "/ask/+"
}

func (b *Bridge) replyTopic(session string) string {
	return b.baseTopic() + "/reply/" + session
}

func (b *Bridge) availabilityTopic() string {
	return b.baseTopic() + "/availability"
}

// sessionFromTopic extracts the session segment from an ask topic.
// Topics nested deeper than one segment past ask/ are rejected, matching
// the single-level + in the subscription filter.
func (b *Bridge) sessionFromTopic(topic string) (string, bool) {
	prefix := b.baseTopic() + "/ask/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	session := topic[len(prefix):]
	if session == "" || strings.Contains(session, "/") {
		return "", false
	}
	return session, true
}

func (b *Bridge) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   b.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		b.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		b.logger.Info("mqtt availability published", "status", status)
	}
}

// shortID returns the first UUID group, enough to disambiguate client
// IDs without hitting broker length limits.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
