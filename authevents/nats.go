package authevents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ariebrainware/campus-gateway/util"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subject carries JSON-encoded Events.
const Subject = "security.auth"

// NATSBus publishes events to NATS and delivers every event received on Subject to the local
// handlers, so lockout and audit run in whichever gateway instance receives the message.
type NATSBus struct {
	conn         *nats.Conn
	subscription *nats.Subscription
	// handlerTimeout bounds each handler run triggered by a NATS message.
	handlerTimeout time.Duration

	mu       sync.RWMutex
	handlers []Handler
}

// NewNATSBus connects to natsURL, retrying the way the rest of the fleet does.
func NewNATSBus(natsURL string) (*NATSBus, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("campus-gateway"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", natsURL, err)
	}
	util.Logger().Info("auth event bus connected", zap.String("url", natsURL))
	return &NATSBus{conn: conn, handlerTimeout: 5 * time.Second}, nil
}

func (b *NATSBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Start begins consuming Subject.
func (b *NATSBus) Start() error {
	sub, err := b.conn.Subscribe(Subject, b.handleMsg)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", Subject, err)
	}
	b.subscription = sub
	return nil
}

// Publish encodes ev and hands it to NATS. Handlers run when the message comes back.
func (b *NATSBus) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(Subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", Subject, err)
	}
	return nil
}

func (b *NATSBus) handleMsg(msg *nats.Msg) {
	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		util.Logger().Warn("dropping malformed auth event", zap.Int("bytes", len(msg.Data)), zap.Error(err))
		return
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		ctx, cancel := context.WithTimeout(context.Background(), b.handlerTimeout)
		if err := h(ctx, ev); err != nil {
			util.Logger().Error("auth event handler failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("ip", util.SanitizeLogValue(ev.IP)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close drains the subscription and closes the connection.
func (b *NATSBus) Close() {
	if b.subscription != nil {
		_ = b.subscription.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}

// IsConnected returns true if connected to NATS
func (b *NATSBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}
