package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBroker subscribes to subjects of the form "telemetry.meter.*" /
// "telemetry.vehicle.*" — the dot-delimited NATS rendering of the
// spec's "telemetry/meter/<meterId>" topic pattern.
type NATSBroker struct {
	conn *nats.Conn
	log  *slog.Logger
}

func NewNATSBroker(url string, log *slog.Logger) (*NATSBroker, error) {
	conn, err := nats.Connect(url,
		nats.ReconnectWait(2),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("broker: connect to nats: %w", err)
	}

	log.Info("connected to nats", "url", url)
	return &NATSBroker{conn: conn, log: log}, nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, subjectPattern string, h Handler) error {
	sub, err := b.conn.Subscribe(subjectPattern, func(msg *nats.Msg) {
		h(ctx, Delivery{
			Subject: msg.Subject,
			Data:    msg.Data,
			Ack:     func() {},
			Nack: func() {
				// NATS core pub/sub has no redelivery; logging the
				// nack is the best this transport can do without a
				// JetStream consumer underneath it.
				b.log.Warn("nats delivery nacked, no redelivery available", "subject", msg.Subject)
			},
		})
	})
	if err != nil {
		return fmt.Errorf("broker: subscribe %q: %w", subjectPattern, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *NATSBroker) Close() error {
	b.conn.Close()
	return nil
}
