// Package broker abstracts the pub/sub transport the intake adapter
// subscribes to. The wire transport itself is an external collaborator
// (see spec's out-of-scope list); this package only defines the seam
// and two adapters so the intake can be driven against either.
package broker

import "context"

// Delivery is one message handed to a Handler. Ack/Nack must be called
// exactly once; Nack signals the broker should redeliver.
type Delivery struct {
	Subject string
	Data    []byte
	Ack     func()
	Nack    func()
}

// Handler processes one delivery. It must call exactly one of
// Delivery.Ack or Delivery.Nack before returning.
type Handler func(ctx context.Context, d Delivery)

// Broker is the port the intake adapter depends on. Implementations
// must support wildcard subject patterns with a single device-id
// segment, e.g. "telemetry.meter.*".
type Broker interface {
	Subscribe(ctx context.Context, subjectPattern string, h Handler) error
	Close() error
}
