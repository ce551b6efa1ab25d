package courier

import (
	"context"
	"fmt"
)

// ChannelKind selects one of the pre-built broker clients.
type ChannelKind uint8

const (
	// ChannelQueue carries point-to-point work items.
	ChannelQueue ChannelKind = iota + 1
	// ChannelEvent carries broadcast domain events.
	ChannelEvent
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelQueue:
		return "queue"
	case ChannelEvent:
		return "event"
	default:
		return fmt.Sprintf("ChannelKind(%d)", uint8(k))
	}
}

// ChannelSelector names the destination of a publish call.
type ChannelSelector struct {
	Topic string
	Kind  ChannelKind
}

// AckLevel is the acknowledgment quorum a channel is configured with.
// The zero value is AckAll.
type AckLevel uint8

const (
	// AckAll waits for every in-sync replica. Only a native Persisted is durable.
	AckAll AckLevel = iota
	// AckLeader waits for the partition leader only.
	AckLeader
	// AckNone does not wait for any acknowledgment.
	AckNone
)

func (a AckLevel) String() string {
	switch a {
	case AckAll:
		return "all"
	case AckLeader:
		return "leader"
	case AckNone:
		return "none"
	default:
		return fmt.Sprintf("AckLevel(%d)", uint8(a))
	}
}

// isDurable decides whether a native broker status counts as durably written under level.
func (a AckLevel) isDurable(native DeliveryStatus) bool {
	if a == AckAll {
		return native == Persisted
	}
	return native.IsValid() && native != NotPersisted
}

// Header is a single message header.
type Header struct {
	Key   string
	Value []byte
}

// Message is what a Producer puts on the wire.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers []Header
}

// Producer sends a message and reports the native delivery status it could infer.
//
// Send must be safe for concurrent use. It returns a valid status even when err is not nil.
type Producer interface {
	Send(ctx context.Context, msg Message) (DeliveryStatus, error)
}

// Channel is a pre-built producer together with the acknowledgment level it was configured with.
type Channel struct {
	Producer Producer
	Acks     AckLevel
}

// Channels is the closed registry of publish channels, one per ChannelKind.
type Channels struct {
	Queue Channel
	Event Channel
}

func (c Channels) resolve(kind ChannelKind) (Channel, error) {
	var ch Channel
	switch kind {
	case ChannelQueue:
		ch = c.Queue
	case ChannelEvent:
		ch = c.Event
	default:
		return Channel{}, fmt.Errorf("%w: unknown channel kind %s", ErrChannelNotConfigured, kind)
	}

	if ch.Producer == nil {
		return Channel{}, fmt.Errorf("%w: no producer for %s channel", ErrChannelNotConfigured, kind)
	}
	return ch, nil
}
