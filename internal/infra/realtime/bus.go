package realtime

import (
	"context"
	"encoding/json"
)

// BusEvent is a broadcast mirrored onto the shared event bus so that peer
// nodes can replay it into their local rooms. Origin identifies the emitting
// node; a node ignores its own events when they come back around.
type BusEvent struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room,omitempty"`
	All     bool            `json:"all,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// EventBus propagates broadcasts across gateway nodes. A single-node
// deployment uses NoopBus; the Kafka bridge implements this for scaled
// deployments.
type EventBus interface {
	Publish(ctx context.Context, evt BusEvent) error
}

// NoopBus discards every event. In-process rooms are then the only fan-out.
type NoopBus struct{}

func (NoopBus) Publish(context.Context, BusEvent) error { return nil }

// Replay applies a bus event from a peer node to the local registry.
func (r *Registry) Replay(evt BusEvent, selfOrigin string) {
	if evt.Origin == selfOrigin {
		return
	}
	if evt.All {
		r.BroadcastAll(evt.Payload)
		return
	}
	if evt.Room != "" {
		r.Broadcast(evt.Room, evt.Payload)
	}
}
