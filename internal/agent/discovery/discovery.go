// Package discovery implements C3: the container source. It lists the
// containers currently present on the local runtime and streams their
// lifecycle events, backed by the Docker Engine API exactly as the
// teacher's internal/docker package talks to it.
package discovery

import "context"

// EventKind mirrors the container lifecycle events the runtime emits.
type EventKind string

const (
	EventStart EventKind = "start"
	EventStop  EventKind = "stop"
	EventDie   EventKind = "die"
	EventKill  EventKind = "kill"
)

// Event is one container lifecycle notification.
type Event struct {
	Kind          EventKind
	ContainerName string
}

// ContainerSummary describes one container known to the runtime at the
// moment Source.List was called.
type ContainerSummary struct {
	Name           string
	Image          string
	ImageDigest    string
	PublishedPorts map[int]int // container port -> host port
}

// Source is C3: the container source. Two operations, both backed by the
// local container runtime.
type Source interface {
	// List returns every container currently known to the runtime.
	List(ctx context.Context) ([]ContainerSummary, error)

	// Events returns a channel of lifecycle events. The channel is closed
	// when ctx is cancelled. Connection failures are retried internally
	// with exponential backoff capped at 60s; the stream is transparently
	// restarted without the caller losing its place.
	Events(ctx context.Context) (<-chan Event, error)
}
