package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/logger"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 60 * time.Second
)

// DockerSource implements Source against the local Docker Engine API,
// the same client package the teacher's internal/docker runtime builds on.
type DockerSource struct {
	cli *client.Client
}

// NewDockerSource builds a DockerSource talking to the daemon reachable
// from the environment (DOCKER_HOST and friends), negotiating the API
// version like the teacher's Runtime does.
func NewDockerSource() (*DockerSource, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("discovery: creating docker client: %w", err)
	}
	return &DockerSource{cli: cli}, nil
}

func (d *DockerSource) List(ctx context.Context) ([]ContainerSummary, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("discovery: listing containers: %w", err)
	}

	summaries := make([]ContainerSummary, 0, len(containers))
	for _, c := range containers {
		summaries = append(summaries, ContainerSummary{
			Name:           containerName(c.Names),
			Image:          c.Image,
			ImageDigest:    c.ImageID,
			PublishedPorts: publishedPorts(c.Ports),
		})
	}
	return summaries, nil
}

// Events streams container lifecycle events for the process lifetime,
// reconnecting on error with exponential backoff capped at 60s
// (spec.md §4.3). The returned channel is closed when ctx is done.
func (d *DockerSource) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)
	go d.run(ctx, out)
	return out, nil
}

func (d *DockerSource) run(ctx context.Context, out chan<- Event) {
	defer close(out)

	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		filterArgs := filters.NewArgs()
		filterArgs.Add("type", string(events.ContainerEventType))
		filterArgs.Add("event", "start")
		filterArgs.Add("event", "stop")
		filterArgs.Add("event", "die")
		filterArgs.Add("event", "kill")

		msgs, errs := d.cli.Events(ctx, events.ListOptions{Filters: filterArgs})

		connected := d.drain(ctx, msgs, errs, out)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = minBackoff
			continue
		}

		logger.GetLogger(ctx).Warn("discovery: event stream reconnecting", zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// drain forwards messages until the stream ends or errors. It returns true
// if at least one message was received before the stream ended, so the
// caller can reset its backoff on a connection that was actually healthy.
func (d *DockerSource) drain(ctx context.Context, msgs <-chan events.Message, errs <-chan error, out chan<- Event) bool {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received
		case err, ok := <-errs:
			if !ok || err == nil {
				return received
			}
			logger.GetLogger(ctx).Error("discovery: event stream error", zap.Error(err))
			return received
		case msg, ok := <-msgs:
			if !ok {
				return received
			}
			received = true
			if ev, ok := toEvent(msg); ok {
				select {
				case out <- ev:
				case <-ctx.Done():
					return received
				}
			}
		}
	}
}

func toEvent(msg events.Message) (Event, bool) {
	name := strings.TrimPrefix(msg.Actor.Attributes["name"], "/")
	if name == "" {
		return Event{}, false
	}
	switch msg.Action {
	case events.ActionStart:
		return Event{Kind: EventStart, ContainerName: name}, true
	case events.ActionStop:
		return Event{Kind: EventStop, ContainerName: name}, true
	case events.ActionDie:
		return Event{Kind: EventDie, ContainerName: name}, true
	case events.ActionKill:
		return Event{Kind: EventKill, ContainerName: name}, true
	default:
		return Event{}, false
	}
}

func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func publishedPorts(ports []container.Port) map[int]int {
	out := make(map[int]int, len(ports))
	for _, p := range ports {
		if p.PublicPort == 0 {
			continue
		}
		out[int(p.PrivatePort)] = int(p.PublicPort)
	}
	return out
}
