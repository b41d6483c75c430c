// Package router implements C8: the runtime event router. It consumes the
// container source's event stream, classifies newly started containers
// exactly once, and notifies the log manager (C5) and metrics scraper
// (C6) as containers come and go.
package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/agent/avs"
	"github.com/volaticloud/fleetwatch/internal/agent/discovery"
	"github.com/volaticloud/fleetwatch/internal/classify"
	"github.com/volaticloud/fleetwatch/internal/enum"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/wire"
)

// metricsPortRetryDelay is how long the router waits before trying
// metrics-port discovery a second time (spec.md §4.7).
const metricsPortRetryDelay = 10 * time.Second

// LogManager is the subset of logtail.Manager the router drives.
type LogManager interface {
	Add(ctx context.Context, target avs.ConfiguredAvs)
	Remove(ctx context.Context, containerName string)
}

// MetricsIndex is the subset of metrics.Scraper the router drives.
type MetricsIndex interface {
	Add(ctx context.Context, target avs.ConfiguredAvs)
	Remove(ctx context.Context, assignedName string)
}

// InventorySink receives a NodeInventory payload whenever a container is
// classified, signed and dispatched the same way log lines and metrics
// are (the router holds a reference to the dispatch actor's mailbox via
// this narrow interface rather than the concrete Sink, to avoid an
// import cycle with logtail/metrics).
type InventorySink interface {
	Send(ctx context.Context, p wire.SignedPayload) error
}

// PortResolver discovers the metrics port for a freshly classified
// container. Implementations typically inspect the container's exposed
// ports or a label convention per NodeKind.
type PortResolver interface {
	ResolvePort(summary discovery.ContainerSummary, kind enum.NodeKind) (port int, metricsURL string, ok bool)
}

// Router is C8.
type Router struct {
	source   discovery.Source
	catalog  classify.Catalog
	logs     LogManager
	metrics  MetricsIndex
	sink     InventorySink
	sign     signerLike
	machine  wire.MachineID
	ports    PortResolver

	portRetryDelay time.Duration

	mu     sync.Mutex
	known  map[string]avs.ConfiguredAvs
	queues map[string]chan discovery.Event
}

// signerLike is the narrow slice of *signer.Signer the router needs; kept
// as an interface to avoid a hard dependency in tests.
type signerLike interface {
	Sign(p wire.Payload) ([65]byte, error)
}

// New builds a Router. Run must be called to start consuming events.
func New(source discovery.Source, catalog classify.Catalog, logs LogManager, metricsIdx MetricsIndex, sink InventorySink, sign signerLike, machine wire.MachineID, ports PortResolver) *Router {
	return &Router{
		source:         source,
		catalog:        catalog,
		logs:           logs,
		metrics:        metricsIdx,
		sink:           sink,
		sign:           sign,
		machine:        machine,
		ports:          ports,
		portRetryDelay: metricsPortRetryDelay,
		known:          make(map[string]avs.ConfiguredAvs),
		queues:         make(map[string]chan discovery.Event),
	}
}

// Run consumes the container source's event stream until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	events, err := r.source.Events(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.dispatch(ctx, ev)
		}
	}
}

// dispatch hands ev to the per-container-name worker, spawning one if
// this is the first event seen for that name. Events for different names
// are processed concurrently; events for the same name are serialized by
// the worker's own queue (spec.md §4.7).
func (r *Router) dispatch(ctx context.Context, ev discovery.Event) {
	r.mu.Lock()
	q, ok := r.queues[ev.ContainerName]
	if !ok {
		q = make(chan discovery.Event, 16)
		r.queues[ev.ContainerName] = q
		go r.worker(ctx, ev.ContainerName, q)
	}
	r.mu.Unlock()

	select {
	case q <- ev:
	case <-ctx.Done():
	}
}

func (r *Router) worker(ctx context.Context, containerName string, q chan discovery.Event) {
	log := logger.GetLogger(ctx).With(zap.String("container", containerName))
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q:
			switch ev.Kind {
			case discovery.EventStart:
				r.handleStart(ctx, log, containerName)
			case discovery.EventStop, discovery.EventDie, discovery.EventKill:
				r.handleStop(ctx, containerName)
			}
		}
	}
}

func (r *Router) handleStart(ctx context.Context, log *zap.Logger, containerName string) {
	r.mu.Lock()
	_, alreadyKnown := r.known[containerName]
	r.mu.Unlock()
	if alreadyKnown {
		// Classify exactly once at start; never re-evaluate a container
		// that was already classified.
		return
	}

	summary, ok := r.findContainer(ctx, containerName)
	if !ok {
		log.Warn("router: started container not found in runtime listing")
		return
	}

	kind := classify.Classify(r.catalog, summary.Image, summary.ImageDigest, containerName)
	if !kind.Tracked() {
		return
	}

	target := avs.ConfiguredAvs{
		ContainerName: containerName,
		AssignedName:  wire.NewAssignedName(containerName),
		NodeKind:      kind,
	}

	port, url, ok := r.ports.ResolvePort(summary, kind)
	if !ok {
		select {
		case <-time.After(r.portRetryDelay):
		case <-ctx.Done():
			return
		}
		port, url, ok = r.ports.ResolvePort(summary, kind)
	}
	if ok {
		target.MetricsPort = port
		target.MetricsURL = url
	}

	r.mu.Lock()
	r.known[containerName] = target
	r.mu.Unlock()

	r.logs.Add(ctx, target)
	r.metrics.Add(ctx, target)
	r.announce(ctx, log, target)
}

func (r *Router) handleStop(ctx context.Context, containerName string) {
	r.mu.Lock()
	target, ok := r.known[containerName]
	delete(r.known, containerName)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.logs.Remove(ctx, containerName)
	r.metrics.Remove(ctx, target.AssignedName)
}

func (r *Router) announce(ctx context.Context, log *zap.Logger, target avs.ConfiguredAvs) {
	payload := wire.NodeInventory{
		AssignedName:     target.AssignedName,
		NodeKind:         string(target.NodeKind),
		MetricsReachable: target.HasMetrics(),
	}
	sig, err := r.sign.Sign(payload)
	if err != nil {
		log.Warn("router: signing node inventory failed", zap.Error(err))
		return
	}
	signed := wire.SignedPayload{MachineID: r.machine, Signature: sig, Inner: payload}
	if err := r.sink.Send(ctx, signed); err != nil {
		log.Warn("router: dispatching node inventory failed", zap.Error(err))
	}
}

func (r *Router) findContainer(ctx context.Context, containerName string) (discovery.ContainerSummary, bool) {
	summaries, err := r.source.List(ctx)
	if err != nil {
		return discovery.ContainerSummary{}, false
	}
	for _, s := range summaries {
		if s.Name == containerName {
			return s, true
		}
	}
	return discovery.ContainerSummary{}, false
}
