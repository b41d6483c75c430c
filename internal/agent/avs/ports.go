package avs

import (
	"fmt"

	"github.com/volaticloud/fleetwatch/internal/agent/discovery"
	"github.com/volaticloud/fleetwatch/internal/enum"
)

// StaticPortResolver discovers a freshly classified container's metrics
// port from a fixed NodeKind -> container-internal-port table, matched
// against the container's published port mappings (spec.md §4.7). Which
// internal port each AVS family exposes its metrics on is operational
// knowledge, not something spec.md pins down, so the table is a sensible
// default an operator can override per deployment.
type StaticPortResolver struct {
	internalPort map[enum.NodeKind]int
}

// NewStaticPortResolver builds a resolver with FleetWatch's default
// internal-port table.
func NewStaticPortResolver() *StaticPortResolver {
	return &StaticPortResolver{
		internalPort: map[enum.NodeKind]int{
			enum.NodeKindEigenDA:  9091,
			enum.NodeKindLagrange: 9100,
			enum.NodeKindAltLayer: 9090,
			enum.NodeKindWitness:  8080,
			enum.NodeKindGeneric:  9090,
		},
	}
}

// WithPort overrides (or adds) the internal metrics port for kind.
func (r *StaticPortResolver) WithPort(kind enum.NodeKind, port int) *StaticPortResolver {
	r.internalPort[kind] = port
	return r
}

// ResolvePort implements router.PortResolver.
func (r *StaticPortResolver) ResolvePort(summary discovery.ContainerSummary, kind enum.NodeKind) (port int, metricsURL string, ok bool) {
	internal, ok := r.internalPort[kind]
	if !ok {
		return 0, "", false
	}
	host, ok := summary.PublishedPorts[internal]
	if !ok {
		return 0, "", false
	}
	return host, fmt.Sprintf("http://localhost:%d/metrics", host), true
}
