// Package avs holds ConfiguredAvs, the agent's bookkeeping record for one
// tracked container, shared by the logtail, metrics, and router
// collaborators so none of them need to import each other.
package avs

import "github.com/volaticloud/fleetwatch/internal/enum"

// ConfiguredAvs is the agent's bookkeeping record for one tracked
// container: the stable assigned_name it was given at classification time,
// its NodeKind, and the metrics endpoint discovered for it, if any.
type ConfiguredAvs struct {
	ContainerName string
	AssignedName  string
	NodeKind      enum.NodeKind
	MetricsPort   int
	MetricsURL    string
}

// HasMetrics reports whether a metrics endpoint was successfully
// discovered for this container.
func (a ConfiguredAvs) HasMetrics() bool {
	return a.MetricsURL != ""
}
