package enum

// NodeKind identifies the AVS (Actively Validated Service) a tracked
// container runs. The catalog that maps images/digests/names to a NodeKind
// is an external collaborator (spec.md §1); FleetWatch only carries the
// resulting tag through the pipeline.
type NodeKind string

const (
	// NodeKindUnknown means classification failed; the container is not tracked.
	NodeKindUnknown   NodeKind = "unknown"
	NodeKindEigenDA    NodeKind = "eigenda"
	NodeKindLagrange   NodeKind = "lagrange"
	NodeKindAltLayer   NodeKind = "altlayer_mach"
	NodeKindWitness    NodeKind = "witness_chain"
	NodeKindGeneric    NodeKind = "generic_avs"
)

// Values returns all known node kinds, excluding Unknown.
func (NodeKind) Values() []string {
	return []string{
		string(NodeKindEigenDA),
		string(NodeKindLagrange),
		string(NodeKindAltLayer),
		string(NodeKindWitness),
		string(NodeKindGeneric),
	}
}

// Tracked reports whether containers of this kind should be monitored.
func (k NodeKind) Tracked() bool {
	return k != NodeKindUnknown && k != ""
}
