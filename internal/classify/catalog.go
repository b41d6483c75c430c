package classify

import (
	"strings"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// StaticCatalog is a fixed, in-process Catalog seeded with the AVS image
// families FleetWatch tracks out of the box. The real node-type catalog
// (spec.md §1) is an external collaborator with its own HTTP API and
// image-hash lookups; StaticCatalog is FleetWatch's own default
// implementation of that collaborator's interface, used by cmd/agent when
// no richer catalog service is configured.
type StaticCatalog struct {
	prefixes  map[string]enum.NodeKind
	ambiguous map[string]bool
	byName    map[string]enum.NodeKind
	byDigest  map[string]enum.NodeKind
}

// NewStaticCatalog builds the built-in catalog covering every tracked
// NodeKind.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		prefixes: map[string]enum.NodeKind{
			"layr-labs/eigenda":    enum.NodeKindEigenDA,
			"lagrange-labs/worker": enum.NodeKindLagrange,
			"altlayer/mach":        enum.NodeKindAltLayer,
			"witnesschain/node":    enum.NodeKindWitness,
		},
		ambiguous: map[string]bool{
			"layr-labs/eigenda": true,
		},
		byName: map[string]enum.NodeKind{
			"eigenda-native-node": enum.NodeKindEigenDA,
			"eigenda-opr-node":    enum.NodeKindEigenDA,
		},
		byDigest: map[string]enum.NodeKind{},
	}
}

func (c *StaticCatalog) MatchImagePrefix(image string) (kind enum.NodeKind, ambiguous bool, ok bool) {
	for prefix, k := range c.prefixes {
		if strings.Contains(image, prefix) {
			return k, c.ambiguous[prefix], true
		}
	}
	return "", false, false
}

func (c *StaticCatalog) DisambiguateByName(containerName string) (enum.NodeKind, bool) {
	kind, ok := c.byName[containerName]
	return kind, ok
}

func (c *StaticCatalog) LookupDigest(digest string) (enum.NodeKind, bool) {
	kind, ok := c.byDigest[digest]
	return kind, ok
}

// RegisterName adds a container-name disambiguation entry, e.g. loaded from
// an operator-maintained configuration file at startup.
func (c *StaticCatalog) RegisterName(containerName string, kind enum.NodeKind) {
	c.byName[containerName] = kind
}

// RegisterDigest adds an image-digest entry.
func (c *StaticCatalog) RegisterDigest(digest string, kind enum.NodeKind) {
	c.byDigest[digest] = kind
}
