package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

type fakeCatalog struct {
	prefixes    map[string]enum.NodeKind
	ambiguous   map[string]bool
	byName      map[string]enum.NodeKind
	byDigest    map[string]enum.NodeKind
}

func (c *fakeCatalog) MatchImagePrefix(image string) (enum.NodeKind, bool, bool) {
	for prefix, kind := range c.prefixes {
		if len(image) >= len(prefix) && image[:len(prefix)] == prefix {
			return kind, c.ambiguous[prefix], true
		}
	}
	return "", false, false
}

func (c *fakeCatalog) DisambiguateByName(containerName string) (enum.NodeKind, bool) {
	kind, ok := c.byName[containerName]
	return kind, ok
}

func (c *fakeCatalog) LookupDigest(digest string) (enum.NodeKind, bool) {
	kind, ok := c.byDigest[digest]
	return kind, ok
}

func newCatalog() *fakeCatalog {
	return &fakeCatalog{
		prefixes: map[string]enum.NodeKind{
			"layr-labs/eigenda":   enum.NodeKindEigenDA,
			"lagrange-labs/worker": enum.NodeKindLagrange,
		},
		ambiguous: map[string]bool{
			"layr-labs/eigenda": true,
		},
		byName: map[string]enum.NodeKind{
			"eigenda-native-node": enum.NodeKindEigenDA,
			"my-witness-node":     enum.NodeKindWitness,
		},
		byDigest: map[string]enum.NodeKind{
			"sha256:abc123": enum.NodeKindAltLayer,
		},
	}
}

func TestClassify(t *testing.T) {
	cat := newCatalog()

	tests := []struct {
		name          string
		image         string
		digest        string
		containerName string
		want          enum.NodeKind
	}{
		{
			name:  "unambiguous image prefix match",
			image: "lagrange-labs/worker:v2",
			want:  enum.NodeKindLagrange,
		},
		{
			name:          "registry host stripped before prefix match",
			image:         "ghcr.io/lagrange-labs/worker:v2",
			containerName: "anything",
			want:          enum.NodeKindLagrange,
		},
		{
			name:          "ambiguous family disambiguated by container name",
			image:         "layr-labs/eigenda/native-node:latest",
			containerName: "eigenda-native-node",
			want:          enum.NodeKindEigenDA,
		},
		{
			name:          "ambiguous family with unresolvable name falls back to family kind",
			image:         "layr-labs/eigenda/native-node:latest",
			containerName: "unrecognized",
			want:          enum.NodeKindEigenDA,
		},
		{
			name:   "digest lookup when image prefix unknown",
			image:  "unknown/image:latest",
			digest: "sha256:abc123",
			want:   enum.NodeKindAltLayer,
		},
		{
			name:          "container name fallback when image and digest unknown",
			image:         "unknown/image:latest",
			containerName: "my-witness-node",
			want:          enum.NodeKindWitness,
		},
		{
			name:          "unknown when nothing resolves",
			image:         "unknown/image:latest",
			containerName: "unrecognized",
			want:          enum.NodeKindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(cat, tt.image, tt.digest, tt.containerName)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	cat := newCatalog()

	for i := 0; i < 50; i++ {
		got := Classify(cat, "layr-labs/eigenda/native-node:latest", "", "eigenda-native-node")
		require.Equal(t, enum.NodeKindEigenDA, got)
	}
}

func TestStripRegistryHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ghcr.io/layr-labs/eigenda:latest", "layr-labs/eigenda:latest"},
		{"localhost:5000/my-image:latest", "my-image:latest"},
		{"layr-labs/eigenda:latest", "layr-labs/eigenda:latest"},
		{"redis:7", "redis:7"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, stripRegistryHost(tt.in))
	}
}
