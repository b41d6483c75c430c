package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

func TestStaticCatalogMatchImagePrefix(t *testing.T) {
	cat := NewStaticCatalog()

	kind, ambiguous, ok := cat.MatchImagePrefix("lagrange-labs/worker:v2")
	require.True(t, ok)
	require.False(t, ambiguous)
	require.Equal(t, enum.NodeKindLagrange, kind)

	kind, ambiguous, ok = cat.MatchImagePrefix("layr-labs/eigenda/native-node:latest")
	require.True(t, ok)
	require.True(t, ambiguous)
	require.Equal(t, enum.NodeKindEigenDA, kind)

	_, _, ok = cat.MatchImagePrefix("unknown/image:latest")
	require.False(t, ok)
}

func TestStaticCatalogDisambiguateByName(t *testing.T) {
	cat := NewStaticCatalog()

	kind, ok := cat.DisambiguateByName("eigenda-native-node")
	require.True(t, ok)
	require.Equal(t, enum.NodeKindEigenDA, kind)

	_, ok = cat.DisambiguateByName("unrecognized")
	require.False(t, ok)
}

func TestStaticCatalogRegisterNameAndDigest(t *testing.T) {
	cat := NewStaticCatalog()

	cat.RegisterName("my-witness", enum.NodeKindWitness)
	kind, ok := cat.DisambiguateByName("my-witness")
	require.True(t, ok)
	require.Equal(t, enum.NodeKindWitness, kind)

	cat.RegisterDigest("sha256:abc", enum.NodeKindAltLayer)
	kind, ok = cat.LookupDigest("sha256:abc")
	require.True(t, ok)
	require.Equal(t, enum.NodeKindAltLayer, kind)
}

func TestStaticCatalogSatisfiesCatalogViaClassify(t *testing.T) {
	cat := NewStaticCatalog()
	got := Classify(cat, "ghcr.io/layr-labs/eigenda/native-node:latest", "", "eigenda-native-node")
	require.Equal(t, enum.NodeKindEigenDA, got)
}
