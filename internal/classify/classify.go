// Package classify implements C2: a pure function mapping a container's
// image reference, image digest, and name to a NodeKind. Node-type
// catalogs and image-hash lookups are an external collaborator (spec.md
// §2) — Catalog below is that collaborator's interface, supplied by the
// caller rather than hardcoded here.
package classify

import (
	"strings"

	"github.com/volaticloud/fleetwatch/internal/enum"
)

// Catalog is the external node-type catalog collaborator: known image
// prefixes, the image-prefix-to-default-name disambiguation map, and the
// digest-to-kind lookup. StaticCatalog (catalog.go) is the built-in
// implementation; callers may supply any other.
type Catalog interface {
	// MatchImagePrefix returns the NodeKind whose known image prefix is a
	// substring of image (after stripping any registry host), and
	// ambiguous reports whether that kind has multiple sub-variants that
	// must be disambiguated by container name.
	MatchImagePrefix(image string) (kind enum.NodeKind, ambiguous bool, ok bool)

	// DisambiguateByName resolves a container name to a NodeKind when the
	// image-prefix match was ambiguous, or as the final container-name
	// fallback (resolution step 4).
	DisambiguateByName(containerName string) (enum.NodeKind, bool)

	// LookupDigest resolves an image digest to a NodeKind (resolution
	// step 3).
	LookupDigest(digest string) (enum.NodeKind, bool)
}

// Classify resolves a container's NodeKind following spec.md §4.2's
// five-step order. It is a pure function: identical inputs and an
// identical Catalog snapshot always yield the identical output, which is
// what lets the event router (C8) call it without synchronization.
func Classify(cat Catalog, image, digest, containerName string) enum.NodeKind {
	image = stripRegistryHost(image)

	if kind, ambiguous, ok := cat.MatchImagePrefix(image); ok {
		if !ambiguous {
			return kind
		}
		if resolved, ok := cat.DisambiguateByName(containerName); ok {
			return resolved
		}
		return kind
	}

	if kind, ok := cat.LookupDigest(digest); ok {
		return kind
	}

	if kind, ok := cat.DisambiguateByName(containerName); ok {
		return kind
	}

	return enum.NodeKindUnknown
}

// stripRegistryHost removes a leading "host[:port]/" segment from an
// image reference, e.g. "ghcr.io/layr-labs/eigenda/native-node:latest"
// becomes "layr-labs/eigenda/native-node:latest". A segment is treated as
// a registry host only if it contains a '.' or ':' or is "localhost",
// matching how Docker itself distinguishes a registry host from the first
// path component of an image name on Docker Hub.
func stripRegistryHost(image string) string {
	idx := strings.Index(image, "/")
	if idx < 0 {
		return image
	}
	host := image[:idx]
	if strings.ContainsAny(host, ".:") || host == "localhost" {
		return image[idx+1:]
	}
	return image
}
