package reference

import (
	"context"
	"fmt"
	"strings"

	distref "github.com/distribution/reference"
)

// Normalized is a validated and normalized OCI image reference.
// It can be either a tagged reference (e.g., "docker.io/library/ubuntu:24.04")
// or a digest reference (e.g., "docker.io/library/ubuntu@sha256:abc123...").
type Normalized struct {
	raw        string
	repository string
	tag        string // empty if digest ref
	digest     string // empty if tag ref
	isDigest   bool
}

// Parse validates and normalizes a user-provided image reference.
// Examples:
//   - "ubuntu" -> "docker.io/library/ubuntu:latest"
//   - "ubuntu:24.04" -> "docker.io/library/ubuntu:24.04"
//   - "ubuntu@sha256:abc..." -> "docker.io/library/ubuntu@sha256:abc..."
func Parse(s string) (*Normalized, error) {
	named, err := distref.ParseNormalizedNamed(s)
	if err != nil {
		return nil, fmt.Errorf("parse image reference %q: %w", s, err)
	}

	ref := &Normalized{}

	// Repository is always present.
	ref.repository = distref.Domain(named) + "/" + distref.Path(named)

	// Canonical references carry their digest already.
	if canonical, ok := named.(distref.Canonical); ok {
		ref.isDigest = true
		ref.digest = canonical.Digest().String()
		ref.raw = canonical.String()
		return ref, nil
	}

	// Otherwise it's a tagged reference - ensure tag (add :latest if missing)
	tagged := distref.TagNameOnly(named)
	if t, ok := tagged.(distref.Tagged); ok {
		ref.tag = t.Tag()
	}
	ref.raw = tagged.String()

	return ref, nil
}

// String returns the full normalized reference.
func (r *Normalized) String() string {
	return r.raw
}

// IsDigest returns true if this reference contains a digest (@sha256:...).
func (r *Normalized) IsDigest() bool {
	return r.isDigest
}

// Digest returns the digest if present (e.g., "sha256:abc123...").
// Returns empty string if this is a tagged reference.
func (r *Normalized) Digest() string {
	return r.digest
}

// Repository returns the repository path without tag or digest.
// Example: "docker.io/library/ubuntu"
func (r *Normalized) Repository() string {
	return r.repository
}

// Tag returns the tag if this is a tagged reference (e.g., "latest").
// Returns empty string if this is a digest reference.
func (r *Normalized) Tag() string {
	return r.tag
}

// DigestHex returns just the hex portion of the digest (without "sha256:" prefix).
// Returns empty string if this is a tagged reference.
func (r *Normalized) DigestHex() string {
	return digestHex(r.digest)
}

// Resolved is a Normalized reference that has been resolved to include the
// actual manifest digest from the registry. The digest is always present.
type Resolved struct {
	normalized *Normalized
	digest     string // always populated (e.g., "sha256:abc123...")
}

// NewResolved creates a Resolved reference from a Normalized one and a digest.
func NewResolved(normalized *Normalized, digest string) *Resolved {
	return &Resolved{
		normalized: normalized,
		digest:     digest,
	}
}

// String returns the full normalized reference (the original user input format).
func (r *Resolved) String() string {
	return r.normalized.String()
}

// Repository returns the repository path without tag or digest.
func (r *Resolved) Repository() string {
	return r.normalized.Repository()
}

// Tag returns the tag if this was originally a tagged reference.
// Returns empty string if this was originally a digest reference.
func (r *Resolved) Tag() string {
	return r.normalized.Tag()
}

// Digest returns the resolved manifest digest (e.g., "sha256:abc123...").
// This is always populated after resolution.
func (r *Resolved) Digest() string {
	return r.digest
}

// DigestHex returns just the hex portion of the digest (without "sha256:" prefix).
func (r *Resolved) DigestHex() string {
	return digestHex(r.digest)
}

// Pinned returns the repository pinned to the resolved digest
// (e.g., "docker.io/library/ubuntu@sha256:abc123..."). Pinned references are
// immutable: they name exactly one manifest regardless of later tag moves.
func (r *Resolved) Pinned() string {
	return r.Repository() + "@" + r.digest
}

// Resolver resolves a normalized reference to its manifest digest.
type Resolver interface {
	ResolveDigest(ctx context.Context, ref *Normalized) (string, error)
}

// Resolve returns a Resolved reference by asking the resolver for the
// authoritative manifest digest.
func (r *Normalized) Resolve(ctx context.Context, resolver Resolver) (*Resolved, error) {
	digest, err := resolver.ResolveDigest(ctx, r)
	if err != nil {
		return nil, err
	}
	return NewResolved(r, digest), nil
}

func digestHex(digest string) string {
	if digest == "" {
		return ""
	}
	parts := strings.SplitN(digest, ":", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
