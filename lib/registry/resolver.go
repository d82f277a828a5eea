// Package registry answers manifest digest queries against image registries.
package registry

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	godigest "github.com/opencontainers/go-digest"

	"github.com/kilnproject/kiln/lib/reference"
)

// Client resolves tagged references to their current manifest digest.
type Client struct {
	opts []crane.Option
}

var _ reference.Resolver = (*Client)(nil)

// NewClient returns a resolver backed by the ambient docker credential
// helpers.
func NewClient() *Client {
	return &Client{
		opts: []crane.Option{crane.WithAuthFromKeychain(authn.DefaultKeychain)},
	}
}

// ResolveDigest returns the manifest digest for ref. Digest references
// resolve locally; tagged references cost one registry round trip (HEAD,
// with a GET fallback for registries that reject it).
func (c *Client) ResolveDigest(ctx context.Context, ref *reference.Normalized) (string, error) {
	if ref.IsDigest() {
		return ref.Digest(), nil
	}

	opts := append([]crane.Option{crane.WithContext(ctx)}, c.opts...)
	digest, err := crane.Digest(ref.String(), opts...)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref.String(), err)
	}
	// The digest goes straight into a pinned FROM line; reject anything the
	// registry sent back that is not a well-formed digest.
	if _, err := godigest.Parse(digest); err != nil {
		return "", fmt.Errorf("resolve %s: bad digest %q: %w", ref.String(), digest, err)
	}
	return digest, nil
}
