package registry

import (
	"context"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-containerregistry/pkg/crane"
	gcrregistry "github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnproject/kiln/lib/reference"
)

func TestResolveDigestShortCircuit(t *testing.T) {
	const digest = "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

	ref, err := reference.Parse("ubuntu@" + digest)
	require.NoError(t, err)

	// A digest reference must resolve without touching any registry.
	got, err := NewClient().ResolveDigest(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, digest, got)
}

func TestResolveDigestAgainstRegistry(t *testing.T) {
	srv := httptest.NewServer(gcrregistry.New())
	defer srv.Close()
	host := mustHost(t, srv.URL)

	img, err := random.Image(1024, 1)
	require.NoError(t, err)
	tag := host + "/kiln/base:latest"
	require.NoError(t, crane.Push(img, tag))

	wantDigest, err := img.Digest()
	require.NoError(t, err)

	ref, err := reference.Parse(tag)
	require.NoError(t, err)

	got, err := NewClient().ResolveDigest(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, wantDigest.String(), got)
}

func TestResolveDigestUnknownImage(t *testing.T) {
	srv := httptest.NewServer(gcrregistry.New())
	defer srv.Close()
	host := mustHost(t, srv.URL)

	ref, err := reference.Parse(host + "/kiln/missing:latest")
	require.NoError(t, err)

	_, err = NewClient().ResolveDigest(context.Background(), ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve "+host+"/kiln/missing:latest")
}

func mustHost(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Host
}
