package image

import (
	"context"
	"fmt"
	"os"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/layout"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/types"
	ispec "github.com/opencontainers/image-spec/specs-go/v1"
	rspec "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/opencontainers/umoci/oci/cas/dir"
	"github.com/opencontainers/umoci/oci/casext"
	"github.com/opencontainers/umoci/oci/layer"
)

// ExportLayout writes the image into an OCI layout at dstDir, addressable
// by refName through the standard ref.name annotation. Engine-saved
// images carry Docker media types and are converted first, so OCI-only
// tooling can read the result.
func ExportLayout(ctx context.Context, img v1.Image, dstDir, refName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	oci, err := toOCI(img)
	if err != nil {
		return err
	}

	lp, err := layout.FromPath(dstDir)
	if err != nil {
		lp, err = layout.Write(dstDir, empty.Index)
		if err != nil {
			return fmt.Errorf("create layout %s: %w", dstDir, err)
		}
	}

	err = lp.AppendImage(oci, layout.WithAnnotations(map[string]string{
		ispec.AnnotationRefName: refName,
	}))
	if err != nil {
		return fmt.Errorf("append image to layout: %w", err)
	}
	return nil
}

// toOCI rebuilds the image with OCI media types. The blobs themselves are
// reused unchanged.
func toOCI(img v1.Image) (v1.Image, error) {
	mt, err := img.MediaType()
	if err != nil {
		return nil, fmt.Errorf("image media type: %w", err)
	}
	if mt == types.OCIManifestSchema1 {
		return img, nil
	}

	cfg, err := img.ConfigFile()
	if err != nil {
		return nil, fmt.Errorf("image config: %w", err)
	}
	cfg = cfg.DeepCopy()
	// Append recomputes the layer diff IDs; stale history would no longer
	// line up with them.
	cfg.RootFS = v1.RootFS{Type: "layers"}
	cfg.History = nil

	base := mutate.MediaType(empty.Image, types.OCIManifestSchema1)
	base = mutate.ConfigMediaType(base, types.OCIConfigJSON)
	base, err = mutate.ConfigFile(base, cfg)
	if err != nil {
		return nil, fmt.Errorf("set config: %w", err)
	}

	layers, err := img.Layers()
	if err != nil {
		return nil, fmt.Errorf("image layers: %w", err)
	}
	adds := make([]mutate.Addendum, 0, len(layers))
	for _, l := range layers {
		adds = append(adds, mutate.Addendum{Layer: l, MediaType: types.OCILayer})
	}

	oci, err := mutate.Append(base, adds...)
	if err != nil {
		return nil, fmt.Errorf("append layers: %w", err)
	}
	return oci, nil
}

// UnpackRootfs expands the image stored in an OCI layout into a plain
// root filesystem at destDir. Without root privileges, ownership is
// mapped to the current user instead of failing on chown.
func UnpackRootfs(ctx context.Context, layoutDir, refName, destDir string) error {
	casEngine, err := dir.Open(layoutDir)
	if err != nil {
		return fmt.Errorf("open layout %s: %w", layoutDir, err)
	}
	defer casEngine.Close()

	engine := casext.NewEngine(casEngine)
	descriptors, err := engine.ResolveReference(ctx, refName)
	if err != nil {
		return fmt.Errorf("resolve %q in layout: %w", refName, err)
	}
	if len(descriptors) == 0 {
		return fmt.Errorf("%w: %q", ErrRefNotFound, refName)
	}

	blob, err := engine.FromDescriptor(ctx, descriptors[0].Descriptor())
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	manifest, ok := blob.Data.(ispec.Manifest)
	if !ok {
		return fmt.Errorf("unexpected manifest type %T", blob.Data)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create rootfs dir: %w", err)
	}

	var mapOpts layer.MapOptions
	if os.Geteuid() != 0 {
		mapOpts = layer.MapOptions{
			Rootless: true,
			UIDMappings: []rspec.LinuxIDMapping{
				{HostID: uint32(os.Getuid()), ContainerID: 0, Size: 1},
			},
			GIDMappings: []rspec.LinuxIDMapping{
				{HostID: uint32(os.Getgid()), ContainerID: 0, Size: 1},
			},
		}
	}

	opts := &layer.UnpackOptions{OnDiskFormat: layer.DirRootfs{MapOptions: mapOpts}}
	if err := layer.UnpackRootfs(ctx, casEngine, destDir, manifest, opts); err != nil {
		return fmt.Errorf("unpack rootfs: %w", err)
	}
	return nil
}
