package recipe

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/kilnproject/kiln/lib/reference"
)

// Debian policy: names are lowercase alphanumerics plus "+-.", at least two
// characters, starting with an alphanumeric.
var packageNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)

// knownAptOptions is the full set of apt-get install options a recipe may
// add. Anything else is refused up front: a misspelled option must never ride
// into the build and get ignored or misread by the package manager.
var knownAptOptions = map[string]struct{}{
	"-y":                      {},
	"-q":                      {},
	"--assume-yes":            {},
	"--quiet":                 {},
	"--no-install-recommends": {},
	"--no-install-suggests":   {},
	"--install-recommends":    {},
	"--install-suggests":      {},
	"--fix-missing":           {},
	"--allow-downgrades":      {},
	"--reinstall":             {},
}

// Validate checks every invariant the build relies on. A recipe that fails
// validation never reaches the container engine.
func (r *Recipe) Validate() error {
	if r.Base == "" {
		return fmt.Errorf("%w: base is empty", ErrInvalidBase)
	}
	if _, err := reference.Parse(r.Base); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBase, err)
	}

	if r.Workdir == "" || !path.IsAbs(r.Workdir) || path.Clean(r.Workdir) != r.Workdir {
		return fmt.Errorf("%w: %q", ErrInvalidWorkdir, r.Workdir)
	}
	if r.Workdir == "/" {
		return fmt.Errorf("%w: refusing to use the image root", ErrInvalidWorkdir)
	}

	if len(r.Packages) == 0 {
		return ErrNoPackages
	}
	for _, pkg := range r.Packages {
		if !packageNameRe.MatchString(pkg) {
			return fmt.Errorf("%w: %q", ErrInvalidPackageName, pkg)
		}
	}

	for _, opt := range r.AptOptions {
		if _, ok := knownAptOptions[opt]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAptOption, opt)
		}
	}

	switch r.Requirements {
	case RequirementsAuto, RequirementsAlways, RequirementsNever:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRequirements, r.Requirements)
	}

	if r.Entrypoint == "" || strings.ContainsAny(r.Entrypoint, " \t") {
		return fmt.Errorf("%w: %q", ErrInvalidEntrypoint, r.Entrypoint)
	}

	for k := range r.Labels {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("label with empty key")
		}
	}

	return nil
}
