package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/samber/lo"
)

// DefaultFileName is the recipe file looked up in the build context when no
// explicit path is given.
const DefaultFileName = "kiln.yaml"

// RequirementsMode controls whether a requirements.txt found in the build
// context gets installed after the toolchain upgrade.
type RequirementsMode string

const (
	// RequirementsAuto installs requirements.txt only when the file exists.
	RequirementsAuto RequirementsMode = "auto"
	// RequirementsAlways fails the build if requirements.txt is missing.
	RequirementsAlways RequirementsMode = "always"
	// RequirementsNever skips dependency installation entirely.
	RequirementsNever RequirementsMode = "never"
)

// Recipe is the full description of one image build. It is loaded once,
// validated once, and treated as read-only afterwards: every build step
// receives the same recipe value and none may mutate it.
type Recipe struct {
	// Base is the OS image reference the build starts from.
	Base string `json:"base,omitempty"`
	// Workdir is the absolute directory that package steps run in and the
	// payload is copied into. It is also the runtime working directory.
	Workdir string `json:"workdir,omitempty"`
	// Packages are the apt packages installed during provisioning.
	Packages []string `json:"packages,omitempty"`
	// AptOptions are extra apt-get install options. Only allowlisted options
	// are accepted; anything unrecognized fails validation.
	AptOptions []string `json:"apt_options,omitempty"`
	// KeepAptLists skips the /var/lib/apt/lists cleanup after install.
	KeepAptLists bool `json:"keep_apt_lists,omitempty"`
	// UpgradePip controls the pip self-upgrade step.
	UpgradePip bool `json:"upgrade_pip"`
	// Requirements controls requirements.txt installation.
	Requirements RequirementsMode `json:"requirements,omitempty"`
	// Entrypoint is the interpreter binary the image starts.
	Entrypoint string `json:"entrypoint,omitempty"`
	// EntrypointArgs are default arguments for the entrypoint. When empty the
	// container starts the bare interpreter unless arguments are supplied at
	// run time.
	EntrypointArgs []string `json:"entrypoint_args,omitempty"`
	// Maintainer is recorded as the image maintainer label.
	Maintainer string `json:"maintainer,omitempty"`
	// Labels are additional image labels.
	Labels map[string]string `json:"labels,omitempty"`
}

// Default returns the canonical recipe: Ubuntu base, /app workdir, the Python
// runtime package set, pip upgraded, bare python3 entrypoint.
//
// The base stays on 22.04: from 23.04 on, Debian marks the system interpreter
// externally managed and the pip self-upgrade step would refuse to run.
func Default() *Recipe {
	return &Recipe{
		Base:    "ubuntu:22.04",
		Workdir: "/app",
		Packages: []string{
			"ca-certificates",
			"python3",
			"python3-pip",
			"python3-venv",
			"python3-dotenv",
		},
		UpgradePip:   true,
		Requirements: RequirementsAuto,
		Entrypoint:   "python3",
	}
}

// Load reads a recipe file, overlays it onto the defaults, and validates it.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe %s: %w", path, err)
	}

	rc := Default()
	if err := yaml.Unmarshal(data, rc); err != nil {
		return nil, fmt.Errorf("parse recipe %s: %w", path, err)
	}

	rc.normalize()
	if err := rc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recipe %s: %w", path, err)
	}
	return rc, nil
}

// LoadOrDefault loads the recipe at path, falling back to Default when the
// file does not exist.
func LoadOrDefault(path string) (*Recipe, error) {
	rc, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return rc, nil
}

// normalize trims and dedupes list fields before the recipe is sealed.
func (r *Recipe) normalize() {
	trim := func(s string, _ int) string { return strings.TrimSpace(s) }
	r.Packages = lo.Uniq(lo.Map(r.Packages, trim))
	r.AptOptions = lo.Uniq(lo.Map(r.AptOptions, trim))
	r.Base = strings.TrimSpace(r.Base)
	r.Entrypoint = strings.TrimSpace(r.Entrypoint)
	if r.Requirements == "" {
		r.Requirements = RequirementsAuto
	}
}

// Fingerprint returns a stable hex digest of the recipe contents. Identical
// recipes always produce identical fingerprints.
func (r *Recipe) Fingerprint() string {
	// Canonical form is the JSON encoding; field order is fixed by the type.
	data, err := json.Marshal(r)
	if err != nil {
		// Marshal of a plain struct cannot fail; guard anyway.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Starter is the commented kiln.yaml written by `kiln init`. It reproduces
// Default() with every knob spelled out.
const Starter = `# kiln.yaml - image build recipe
#
# The build always runs the same ordered steps:
#   1. pin the base image        4. upgrade pip
#   2. set the working directory 5. copy the build context
#   3. install apt packages      6. declare the entrypoint

# Base OS image. Resolved to a manifest digest before the build.
base: ubuntu:22.04

# Absolute working directory inside the image. The payload is copied here.
workdir: /app

# apt packages installed in one layer. A package that does not exist fails
# the build before the payload is copied.
packages:
  - ca-certificates
  - python3
  - python3-pip
  - python3-venv
  - python3-dotenv

# Extra apt-get install options. Unrecognized options are rejected.
#apt_options:
#  - --fix-missing

# Upgrade pip after package provisioning (default true).
upgrade_pip: true

# Install requirements.txt when present: auto | always | never
requirements: auto

# Entrypoint binary. With no entrypoint_args the container starts the bare
# interpreter; arguments passed to the container replace them.
entrypoint: python3
#entrypoint_args:
#  - main.py

# Recorded as the maintainer label.
#maintainer: you@example.com

# Additional image labels.
#labels:
#  org.opencontainers.image.title: myapp
`
