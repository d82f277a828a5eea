// Package dockerfile renders a recipe into the ordered build plan the
// container engine executes. The instruction order is fixed: base, workdir,
// OS packages, toolchain upgrade, optional dependency install, payload copy,
// entrypoint. Rendering is pure: the same inputs produce byte-identical
// output.
package dockerfile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/kilnproject/kiln/lib/recipe"
)

// RequirementsFile is the dependency manifest looked up in the build context.
const RequirementsFile = "requirements.txt"

// Input carries everything rendering depends on.
type Input struct {
	Recipe *recipe.Recipe
	// Base is the FROM value: the digest-pinned reference when the build
	// resolved one, otherwise the normalized reference.
	Base string
	// HasRequirements reports whether the build context contains a
	// requirements.txt.
	HasRequirements bool
}

type section struct {
	name  string
	lines []string
}

// Render produces the Dockerfile text for the given input.
func Render(in Input) (string, error) {
	sections, err := plan(in)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, line := range s.lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Outline returns the ordered section names of the plan, for display.
func Outline(in Input) ([]string, error) {
	sections, err := plan(in)
	if err != nil {
		return nil, err
	}
	return lo.Map(sections, func(s section, _ int) string { return s.name }), nil
}

func plan(in Input) ([]section, error) {
	rc := in.Recipe
	if rc == nil {
		return nil, fmt.Errorf("recipe is nil")
	}
	if in.Base == "" {
		return nil, fmt.Errorf("base reference is empty")
	}

	sections := []section{
		baseSection(in.Base),
		workdirSection(rc),
		packagesSection(rc),
	}

	if rc.UpgradePip {
		sections = append(sections, toolchainSection(rc))
	}

	switch rc.Requirements {
	case recipe.RequirementsAlways:
		if !in.HasRequirements {
			return nil, ErrRequirementsMissing
		}
		sections = append(sections, dependenciesSection(rc))
	case recipe.RequirementsAuto:
		if in.HasRequirements {
			sections = append(sections, dependenciesSection(rc))
		}
	}

	sections = append(sections, payloadSection(), entrypointSection(rc))
	return sections, nil
}

func baseSection(base string) section {
	return section{
		name:  "base",
		lines: []string{"FROM " + base},
	}
}

func workdirSection(rc *recipe.Recipe) section {
	return section{
		name:  "workdir",
		lines: []string{"WORKDIR " + rc.Workdir},
	}
}

// packagesSection refreshes the index and installs every package in a single
// layer. All options come from the validated recipe; nothing is added behind
// its back, so a failing option or package name surfaces as a failing layer.
func packagesSection(rc *recipe.Recipe) section {
	opts := lo.Uniq(append([]string{"-y", "--no-install-recommends"}, rc.AptOptions...))

	install := fmt.Sprintf("apt-get install %s %s",
		strings.Join(opts, " "), strings.Join(rc.Packages, " "))

	lines := []string{
		"# Refresh the package index and provision OS packages in one layer",
		"RUN apt-get update && \\",
		"    " + install,
	}
	if !rc.KeepAptLists {
		lines[len(lines)-1] += " && \\"
		lines = append(lines, "    rm -rf /var/lib/apt/lists/*")
	}
	return section{name: "packages", lines: lines}
}

func toolchainSection(rc *recipe.Recipe) section {
	return section{
		name: "toolchain",
		lines: []string{
			"# Upgrade the package-installation tool before anything uses it",
			fmt.Sprintf("RUN %s -m pip install --upgrade pip", rc.Entrypoint),
		},
	}
}

// dependenciesSection copies the manifest alone first so dependency install
// caches independently of source edits.
func dependenciesSection(rc *recipe.Recipe) section {
	return section{
		name: "dependencies",
		lines: []string{
			"# Install application dependencies (cache layer)",
			fmt.Sprintf("COPY %s ./", RequirementsFile),
			fmt.Sprintf("RUN %s -m pip install --no-cache-dir -r %s", rc.Entrypoint, RequirementsFile),
		},
	}
}

func payloadSection() section {
	return section{
		name: "payload",
		lines: []string{
			"# Copy the entire build context",
			"COPY . .",
		},
	}
}

func entrypointSection(rc *recipe.Recipe) section {
	var lines []string

	if rc.Maintainer != "" {
		lines = append(lines, "LABEL maintainer="+strconv.Quote(rc.Maintainer))
	}
	keys := lo.Keys(rc.Labels)
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("LABEL %s=%s", k, strconv.Quote(rc.Labels[k])))
	}

	args := append([]string{rc.Entrypoint}, rc.EntrypointArgs...)
	quoted := lo.Map(args, func(a string, _ int) string { return strconv.Quote(a) })
	lines = append(lines, fmt.Sprintf("ENTRYPOINT [%s]", strings.Join(quoted, ", ")))

	return section{name: "entrypoint", lines: lines}
}
