package dockerfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnproject/kiln/lib/recipe"
)

const testBase = "docker.io/library/ubuntu@sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func defaultInput() Input {
	return Input{Recipe: recipe.Default(), Base: testBase}
}

func TestRenderDefault(t *testing.T) {
	out, err := Render(defaultInput())
	require.NoError(t, err)

	assert.Contains(t, out, "FROM "+testBase)
	assert.Contains(t, out, "WORKDIR /app")
	assert.Contains(t, out, "apt-get update")
	assert.Contains(t, out, "apt-get install -y --no-install-recommends ca-certificates python3 python3-pip python3-venv python3-dotenv")
	assert.Contains(t, out, "rm -rf /var/lib/apt/lists/*")
	assert.Contains(t, out, "RUN python3 -m pip install --upgrade pip")
	assert.Contains(t, out, "COPY . .")
	assert.Contains(t, out, "ENTRYPOINT [\"python3\"]")

	// Bare interpreter: no default arguments, no CMD.
	assert.NotContains(t, out, "CMD")
}

func TestRenderStepOrder(t *testing.T) {
	out, err := Render(defaultInput())
	require.NoError(t, err)

	positions := []string{
		"FROM ",
		"WORKDIR ",
		"apt-get install",
		"pip install --upgrade pip",
		"COPY . .",
		"ENTRYPOINT ",
	}

	last := -1
	for _, marker := range positions {
		idx := strings.Index(out, marker)
		require.GreaterOrEqual(t, idx, 0, "missing %q", marker)
		assert.Greater(t, idx, last, "%q out of order", marker)
		last = idx
	}
}

func TestRenderDeterministic(t *testing.T) {
	in := defaultInput()
	in.Recipe.Maintainer = "you@example.com"
	in.Recipe.Labels = map[string]string{
		"org.opencontainers.image.title":  "app",
		"org.opencontainers.image.vendor": "kiln",
	}

	first, err := Render(in)
	require.NoError(t, err)
	for range 10 {
		again, err := Render(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRenderRequirements(t *testing.T) {
	t.Run("AutoWithFile", func(t *testing.T) {
		in := defaultInput()
		in.HasRequirements = true
		out, err := Render(in)
		require.NoError(t, err)
		assert.Contains(t, out, "COPY requirements.txt ./")
		assert.Contains(t, out, "pip install --no-cache-dir -r requirements.txt")

		// Dependencies install after the toolchain upgrade, before the payload.
		upgrade := strings.Index(out, "pip install --upgrade pip")
		install := strings.Index(out, "pip install --no-cache-dir")
		payload := strings.Index(out, "COPY . .")
		assert.Less(t, upgrade, install)
		assert.Less(t, install, payload)
	})

	t.Run("AutoWithoutFile", func(t *testing.T) {
		out, err := Render(defaultInput())
		require.NoError(t, err)
		assert.NotContains(t, out, "requirements.txt")
	})

	t.Run("AlwaysMissing", func(t *testing.T) {
		in := defaultInput()
		in.Recipe.Requirements = recipe.RequirementsAlways
		_, err := Render(in)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRequirementsMissing)
	})

	t.Run("NeverIgnoresFile", func(t *testing.T) {
		in := defaultInput()
		in.Recipe.Requirements = recipe.RequirementsNever
		in.HasRequirements = true
		out, err := Render(in)
		require.NoError(t, err)
		assert.NotContains(t, out, "requirements.txt")
	})
}

func TestRenderEntrypointArgs(t *testing.T) {
	in := defaultInput()
	in.Recipe.EntrypointArgs = []string{"main.py", "--verbose"}
	out, err := Render(in)
	require.NoError(t, err)
	assert.Contains(t, out, "ENTRYPOINT [\"python3\", \"main.py\", \"--verbose\"]")
}

func TestRenderLabels(t *testing.T) {
	in := defaultInput()
	in.Recipe.Maintainer = "you@example.com"
	in.Recipe.Labels = map[string]string{
		"b.example/later":   "2",
		"a.example/earlier": "1",
	}
	out, err := Render(in)
	require.NoError(t, err)

	assert.Contains(t, out, "LABEL maintainer=\"you@example.com\"")
	// Extra labels render sorted by key.
	a := strings.Index(out, "LABEL a.example/earlier=\"1\"")
	b := strings.Index(out, "LABEL b.example/later=\"2\"")
	require.GreaterOrEqual(t, a, 0)
	require.GreaterOrEqual(t, b, 0)
	assert.Less(t, a, b)
}

func TestRenderAptOptions(t *testing.T) {
	in := defaultInput()
	in.Recipe.AptOptions = []string{"--fix-missing", "-y"}
	out, err := Render(in)
	require.NoError(t, err)

	assert.Contains(t, out, "--fix-missing")
	// -y is part of the fixed prefix; it must not repeat.
	assert.Equal(t, 1, strings.Count(out, " -y "))
}

func TestRenderKeepAptLists(t *testing.T) {
	in := defaultInput()
	in.Recipe.KeepAptLists = true
	out, err := Render(in)
	require.NoError(t, err)
	assert.NotContains(t, out, "rm -rf /var/lib/apt/lists/*")
}

func TestRenderNoUpgrade(t *testing.T) {
	in := defaultInput()
	in.Recipe.UpgradePip = false
	out, err := Render(in)
	require.NoError(t, err)
	assert.NotContains(t, out, "--upgrade pip")
}

func TestOutline(t *testing.T) {
	names, err := Outline(defaultInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "workdir", "packages", "toolchain", "payload", "entrypoint"}, names)

	in := defaultInput()
	in.HasRequirements = true
	names, err = Outline(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "workdir", "packages", "toolchain", "dependencies", "payload", "entrypoint"}, names)
}
