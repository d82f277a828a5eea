package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnproject/kiln/lib/recipe"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := &appHandle{}
	t.Cleanup(app.close)

	cmd := newRootCmd(app)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kiln version dev")
	assert.Contains(t, out, "Commit: unknown")
}

func TestRootShowsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "kiln bakes container images")
	assert.Contains(t, out, "build")
	assert.Contains(t, out, "plan")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	data, err := os.ReadFile(filepath.Join(dir, recipe.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, recipe.Starter, string(data))

	// The starter must load back as a valid recipe.
	rec, err := recipe.Load(filepath.Join(dir, recipe.DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "ubuntu:22.04", rec.Base)
}

func TestInitRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "init", dir)
	require.NoError(t, err)

	_, err = execute(t, "init", dir)
	require.ErrorContains(t, err, "already exists")

	_, err = execute(t, "init", dir, "--force")
	require.NoError(t, err)
}

func TestPlanCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('ok')\n"), 0o644))

	out, err := execute(t, "plan", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "FROM ubuntu:22.04")
	assert.Contains(t, out, "WORKDIR /app")
	assert.Contains(t, out, "COPY . .")
	assert.Contains(t, out, `ENTRYPOINT ["python3"]`)
	assert.Contains(t, out, "# stages: base -> workdir -> packages -> toolchain -> payload -> entrypoint")
	assert.Contains(t, out, "# tag: kiln:")
	assert.Contains(t, out, "# context: 1 files")
}

func TestPlanSeesRequirements(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('ok')\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("requests\n"), 0o644))

	out, err := execute(t, "plan", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "COPY requirements.txt ./")
	assert.Contains(t, out, "dependencies")
}

func TestPlanUsesContextRecipe(t *testing.T) {
	dir := t.TempDir()
	recipeYAML := "base: ubuntu:22.04\nmaintainer: dev@example.com\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, recipe.DefaultFileName), []byte(recipeYAML), 0o644))

	out, err := execute(t, "plan", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `LABEL maintainer="dev@example.com"`)
}

func TestPlanRejectsBadRecipe(t *testing.T) {
	dir := t.TempDir()
	recipeYAML := "apt_options:\n  - --allow-downgrades-oops\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, recipe.DefaultFileName), []byte(recipeYAML), 0o644))

	_, err := execute(t, "plan", dir)
	require.ErrorIs(t, err, recipe.ErrUnknownAptOption)
}

func TestExportRequiresDestination(t *testing.T) {
	_, err := execute(t, "export", "kiln:abc123def456")
	require.ErrorContains(t, err, "nothing to export")
}

func TestExitCodeError(t *testing.T) {
	assert.Equal(t, "exit status 3", exitCodeError{code: 3}.Error())
}

func TestRootFlagsExport(t *testing.T) {
	t.Setenv("KILN_ENGINE", "docker")
	t.Setenv("KILN_DATA_DIR", "/original")

	flags := rootFlags{engine: "podman"}
	flags.export()

	assert.Equal(t, "podman", os.Getenv("KILN_ENGINE"))
	assert.Equal(t, "/original", os.Getenv("KILN_DATA_DIR"), "unset flags leave the environment alone")
}

func TestContextArg(t *testing.T) {
	assert.Equal(t, ".", contextArg(nil))
	assert.Equal(t, "app", contextArg([]string{"app"}))
}

func TestLoadRecipeFallsBack(t *testing.T) {
	rec, err := loadRecipe("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, recipe.Default(), rec)
}
