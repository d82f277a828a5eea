package main

import (
	"path/filepath"

	"github.com/kilnproject/kiln/lib/recipe"
)

func contextArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// loadRecipe loads an explicit recipe file, or the context's kiln.yaml,
// falling back to the default recipe when neither exists.
func loadRecipe(path, contextDir string) (*recipe.Recipe, error) {
	if path != "" {
		return recipe.Load(path)
	}
	return recipe.LoadOrDefault(filepath.Join(contextDir, recipe.DefaultFileName))
}
