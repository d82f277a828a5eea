package main

import (
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/kilnproject/kiln/lib/buildctx"
	"github.com/kilnproject/kiln/lib/dockerfile"
	"github.com/kilnproject/kiln/lib/reference"
)

func newPlanCmd(app *appHandle) *cobra.Command {
	var recipePath string
	var resolve bool

	cmd := &cobra.Command{
		Use:   "plan [context]",
		Short: "Render the build plan without building",
		Long: `Validate the recipe, snapshot the build context, and print the
Dockerfile that a build would hand to the engine.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, app, contextArg(args), recipePath, resolve)
		},
	}

	cmd.Flags().StringVarP(&recipePath, "recipe", "f", "", "recipe file (default <context>/kiln.yaml)")
	cmd.Flags().BoolVar(&resolve, "resolve", false, "pin the base image to its current registry digest")

	return cmd
}

func runPlan(cmd *cobra.Command, app *appHandle, contextDir, recipePath string, resolve bool) error {
	rec, err := loadRecipe(recipePath, contextDir)
	if err != nil {
		return err
	}

	snap, err := buildctx.Take(contextDir)
	if err != nil {
		return err
	}

	base := rec.Base
	if resolve {
		a, err := app.get()
		if err != nil {
			return err
		}
		ref, err := reference.Parse(rec.Base)
		if err != nil {
			return err
		}
		resolved, err := ref.Resolve(cmd.Context(), a.Resolver)
		if err != nil {
			return err
		}
		base = resolved.Pinned()
	}

	in := dockerfile.Input{
		Recipe:          rec,
		Base:            base,
		HasRequirements: snap.Has(dockerfile.RequirementsFile),
	}
	rendered, err := dockerfile.Render(in)
	if err != nil {
		return err
	}
	outline, err := dockerfile.Outline(in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, rendered)
	fmt.Fprintf(out, "\n# stages: %s\n", strings.Join(outline, " -> "))
	fmt.Fprintf(out, "# context: %d files, %s, digest %s\n",
		snap.FileCount, datasize.ByteSize(snap.TotalBytes).HumanReadable(), snap.Digest[:12])
	fmt.Fprintf(out, "# tag: %s\n", buildctx.DeriveTag(rec.Fingerprint(), snap.Digest))
	return nil
}
