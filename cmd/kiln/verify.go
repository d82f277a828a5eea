package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilnproject/kiln/lib/buildctx"
	"github.com/kilnproject/kiln/lib/image"
	"github.com/kilnproject/kiln/lib/pipeline"
)

func newVerifyCmd(app *appHandle) *cobra.Command {
	var recipePath string

	cmd := &cobra.Command{
		Use:   "verify <tag> [context]",
		Short: "Deep-verify a baked image against its recipe and context",
		Long: `Re-run the configuration probes against the stored image, then save
it and compare the payload byte for byte with the build context.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextDir := "."
			if len(args) > 1 {
				contextDir = args[1]
			}
			return runVerify(cmd, app, args[0], contextDir, recipePath)
		},
	}

	cmd.Flags().StringVarP(&recipePath, "recipe", "f", "", "recipe file (default <context>/kiln.yaml)")

	return cmd
}

func runVerify(cmd *cobra.Command, app *appHandle, tag, contextDir, recipePath string) error {
	a, err := app.get()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rec, err := loadRecipe(recipePath, contextDir)
	if err != nil {
		return err
	}

	// Configuration probes against the stored image.
	st := &pipeline.State{Recipe: rec, Tag: tag}
	if err := pipeline.NewVerifyStage(a.Engine).Run(ctx, st); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: configuration probes passed\n", tag)

	// Payload fidelity: save the image and walk its flattened filesystem
	// against a fresh snapshot of the context.
	snap, err := buildctx.Take(contextDir)
	if err != nil {
		return err
	}

	tmp, err := os.MkdirTemp("", "kiln-verify-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	tarPath := filepath.Join(tmp, "image.tar")
	if err := a.Engine.Save(ctx, tag, tarPath); err != nil {
		return err
	}
	img, err := image.LoadTarball(tarPath)
	if err != nil {
		return err
	}

	report, err := image.VerifyPayload(ctx, img, rec.Workdir, snap)
	if err != nil {
		return err
	}
	if !report.Clean() {
		for _, f := range report.Missing {
			fmt.Fprintf(out, "  missing:    %s\n", f)
		}
		for _, f := range report.Extra {
			fmt.Fprintf(out, "  extra:      %s\n", f)
		}
		for _, f := range report.Mismatched {
			fmt.Fprintf(out, "  mismatched: %s\n", f)
		}
		return fmt.Errorf("%w: %s", pipeline.ErrVerifyFailed, report)
	}

	fmt.Fprintf(out, "%s: payload matches the context (%d files)\n", tag, snap.FileCount)
	return nil
}
