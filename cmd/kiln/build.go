package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilnproject/kiln/lib/build"
)

type buildFlags struct {
	recipePath string
	tag        string
	noCache    bool
	pull       bool
	noVerify   bool
	offline    bool
	timeout    time.Duration
}

func newBuildCmd(app *appHandle) *cobra.Command {
	var flags buildFlags

	cmd := &cobra.Command{
		Use:   "build [context]",
		Short: "Bake an image from a recipe and a build context",
		Long: `Run the full bake: resolve the base image, snapshot the context,
render the plan, provision the image through the engine, verify the result.
The first failing stage aborts the bake and no image is tagged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, app, contextArg(args), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.recipePath, "recipe", "f", "", "recipe file (default <context>/kiln.yaml)")
	cmd.Flags().StringVarP(&flags.tag, "tag", "t", "", "image tag (default derived from recipe and context)")
	cmd.Flags().BoolVar(&flags.noCache, "no-cache", false, "disable engine layer caching")
	cmd.Flags().BoolVar(&flags.pull, "pull", false, "re-pull the base image even when cached")
	cmd.Flags().BoolVar(&flags.noVerify, "no-verify", false, "skip the post-build verification probes")
	cmd.Flags().BoolVar(&flags.offline, "offline", false, "skip base digest resolution; use the engine's local cache")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "bake timeout (default from configuration)")

	return cmd
}

func runBuild(cmd *cobra.Command, app *appHandle, contextDir string, flags buildFlags) error {
	a, err := app.get()
	if err != nil {
		return err
	}

	rec, err := loadRecipe(flags.recipePath, contextDir)
	if err != nil {
		return err
	}

	b, err := a.Builds.Run(cmd.Context(), build.Request{
		Recipe:     rec,
		ContextDir: contextDir,
		Tag:        flags.tag,
		SkipVerify: flags.noVerify,
		Offline:    flags.offline,
		NoCache:    flags.noCache,
		Pull:       flags.pull,
		Timeout:    flags.timeout,
	})
	if err != nil {
		if b != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "build %s failed; logs: kiln builds logs %s\n", b.ID, b.ID)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Baked %s (%s)\n", b.Tag, b.ImageID)
	fmt.Fprintf(out, "  build:   %s\n", b.ID)
	fmt.Fprintf(out, "  base:    %s\n", pinnedBase(b))
	fmt.Fprintf(out, "  context: %d files, %s\n", b.ContextFiles, b.HumanContextSize())
	fmt.Fprintf(out, "  took:    %s\n", time.Duration(b.DurationMillis)*time.Millisecond)
	return nil
}

func pinnedBase(b *build.Build) string {
	if b.BaseDigest == "" {
		return b.BaseRef + " (unpinned)"
	}
	return fmt.Sprintf("%s (%s)", b.BaseRef, b.BaseDigest)
}
