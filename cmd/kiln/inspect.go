package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilnproject/kiln/lib/image"
)

func newInspectCmd(app *appHandle) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <tag|tarball>",
		Short: "Print an image summary",
		Long: `Summarize an image's configuration. A path to a saved tarball is
read directly; anything else is looked up in the engine store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, app, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, app *appHandle, target string) error {
	out := cmd.OutOrStdout()

	// A tarball on disk needs no engine at all.
	if info, err := os.Stat(target); err == nil && info.Mode().IsRegular() {
		img, err := image.LoadTarball(target)
		if err != nil {
			return err
		}
		summary, err := image.Inspect(img)
		if err != nil {
			return err
		}
		return printJSON(out, summary)
	}

	a, err := app.get()
	if err != nil {
		return err
	}
	summary, err := a.Engine.Inspect(cmd.Context(), target)
	if err != nil {
		return err
	}
	return printJSON(out, summary)
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
