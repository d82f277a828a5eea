package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newBuildsCmd(app *appHandle) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "builds",
		Short: "Inspect build history",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare "kiln builds" lists, matching the common expectation.
			return runBuildsList(cmd, app)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List builds, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildsList(cmd, app)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one build record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildsShow(cmd, app, args[0])
		},
	})
	var follow bool
	var tail int
	logsCmd := &cobra.Command{
		Use:   "logs <id>",
		Short: "Print the engine output captured during a build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildsLogs(cmd, app, args[0], follow, tail)
		},
	}
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep the stream open and print new output as a running bake appends it")
	logsCmd.Flags().IntVar(&tail, "tail", 0, "print only the last N lines (0 prints everything)")
	cmd.AddCommand(logsCmd)
	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a build record (the image stays in the engine store)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuildsRemove(cmd, app, args[0])
		},
	})

	return cmd
}

func runBuildsList(cmd *cobra.Command, app *appHandle) error {
	a, err := app.get()
	if err != nil {
		return err
	}

	builds, err := a.Builds.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No builds yet. Run `kiln build` first.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tTAG\tBASE\tCREATED\tTOOK")
	for _, b := range builds {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.Status, orDash(b.Tag), b.BaseRef,
			b.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			(time.Duration(b.DurationMillis) * time.Millisecond).Round(time.Millisecond))
	}
	return w.Flush()
}

func runBuildsShow(cmd *cobra.Command, app *appHandle, id string) error {
	a, err := app.get()
	if err != nil {
		return err
	}

	b, err := a.Builds.Get(cmd.Context(), id)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runBuildsLogs(cmd *cobra.Command, app *appHandle, id string, follow bool, tail int) error {
	a, err := app.get()
	if err != nil {
		return err
	}

	if !follow && tail == 0 {
		rc, err := a.Builds.Logs(cmd.Context(), id)
		if err != nil {
			return err
		}
		defer rc.Close()

		_, err = io.Copy(cmd.OutOrStdout(), rc)
		return err
	}

	lines, err := a.Builds.Follow(cmd.Context(), id, tail, follow)
	if err != nil {
		return err
	}
	for line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}

func runBuildsRemove(cmd *cobra.Command, app *appHandle, id string) error {
	a, err := app.get()
	if err != nil {
		return err
	}

	if err := a.Builds.Delete(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
