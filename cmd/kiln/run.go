package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilnproject/kiln/lib/engine"
)

func newRunCmd(app *appHandle) *cobra.Command {
	var env []string

	cmd := &cobra.Command{
		Use:   "run <tag> [args...]",
		Short: "Run a baked image",
		Long: `Start a container from a baked image. Arguments replace the
entrypoint's default arguments; with none the bare interpreter starts.
The container's exit code becomes kiln's exit code.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, app, args[0], args[1:], env)
		},
	}

	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "set an environment variable (KEY=VALUE)")

	return cmd
}

func runRun(cmd *cobra.Command, app *appHandle, tag string, args, env []string) error {
	a, err := app.get()
	if err != nil {
		return err
	}

	envMap := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		envMap[k] = v
	}

	res, err := a.Engine.Run(cmd.Context(), engine.RunOptions{
		Tag:         tag,
		Args:        args,
		Env:         envMap,
		Remove:      true,
		Interactive: true,
		Stdin:       cmd.InOrStdin(),
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return exitCodeError{code: res.ExitCode}
	}
	return nil
}
