package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// appHandle initializes the wired application on first use, so commands
// that never touch the engine (init, version) work on machines without one.
type appHandle struct {
	app     *application
	cleanup func()
}

func (h *appHandle) get() (*application, error) {
	if h.app == nil {
		app, cleanup, err := initializeApp()
		if err != nil {
			return nil, err
		}
		h.app, h.cleanup = app, cleanup
	}
	return h.app, nil
}

func (h *appHandle) close() {
	if h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// exitCodeError carries a container exit code through cobra to main.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type rootFlags struct {
	engine   string
	dataDir  string
	logLevel string
}

// export maps set flags onto the environment the configuration reads, so
// flags beat environment without a second configuration path.
func (f *rootFlags) export() {
	if f.engine != "" {
		os.Setenv("KILN_ENGINE", f.engine)
	}
	if f.dataDir != "" {
		os.Setenv("KILN_DATA_DIR", f.dataDir)
	}
	if f.logLevel != "" {
		os.Setenv("KILN_LOG_LEVEL", f.logLevel)
	}
}

func newRootCmd(app *appHandle) *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "kiln",
		Short: "kiln - recipe-driven Python application image baker",
		Long: `kiln bakes container images for Python applications from a small recipe.
Every bake runs the same ordered steps: pin the base image, set the working
directory, install OS packages, upgrade pip, copy the build context, declare
the entrypoint. The first failing step stops the bake.`,
		Example: `  kiln init
  kiln build .
  kiln run kiln:4f1c09aa21d3 main.py`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			flags.export()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flags.engine, "engine", "", "container engine (docker, podman, auto)")
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "kiln data directory (default ~/.kiln)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newPlanCmd(app))
	cmd.AddCommand(newBuildCmd(app))
	cmd.AddCommand(newBuildsCmd(app))
	cmd.AddCommand(newVerifyCmd(app))
	cmd.AddCommand(newInspectCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newRunCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
