package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilnproject/kiln/lib/image"
)

type exportFlags struct {
	tar    string
	layout string
	rootfs string
}

func newExportCmd(app *appHandle) *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export <tag>",
		Short: "Export a baked image out of the engine store",
		Long: `Save an image as a docker-archive tarball, an OCI image layout, or an
unpacked root filesystem. The forms chain: the layout is built from the
tarball and the root filesystem is unpacked from the layout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, app, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.tar, "tar", "", "write a docker-archive tarball to this path")
	cmd.Flags().StringVar(&flags.layout, "layout", "", "write an OCI image layout to this directory")
	cmd.Flags().StringVar(&flags.rootfs, "rootfs", "", "unpack the root filesystem to this directory")

	return cmd
}

func runExport(cmd *cobra.Command, app *appHandle, tag string, flags exportFlags) error {
	if flags.tar == "" && flags.layout == "" && flags.rootfs == "" {
		return errors.New("nothing to export: pass --tar, --layout, or --rootfs")
	}

	a, err := app.get()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var scratch string
	defer func() {
		if scratch != "" {
			os.RemoveAll(scratch)
		}
	}()
	ensureScratch := func() (string, error) {
		if scratch == "" {
			dir, err := os.MkdirTemp("", "kiln-export-")
			if err != nil {
				return "", fmt.Errorf("create scratch dir: %w", err)
			}
			scratch = dir
		}
		return scratch, nil
	}

	tarPath := flags.tar
	if tarPath == "" {
		dir, err := ensureScratch()
		if err != nil {
			return err
		}
		tarPath = filepath.Join(dir, "image.tar")
	}
	if err := a.Engine.Save(ctx, tag, tarPath); err != nil {
		return err
	}
	if flags.tar != "" {
		fmt.Fprintf(out, "Saved %s to %s\n", tag, flags.tar)
	}

	if flags.layout == "" && flags.rootfs == "" {
		return nil
	}

	img, err := image.LoadTarball(tarPath)
	if err != nil {
		return err
	}

	layoutDir := flags.layout
	if layoutDir == "" {
		dir, err := ensureScratch()
		if err != nil {
			return err
		}
		layoutDir = filepath.Join(dir, "layout")
	}
	if err := image.ExportLayout(ctx, img, layoutDir, tag); err != nil {
		return err
	}
	if flags.layout != "" {
		fmt.Fprintf(out, "Wrote OCI layout to %s\n", flags.layout)
	}

	if flags.rootfs != "" {
		if err := image.UnpackRootfs(ctx, layoutDir, tag, flags.rootfs); err != nil {
			return err
		}
		fmt.Fprintf(out, "Unpacked root filesystem to %s\n", flags.rootfs)
	}
	return nil
}
