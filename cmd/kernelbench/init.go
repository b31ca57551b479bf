package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxnlabs/kernelbench/fixtures"
	"github.com/urfave/cli/v2"
)

// initCommand writes a starter configuration and the aplusb kernel.
func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write config.yaml and kernels/aplusb.cl into a directory",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: ".", Usage: "Target directory"},
			&cli.BoolFlag{Name: "force", Usage: "Overwrite existing files"},
		},
		Action: func(c *cli.Context) error {
			dir := c.String("dir")
			files := []struct {
				path string
				data []byte
			}{
				{filepath.Join(dir, defaultConfigPath), fixtures.ConfigTemplate},
				{filepath.Join(dir, "kernels", "aplusb.cl"), []byte(fixtures.AplusbKernel)},
			}
			for _, f := range files {
				if _, err := os.Stat(f.path); err == nil && !c.Bool("force") {
					return fmt.Errorf("%s already exists (use --force to overwrite)", f.path)
				}
				if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(f.path, f.data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "wrote %s\n", f.path)
			}
			return nil
		},
	}
}
