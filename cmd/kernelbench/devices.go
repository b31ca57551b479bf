package main

import (
	"fmt"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/kernelbench/internal/accel/opencl"
	"github.com/fxnlabs/kernelbench/internal/gpu"
	"github.com/urfave/cli/v2"
)

func devicesCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List platforms and devices",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-banner", Usage: "Skip the banner"},
		},
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			if !c.Bool("no-banner") {
				fmt.Fprintln(w, figure.NewFigure("kernelbench", "", true).String())
			}
			if !opencl.Available {
				fmt.Fprintln(w, "OpenCL support not compiled in (build with -tags opencl); listing the software device only.")
			}

			manager := newManager(e.cfg, e.log)
			listings, err := manager.Enumerate()
			if err != nil {
				return err
			}
			if err := gpu.Describe(w, listings); err != nil {
				return err
			}

			pref, err := gpu.ParsePreference(e.cfg.Device.Preference)
			if err != nil {
				return err
			}
			sel, err := manager.Select(pref)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "Selected: %s (%s, %s)\n", sel.DeviceInfo.Name, sel.DeviceInfo.Type, sel.Driver)
			return err
		},
	}
}
