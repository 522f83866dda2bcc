package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/gogpu/toys"
	"github.com/gogpu/toys/backend"
	"github.com/gogpu/toys/gpucore"
)

func devicesCmd() *cli.Command {
	return &cli.Command{
		Name:    "devices",
		Aliases: []string{"ls"},
		Usage:   "List the compute drivers, platforms and devices",
		Flags:   append(deviceFlags(), loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := setupLogging(cmd.String("log-level")); err != nil {
				return err
			}
			filter, err := gpucore.ParseDeviceType(cmd.String("device-type"))
			if err != nil {
				return err
			}
			names := backend.Available()
			if name := cmd.String("backend"); name != "" {
				names = []string{name}
			}
			return listDevices(cmd.Root().Writer, names, filter)
		},
	}
}

// listDevices prints one row per device. Drivers that fail to open are
// reported and skipped.
func listDevices(w io.Writer, names []string, filter gpucore.DeviceType) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tPLATFORM\tDEVICE\tTYPE\tUNITS\tMAX WG\tLOCAL MEM")
	for _, name := range names {
		b, err := backend.Get(name)
		if err != nil {
			toys.Logger().Warn("gputoy: backend unavailable", "backend", name, "err", err)
			continue
		}
		plats, err := b.Platforms()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for _, p := range plats {
			devs, err := p.Devices(filter)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			for _, d := range devs {
				info := d.Info()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%d\t%d\t%v\n",
					name, p.Name(), info.Name, info.Type, info.ComputeUnits, info.MaxWorkGroupSize, info.LocalMem)
			}
		}
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
	}
	return tw.Flush()
}
