// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Command gputoy renders the GPU toys headlessly: it runs a toy for a number
// of frames, prints the caption of each frame and writes the final image.
//
//	gputoy smallpt --frames 64 --output cornell.ppm
//	gputoy mandel --backend software --keys "+,+,Up" --output mandel.ppm
//	gputoy jugcler --frames 120 --output juggler.bmp --output-size 320x240
//	gputoy devices
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	// Drivers register themselves via init().
	_ "github.com/gogpu/toys/backend/opencl"
	_ "github.com/gogpu/toys/backend/software"
	_ "github.com/gogpu/toys/backend/wgpu"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "gputoy",
		Usage: "Progressive GPU compute toys",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			smallptCmd(),
			mandelCmd(),
			juliaCmd(),
			jugclerCmd(),
			devicesCmd(),
		},
	}
}
