package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Faultbox/avatar-studio/internal/devices"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List cameras and microphones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			catalog := devices.NewCatalog(devices.Options{
				Cameras:             devices.V4LSource{},
				Microphones:         devices.SDLSource{},
				PreferredCamera:     cfg.Devices.Camera,
				PreferredMicrophone: cfg.Devices.Microphone,
				Logger:              ctx.log("devices"),
			})

			runCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			inv, err := catalog.Enumerate(runCtx)
			out := cmd.OutOrStdout()
			if errors.Is(err, devices.ErrPermissionDenied) {
				fmt.Fprintln(out, "Camera access denied: check membership of the video group")
			} else if err != nil {
				return fmt.Errorf("enumerate devices: %w", err)
			}

			printInventory(cmd, inv)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Give up enumerating after this long")
	return cmd
}

func printInventory(cmd *cobra.Command, inv devices.Inventory) {
	out := cmd.OutOrStdout()
	if len(inv.Cameras)+len(inv.Microphones) == 0 {
		fmt.Fprintln(out, "No capture devices found")
		return
	}

	var rows [][]string
	add := func(list []devices.DeviceDescriptor, selected string) {
		for _, d := range list {
			mark := ""
			if d.ID == selected {
				mark = "*"
			}
			rows = append(rows, []string{mark, d.Kind.String(), d.Label, d.ID, d.Path})
		}
	}
	add(inv.Cameras, inv.SelectedCamera)
	add(inv.Microphones, inv.SelectedMicrophone)

	fmt.Fprintln(out, renderTable(out, []string{"", "Kind", "Label", "ID", "Path"}, rows, nil))
}
