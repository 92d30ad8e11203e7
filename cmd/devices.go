package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kagami/internal/camera"
)

func devicesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "接続されているカメラを一覧表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			classes, err := e.cfg.Camera.Classes()
			if err != nil {
				return err
			}

			discovery := camera.NewLinuxDiscovery(e.cfg.Camera.SysRoot, e.cfg.Camera.DevRoot, classes)
			registry := camera.NewRegistry(discovery, e.logger.Named("registry"))
			snap, err := registry.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(snap.Devices) == 0 {
				fmt.Fprintln(out, camera.StatusTextNoCameras)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\t名前\tデバイス\t種類\t状態\tID")
			for i, d := range snap.Devices {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i, d.Name, d.Path, d.Position, d.State, d.ID)
			}
			return w.Flush()
		},
	}
}
