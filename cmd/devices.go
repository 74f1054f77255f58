// cmd/devices.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/sirengate/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		capture := audio.New(audio.DefaultConfig())
		if err := capture.Init(); err != nil {
			return err
		}
		defer capture.Close()

		infos, err := capture.ListDevices()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(infos) == 0 {
			fmt.Fprintln(w, "no capture devices found")
			return nil
		}
		for i, info := range infos {
			fmt.Fprintf(w, "%3d: %s\n", i, info.Name())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
