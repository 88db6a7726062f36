package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fuslink/fuslink/internal/firmware"
)

// newListCmd lists the published firmware versions for a device.
func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published firmware versions for a device",
		Example: `  fuslink list -r EUX -m SM-G960F
  fuslink list --region BTU --model SM-S918B --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("cli")
			if err != nil {
				return err
			}

			entries, err := a.catalog.ListVersions(cmd.Context(), regionFlag, modelFlag)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "FIRMWARE\tBUILD DATE\tITERATION\t")
			for _, e := range entries {
				date, iteration := "-", "-"
				if info, err := firmware.DecodeBuildInfo(e.Version); err == nil {
					date, iteration = info.Date(), info.Iteration()
				}
				marker := ""
				if e.IsLatest {
					marker = " (latest)"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\t\n", e.Version, marker, date, iteration)
			}
			return tw.Flush()
		},
	}
	addDeviceFlags(cmd)
	return cmd
}
