package cli

import (
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newInfoCmd fetches binary metadata for a firmware version, including
// the decryption key.
func newInfoCmd() *cobra.Command {
	var firmwareFlag string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show binary metadata for a firmware version",
		Long: `Fetches the binary metadata record for a firmware version, including
size, CRC, servable path and the decryption key. Without --firmware the
latest published version is used.`,
		Example: `  fuslink info -r EUX -m SM-G960F
  fuslink info -r EUX -m SM-G960F -f G960FXXUHFVG4/G960FOXMHFVG4/G960FXXUHFVG4/G960FXXUHFVG4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp("cli")
			if err != nil {
				return err
			}

			fw, err := a.resolveFirmware(cmd.Context(), firmwareFlag)
			if err != nil {
				return err
			}
			req, err := a.binaryInfoRequest(fw)
			if err != nil {
				return err
			}

			meta, _, err := a.fus.RetrieveBinaryInfo(cmd.Context(), req)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintf(tw, "Model:\t%s\n", meta.DisplayName)
			fmt.Fprintf(tw, "Firmware:\t%s\n", fw)
			fmt.Fprintf(tw, "OS version:\t%s\n", meta.OSVersion)
			fmt.Fprintf(tw, "Platform:\t%s\n", meta.Platform)
			fmt.Fprintf(tw, "Filename:\t%s\n", meta.Filename)
			fmt.Fprintf(tw, "Size:\t%d bytes (%.2f GB)\n", meta.Size, float64(meta.Size)/1024/1024/1024)
			fmt.Fprintf(tw, "CRC:\t%s\n", meta.CRC)
			fmt.Fprintf(tw, "Remote path:\t%s\n", meta.RemotePath())
			fmt.Fprintf(tw, "Encrypt version:\t%d\n", meta.EncryptionVersion)
			fmt.Fprintf(tw, "Decrypt key:\t%s\n", hex.EncodeToString(meta.DecryptKey))
			if meta.ChangelogURL != "" {
				fmt.Fprintf(tw, "Changelog:\t%s\n", meta.ChangelogURL)
			}
			return tw.Flush()
		},
	}
	addDeviceFlags(cmd)
	cmd.Flags().StringVarP(&firmwareFlag, "firmware", "f", "", "Explicit firmware version (default: latest)")
	cmd.Flags().StringVar(&imeiFlag, "imei", "", "Device IMEI or 8-digit TAC (default: generated from the built-in TAC table)")
	return cmd
}
